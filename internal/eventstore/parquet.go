// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package eventstore

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// dataRow is the Parquet row shape common to every partition. Field names
// follow the upstream small-tree branch names.
type dataRow struct {
	LeptonPt        []float32 `parquet:"lept_pt,list"`
	LeptonEta       []float32 `parquet:"lept_eta,list"`
	LeptonPhi       []float32 `parquet:"lept_phi,list"`
	LeptonIsolation []float32 `parquet:"lept_iso,list"`
	LeptonFlavour   []int32   `parquet:"lept_flav,list"`

	JetPt      []float32 `parquet:"jet_pt,list"`
	JetEta     []float32 `parquet:"jet_eta,list"`
	JetPhi     []float32 `parquet:"jet_phi,list"`
	JetBTag    []float32 `parquet:"jet_btagdiscri,list"`
	JetFlavour []int32   `parquet:"jet_flav,list"`

	METPt  float32 `parquet:"met_pt"`
	METPhi float32 `parquet:"met_phi"`

	NumPV int32 `parquet:"nvertex"`
}

// simulationRow extends the common shape with the JEC-shifted collections
// and the generator event weight, present only in simulated partitions.
type simulationRow struct {
	LeptonPt        []float32 `parquet:"lept_pt,list"`
	LeptonEta       []float32 `parquet:"lept_eta,list"`
	LeptonPhi       []float32 `parquet:"lept_phi,list"`
	LeptonIsolation []float32 `parquet:"lept_iso,list"`
	LeptonFlavour   []int32   `parquet:"lept_flav,list"`

	JetPt      []float32 `parquet:"jet_pt,list"`
	JetEta     []float32 `parquet:"jet_eta,list"`
	JetPhi     []float32 `parquet:"jet_phi,list"`
	JetBTag    []float32 `parquet:"jet_btagdiscri,list"`
	JetFlavour []int32   `parquet:"jet_flav,list"`

	METPt  float32 `parquet:"met_pt"`
	METPhi float32 `parquet:"met_phi"`

	NumPV int32 `parquet:"nvertex"`

	JetJECUpPt      []float32 `parquet:"jet_jesup_pt,list"`
	JetJECUpEta     []float32 `parquet:"jet_jesup_eta,list"`
	JetJECUpPhi     []float32 `parquet:"jet_jesup_phi,list"`
	JetJECUpBTag    []float32 `parquet:"jet_jesup_btagdiscri,list"`
	JetJECUpFlavour []int32   `parquet:"jet_jesup_flav,list"`

	JetJECDownPt      []float32 `parquet:"jet_jesdown_pt,list"`
	JetJECDownEta     []float32 `parquet:"jet_jesdown_eta,list"`
	JetJECDownPhi     []float32 `parquet:"jet_jesdown_phi,list"`
	JetJECDownBTag    []float32 `parquet:"jet_jesdown_btagdiscri,list"`
	JetJECDownFlavour []int32   `parquet:"jet_jesdown_flav,list"`

	METJECUpPt    float32 `parquet:"met_jesup_pt"`
	METJECUpPhi   float32 `parquet:"met_jesup_phi"`
	METJECDownPt  float32 `parquet:"met_jesdown_pt"`
	METJECDownPhi float32 `parquet:"met_jesdown_phi"`

	RawWeight float32 `parquet:"evtweight"`
}

var dataColumnNames = []string{
	"lept_pt", "lept_eta", "lept_phi", "lept_iso", "lept_flav",
	"jet_pt", "jet_eta", "jet_phi", "jet_btagdiscri", "jet_flav",
	"met_pt", "met_phi", "nvertex",
}

var simulationColumnNames = []string{
	"jet_jesup_pt", "jet_jesup_eta", "jet_jesup_phi", "jet_jesup_btagdiscri", "jet_jesup_flav",
	"jet_jesdown_pt", "jet_jesdown_eta", "jet_jesdown_phi", "jet_jesdown_btagdiscri", "jet_jesdown_flav",
	"met_jesup_pt", "met_jesup_phi", "met_jesdown_pt", "met_jesdown_phi",
	"evtweight",
}

func requiredColumnNames(columns ColumnSet) []string {
	if columns == SimulationColumns {
		return append(append([]string{}, dataColumnNames...), simulationColumnNames...)
	}
	return dataColumnNames
}

// checkColumnsPresent verifies that every column the binding needs exists in
// the file, so that a data partition opened with SimulationColumns fails at
// bind time instead of serving zero-valued weights.
func checkColumnsPresent(partition string, present map[string]bool, columns ColumnSet) error {
	var missing []string
	for _, name := range requiredColumnNames(columns) {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("partition %q opened with %s columns is missing %v", partition, columns, missing)
	}
	return nil
}

// parquetSource reads a partition through parquet-go's generic row reader.
// T is dataRow or simulationRow depending on the requested column set.
type parquetSource[T any] struct {
	f         *os.File
	reader    *parquet.GenericReader[T]
	partition string
	columns   ColumnSet
	numRows   int64
	rowsRead  int64
	buf       []T
	buffered  int
	next      int
	fill      func(*RowBuffer, *T)
	closed    bool
	exhausted bool
}

func openParquetSource(path, partition string, columns ColumnSet, batchSize int) (RowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open partition %q: %w", partition, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat partition %q: %w", partition, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet for partition %q: %w", partition, err)
	}

	present := make(map[string]bool)
	for _, field := range pf.Schema().Fields() {
		present[field.Name()] = true
	}
	if err := checkColumnsPresent(partition, present, columns); err != nil {
		_ = f.Close()
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	if columns == SimulationColumns {
		return &parquetSource[simulationRow]{
			f:         f,
			reader:    parquet.NewGenericReader[simulationRow](pf),
			partition: partition,
			columns:   columns,
			numRows:   pf.NumRows(),
			buf:       make([]simulationRow, batchSize),
			fill:      fillFromSimulationRow,
		}, nil
	}
	return &parquetSource[dataRow]{
		f:         f,
		reader:    parquet.NewGenericReader[dataRow](pf),
		partition: partition,
		columns:   columns,
		numRows:   pf.NumRows(),
		buf:       make([]dataRow, batchSize),
		fill:      fillFromDataRow,
	}, nil
}

func (s *parquetSource[T]) NumRows() int64 { return s.numRows }

func (s *parquetSource[T]) ReadRow(buf *RowBuffer) error {
	if s.closed {
		return ErrClosed
	}
	if s.next >= s.buffered {
		if err := s.refill(); err != nil {
			return err
		}
	}
	row := &s.buf[s.next]
	s.next++

	buf.Reset()
	s.fill(buf, row)
	if err := buf.check(s.columns); err != nil {
		return &CorruptPartitionError{Partition: s.partition, Row: s.rowsRead, Err: err}
	}
	s.rowsRead++
	recordRowsRead(ParquetEngine, 1)
	return nil
}

func (s *parquetSource[T]) refill() error {
	if s.exhausted {
		return io.EOF
	}
	n, err := s.reader.Read(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parquet read on partition %q: %w", s.partition, err)
	}
	if errors.Is(err, io.EOF) {
		s.exhausted = true
	}
	if n == 0 {
		s.exhausted = true
		return io.EOF
	}
	s.buffered = n
	s.next = 0
	return nil
}

func (s *parquetSource[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.reader.Close()
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// The fill functions copy row values into the buffer rather than aliasing
// them: the reader's batch slices are overwritten on the next refill.

func fillFromDataRow(buf *RowBuffer, row *dataRow) {
	buf.Leptons.Pt = append(buf.Leptons.Pt, row.LeptonPt...)
	buf.Leptons.Eta = append(buf.Leptons.Eta, row.LeptonEta...)
	buf.Leptons.Phi = append(buf.Leptons.Phi, row.LeptonPhi...)
	buf.Leptons.Isolation = append(buf.Leptons.Isolation, row.LeptonIsolation...)
	buf.Leptons.Flavour = append(buf.Leptons.Flavour, row.LeptonFlavour...)

	buf.Jets.Pt = append(buf.Jets.Pt, row.JetPt...)
	buf.Jets.Eta = append(buf.Jets.Eta, row.JetEta...)
	buf.Jets.Phi = append(buf.Jets.Phi, row.JetPhi...)
	buf.Jets.BTag = append(buf.Jets.BTag, row.JetBTag...)
	buf.Jets.Flavour = append(buf.Jets.Flavour, row.JetFlavour...)

	buf.MET = METColumns{Pt: row.METPt, Phi: row.METPhi}
	buf.NumPV = row.NumPV
}

func fillFromSimulationRow(buf *RowBuffer, row *simulationRow) {
	buf.Leptons.Pt = append(buf.Leptons.Pt, row.LeptonPt...)
	buf.Leptons.Eta = append(buf.Leptons.Eta, row.LeptonEta...)
	buf.Leptons.Phi = append(buf.Leptons.Phi, row.LeptonPhi...)
	buf.Leptons.Isolation = append(buf.Leptons.Isolation, row.LeptonIsolation...)
	buf.Leptons.Flavour = append(buf.Leptons.Flavour, row.LeptonFlavour...)

	buf.Jets.Pt = append(buf.Jets.Pt, row.JetPt...)
	buf.Jets.Eta = append(buf.Jets.Eta, row.JetEta...)
	buf.Jets.Phi = append(buf.Jets.Phi, row.JetPhi...)
	buf.Jets.BTag = append(buf.Jets.BTag, row.JetBTag...)
	buf.Jets.Flavour = append(buf.Jets.Flavour, row.JetFlavour...)

	buf.MET = METColumns{Pt: row.METPt, Phi: row.METPhi}
	buf.NumPV = row.NumPV

	buf.JetsJECUp.Pt = append(buf.JetsJECUp.Pt, row.JetJECUpPt...)
	buf.JetsJECUp.Eta = append(buf.JetsJECUp.Eta, row.JetJECUpEta...)
	buf.JetsJECUp.Phi = append(buf.JetsJECUp.Phi, row.JetJECUpPhi...)
	buf.JetsJECUp.BTag = append(buf.JetsJECUp.BTag, row.JetJECUpBTag...)
	buf.JetsJECUp.Flavour = append(buf.JetsJECUp.Flavour, row.JetJECUpFlavour...)

	buf.JetsJECDown.Pt = append(buf.JetsJECDown.Pt, row.JetJECDownPt...)
	buf.JetsJECDown.Eta = append(buf.JetsJECDown.Eta, row.JetJECDownEta...)
	buf.JetsJECDown.Phi = append(buf.JetsJECDown.Phi, row.JetJECDownPhi...)
	buf.JetsJECDown.BTag = append(buf.JetsJECDown.BTag, row.JetJECDownBTag...)
	buf.JetsJECDown.Flavour = append(buf.JetsJECDown.Flavour, row.JetJECDownFlavour...)

	buf.METJECUp = METColumns{Pt: row.METJECUpPt, Phi: row.METJECUpPhi}
	buf.METJECDown = METColumns{Pt: row.METJECDownPt, Phi: row.METJECDownPhi}
	buf.RawWeight = row.RawWeight
}

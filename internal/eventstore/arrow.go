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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// arrowSource reads a partition through the Arrow record reader. Records
// are decoded into a reusable row batch and released immediately, so no
// Arrow memory outlives a refill.
type arrowSource struct {
	f         *os.File
	pr        *file.Reader
	rr        pqarrow.RecordReader
	partition string
	columns   ColumnSet
	fields    map[string]int
	numRows   int64
	rowsRead  int64
	batch     []RowBuffer
	buffered  int
	next      int
	closed    bool
	exhausted bool
}

var _ RowSource = (*arrowSource)(nil)

func openArrowSource(path, partition string, columns ColumnSet, batchSize int) (RowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open partition %q: %w", partition, err)
	}
	pr, err := file.NewParquetReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet for partition %q: %w", partition, err)
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	props := pqarrow.ArrowReadProperties{BatchSize: int64(batchSize)}
	fr, err := pqarrow.NewFileReader(pr, props, memory.DefaultAllocator)
	if err != nil {
		_ = pr.Close()
		_ = f.Close()
		return nil, fmt.Errorf("create arrow file reader for partition %q: %w", partition, err)
	}

	arrowSchema, err := fr.Schema()
	if err != nil {
		_ = pr.Close()
		_ = f.Close()
		return nil, fmt.Errorf("read arrow schema for partition %q: %w", partition, err)
	}
	fields := make(map[string]int, arrowSchema.NumFields())
	present := make(map[string]bool, arrowSchema.NumFields())
	for i, fld := range arrowSchema.Fields() {
		fields[fld.Name] = i
		present[fld.Name] = true
	}
	if err := checkColumnsPresent(partition, present, columns); err != nil {
		_ = pr.Close()
		_ = f.Close()
		return nil, err
	}

	rr, err := fr.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		_ = pr.Close()
		_ = f.Close()
		return nil, fmt.Errorf("create record reader for partition %q: %w", partition, err)
	}

	return &arrowSource{
		f:         f,
		pr:        pr,
		rr:        rr,
		partition: partition,
		columns:   columns,
		fields:    fields,
		numRows:   pr.NumRows(),
	}, nil
}

func (s *arrowSource) NumRows() int64 { return s.numRows }

func (s *arrowSource) ReadRow(buf *RowBuffer) error {
	if s.closed {
		return ErrClosed
	}
	if s.next >= s.buffered {
		if err := s.refill(); err != nil {
			return err
		}
	}
	row := &s.batch[s.next]
	s.next++

	buf.Reset()
	copyRow(buf, row)
	if err := buf.check(s.columns); err != nil {
		return &CorruptPartitionError{Partition: s.partition, Row: s.rowsRead, Err: err}
	}
	s.rowsRead++
	recordRowsRead(ArrowEngine, 1)
	return nil
}

func (s *arrowSource) refill() error {
	if s.exhausted {
		return io.EOF
	}
	rec, err := s.rr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.exhausted = true
			return io.EOF
		}
		return fmt.Errorf("arrow read on partition %q: %w", s.partition, err)
	}
	if rec == nil || rec.NumRows() == 0 {
		s.exhausted = true
		return io.EOF
	}
	defer rec.Release()

	if err := s.decodeRecord(rec); err != nil {
		return err
	}
	s.next = 0
	return nil
}

// decodeRecord copies an Arrow record into the reusable row batch so the
// record can be released before any row is served.
func (s *arrowSource) decodeRecord(rec arrow.Record) error {
	n := int(rec.NumRows())
	s.batch = slices.Grow(s.batch[:0], n)[:n]
	s.buffered = n

	col := func(name string) arrow.Array {
		return rec.Column(s.fields[name])
	}

	for i := 0; i < n; i++ {
		row := &s.batch[i]
		row.Reset()
		var err error

		if row.Leptons.Pt, err = appendListFloat32(row.Leptons.Pt, col("lept_pt"), i); err != nil {
			return s.decodeError("lept_pt", i, err)
		}
		if row.Leptons.Eta, err = appendListFloat32(row.Leptons.Eta, col("lept_eta"), i); err != nil {
			return s.decodeError("lept_eta", i, err)
		}
		if row.Leptons.Phi, err = appendListFloat32(row.Leptons.Phi, col("lept_phi"), i); err != nil {
			return s.decodeError("lept_phi", i, err)
		}
		if row.Leptons.Isolation, err = appendListFloat32(row.Leptons.Isolation, col("lept_iso"), i); err != nil {
			return s.decodeError("lept_iso", i, err)
		}
		if row.Leptons.Flavour, err = appendListInt32(row.Leptons.Flavour, col("lept_flav"), i); err != nil {
			return s.decodeError("lept_flav", i, err)
		}

		if err = decodeJetColumns(&row.Jets, col, "jet_pt", "jet_eta", "jet_phi", "jet_btagdiscri", "jet_flav", i); err != nil {
			return s.decodeError("jet", i, err)
		}

		if row.MET.Pt, err = float32At(col("met_pt"), i); err != nil {
			return s.decodeError("met_pt", i, err)
		}
		if row.MET.Phi, err = float32At(col("met_phi"), i); err != nil {
			return s.decodeError("met_phi", i, err)
		}
		if row.NumPV, err = int32At(col("nvertex"), i); err != nil {
			return s.decodeError("nvertex", i, err)
		}

		if s.columns != SimulationColumns {
			continue
		}

		if err = decodeJetColumns(&row.JetsJECUp, col, "jet_jesup_pt", "jet_jesup_eta", "jet_jesup_phi", "jet_jesup_btagdiscri", "jet_jesup_flav", i); err != nil {
			return s.decodeError("jet_jesup", i, err)
		}
		if err = decodeJetColumns(&row.JetsJECDown, col, "jet_jesdown_pt", "jet_jesdown_eta", "jet_jesdown_phi", "jet_jesdown_btagdiscri", "jet_jesdown_flav", i); err != nil {
			return s.decodeError("jet_jesdown", i, err)
		}

		if row.METJECUp.Pt, err = float32At(col("met_jesup_pt"), i); err != nil {
			return s.decodeError("met_jesup_pt", i, err)
		}
		if row.METJECUp.Phi, err = float32At(col("met_jesup_phi"), i); err != nil {
			return s.decodeError("met_jesup_phi", i, err)
		}
		if row.METJECDown.Pt, err = float32At(col("met_jesdown_pt"), i); err != nil {
			return s.decodeError("met_jesdown_pt", i, err)
		}
		if row.METJECDown.Phi, err = float32At(col("met_jesdown_phi"), i); err != nil {
			return s.decodeError("met_jesdown_phi", i, err)
		}
		if row.RawWeight, err = float32At(col("evtweight"), i); err != nil {
			return s.decodeError("evtweight", i, err)
		}
	}
	return nil
}

func (s *arrowSource) decodeError(column string, i int, err error) error {
	return &CorruptPartitionError{
		Partition: s.partition,
		Row:       s.rowsRead + int64(i),
		Err:       fmt.Errorf("column %s: %w", column, err),
	}
}

func (s *arrowSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.rr != nil {
		s.rr.Release()
		s.rr = nil
	}
	var err error
	if s.pr != nil {
		err = s.pr.Close()
		s.pr = nil
	}
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	return err
}

func decodeJetColumns(dst *JetColumns, col func(string) arrow.Array, pt, eta, phi, btag, flav string, i int) error {
	var err error
	if dst.Pt, err = appendListFloat32(dst.Pt, col(pt), i); err != nil {
		return err
	}
	if dst.Eta, err = appendListFloat32(dst.Eta, col(eta), i); err != nil {
		return err
	}
	if dst.Phi, err = appendListFloat32(dst.Phi, col(phi), i); err != nil {
		return err
	}
	if dst.BTag, err = appendListFloat32(dst.BTag, col(btag), i); err != nil {
		return err
	}
	if dst.Flavour, err = appendListInt32(dst.Flavour, col(flav), i); err != nil {
		return err
	}
	return nil
}

func appendListFloat32(dst []float32, col arrow.Array, i int) ([]float32, error) {
	l, ok := col.(*array.List)
	if !ok {
		return dst, fmt.Errorf("expected list column, got %T", col)
	}
	start, end := l.ValueOffsets(i)
	vals, ok := l.ListValues().(*array.Float32)
	if !ok {
		return dst, fmt.Errorf("expected float32 list values, got %T", l.ListValues())
	}
	for j := start; j < end; j++ {
		dst = append(dst, vals.Value(int(j)))
	}
	return dst, nil
}

func appendListInt32(dst []int32, col arrow.Array, i int) ([]int32, error) {
	l, ok := col.(*array.List)
	if !ok {
		return dst, fmt.Errorf("expected list column, got %T", col)
	}
	start, end := l.ValueOffsets(i)
	vals, ok := l.ListValues().(*array.Int32)
	if !ok {
		return dst, fmt.Errorf("expected int32 list values, got %T", l.ListValues())
	}
	for j := start; j < end; j++ {
		dst = append(dst, vals.Value(int(j)))
	}
	return dst, nil
}

func float32At(col arrow.Array, i int) (float32, error) {
	c, ok := col.(*array.Float32)
	if !ok {
		return 0, fmt.Errorf("expected float32 column, got %T", col)
	}
	return c.Value(i), nil
}

func int32At(col arrow.Array, i int) (int32, error) {
	c, ok := col.(*array.Int32)
	if !ok {
		return 0, fmt.Errorf("expected int32 column, got %T", col)
	}
	return c.Value(i), nil
}

// copyRow appends src's values into dst, which the caller has Reset.
func copyRow(dst, src *RowBuffer) {
	dst.Leptons.Pt = append(dst.Leptons.Pt, src.Leptons.Pt...)
	dst.Leptons.Eta = append(dst.Leptons.Eta, src.Leptons.Eta...)
	dst.Leptons.Phi = append(dst.Leptons.Phi, src.Leptons.Phi...)
	dst.Leptons.Isolation = append(dst.Leptons.Isolation, src.Leptons.Isolation...)
	dst.Leptons.Flavour = append(dst.Leptons.Flavour, src.Leptons.Flavour...)

	copyJetColumns(&dst.Jets, &src.Jets)
	dst.MET = src.MET
	dst.NumPV = src.NumPV

	copyJetColumns(&dst.JetsJECUp, &src.JetsJECUp)
	copyJetColumns(&dst.JetsJECDown, &src.JetsJECDown)
	dst.METJECUp = src.METJECUp
	dst.METJECDown = src.METJECDown
	dst.RawWeight = src.RawWeight
}

func copyJetColumns(dst, src *JetColumns) {
	dst.Pt = append(dst.Pt, src.Pt...)
	dst.Eta = append(dst.Eta, src.Eta...)
	dst.Phi = append(dst.Phi, src.Phi...)
	dst.BTag = append(dst.BTag, src.BTag...)
	dst.Flavour = append(dst.Flavour, src.Flavour...)
}

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
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

func writerOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&parquet.Zstd),
		parquet.PageBufferSize(32 * 1024),
	}
}

// parquetWriter appends rows to a partition file. Writes always use the
// parquet engine regardless of the store's read engine.
type parquetWriter[T any] struct {
	f       *os.File
	writer  *parquet.GenericWriter[T]
	columns ColumnSet
	pack    func(*T, *RowBuffer)
	scratch []T
	closed  bool
}

func newParquetWriter(path string, columns ColumnSet) (RowWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create partition file: %w", err)
	}
	if columns == SimulationColumns {
		return &parquetWriter[simulationRow]{
			f:       f,
			writer:  parquet.NewGenericWriter[simulationRow](f, writerOptions()...),
			columns: columns,
			pack:    packSimulationRow,
			scratch: make([]simulationRow, 1),
		}, nil
	}
	return &parquetWriter[dataRow]{
		f:       f,
		writer:  parquet.NewGenericWriter[dataRow](f, writerOptions()...),
		columns: columns,
		pack:    packDataRow,
		scratch: make([]dataRow, 1),
	}, nil
}

func (w *parquetWriter[T]) WriteRow(buf *RowBuffer) error {
	if w.closed {
		return ErrClosed
	}
	if err := buf.check(w.columns); err != nil {
		return fmt.Errorf("refusing to write row: %w", err)
	}
	w.pack(&w.scratch[0], buf)
	if _, err := w.writer.Write(w.scratch); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	recordRowsWritten(1)
	return nil
}

func (w *parquetWriter[T]) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.writer.Close()
	if cerr := w.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// The pack functions may alias the buffer's slices: GenericWriter.Write
// deconstructs rows into column buffers before returning.

func packDataRow(row *dataRow, buf *RowBuffer) {
	row.LeptonPt = buf.Leptons.Pt
	row.LeptonEta = buf.Leptons.Eta
	row.LeptonPhi = buf.Leptons.Phi
	row.LeptonIsolation = buf.Leptons.Isolation
	row.LeptonFlavour = buf.Leptons.Flavour

	row.JetPt = buf.Jets.Pt
	row.JetEta = buf.Jets.Eta
	row.JetPhi = buf.Jets.Phi
	row.JetBTag = buf.Jets.BTag
	row.JetFlavour = buf.Jets.Flavour

	row.METPt = buf.MET.Pt
	row.METPhi = buf.MET.Phi
	row.NumPV = buf.NumPV
}

func packSimulationRow(row *simulationRow, buf *RowBuffer) {
	row.LeptonPt = buf.Leptons.Pt
	row.LeptonEta = buf.Leptons.Eta
	row.LeptonPhi = buf.Leptons.Phi
	row.LeptonIsolation = buf.Leptons.Isolation
	row.LeptonFlavour = buf.Leptons.Flavour

	row.JetPt = buf.Jets.Pt
	row.JetEta = buf.Jets.Eta
	row.JetPhi = buf.Jets.Phi
	row.JetBTag = buf.Jets.BTag
	row.JetFlavour = buf.Jets.Flavour

	row.METPt = buf.MET.Pt
	row.METPhi = buf.MET.Phi
	row.NumPV = buf.NumPV

	row.JetJECUpPt = buf.JetsJECUp.Pt
	row.JetJECUpEta = buf.JetsJECUp.Eta
	row.JetJECUpPhi = buf.JetsJECUp.Phi
	row.JetJECUpBTag = buf.JetsJECUp.BTag
	row.JetJECUpFlavour = buf.JetsJECUp.Flavour

	row.JetJECDownPt = buf.JetsJECDown.Pt
	row.JetJECDownEta = buf.JetsJECDown.Eta
	row.JetJECDownPhi = buf.JetsJECDown.Phi
	row.JetJECDownBTag = buf.JetsJECDown.BTag
	row.JetJECDownFlavour = buf.JetsJECDown.Flavour

	row.METJECUpPt = buf.METJECUp.Pt
	row.METJECUpPhi = buf.METJECUp.Phi
	row.METJECDownPt = buf.METJECDown.Pt
	row.METJECDownPhi = buf.METJECDown.Phi
	row.RawWeight = buf.RawWeight
}

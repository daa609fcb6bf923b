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

import "fmt"

// LeptonColumns holds one row's lepton collection in columnar form; index i
// across every slice describes the same lepton.
type LeptonColumns struct {
	Pt        []float32
	Eta       []float32
	Phi       []float32
	Isolation []float32
	Flavour   []int32
}

func (c *LeptonColumns) reset() {
	c.Pt = c.Pt[:0]
	c.Eta = c.Eta[:0]
	c.Phi = c.Phi[:0]
	c.Isolation = c.Isolation[:0]
	c.Flavour = c.Flavour[:0]
}

func (c *LeptonColumns) checkLengths() error {
	n := len(c.Pt)
	if len(c.Eta) != n || len(c.Phi) != n || len(c.Isolation) != n || len(c.Flavour) != n {
		return fmt.Errorf("lepton columns have mismatched lengths: pt=%d eta=%d phi=%d iso=%d flav=%d",
			len(c.Pt), len(c.Eta), len(c.Phi), len(c.Isolation), len(c.Flavour))
	}
	return nil
}

// JetColumns holds one row's jet collection in columnar form.
type JetColumns struct {
	Pt      []float32
	Eta     []float32
	Phi     []float32
	BTag    []float32
	Flavour []int32
}

func (c *JetColumns) reset() {
	c.Pt = c.Pt[:0]
	c.Eta = c.Eta[:0]
	c.Phi = c.Phi[:0]
	c.BTag = c.BTag[:0]
	c.Flavour = c.Flavour[:0]
}

func (c *JetColumns) checkLengths() error {
	n := len(c.Pt)
	if len(c.Eta) != n || len(c.Phi) != n || len(c.BTag) != n || len(c.Flavour) != n {
		return fmt.Errorf("jet columns have mismatched lengths: pt=%d eta=%d phi=%d btag=%d flav=%d",
			len(c.Pt), len(c.Eta), len(c.Phi), len(c.BTag), len(c.Flavour))
	}
	return nil
}

// METColumns holds one row's missing transverse energy.
type METColumns struct {
	Pt  float32
	Phi float32
}

// RowBuffer is the structured row a partition binding fills on each read.
// The JEC-variant collections and RawWeight are populated only when the
// binding was opened with SimulationColumns; they stay empty and zero for
// DataColumns bindings. Slices keep their capacity across Reset so a single
// buffer can serve an entire partition without reallocating.
type RowBuffer struct {
	Leptons LeptonColumns
	Jets    JetColumns
	MET     METColumns
	NumPV   int32

	JetsJECUp   JetColumns
	JetsJECDown JetColumns
	METJECUp    METColumns
	METJECDown  METColumns
	RawWeight   float32
}

// Reset clears the buffer for reuse, keeping slice capacity.
func (b *RowBuffer) Reset() {
	b.Leptons.reset()
	b.Jets.reset()
	b.MET = METColumns{}
	b.NumPV = 0

	b.JetsJECUp.reset()
	b.JetsJECDown.reset()
	b.METJECUp = METColumns{}
	b.METJECDown = METColumns{}
	b.RawWeight = 0
}

// check validates the cross-column length invariants for the given column
// set. Engines call it on every row so shape corruption surfaces at the row
// it happens, not as a later index panic.
func (b *RowBuffer) check(columns ColumnSet) error {
	if err := b.Leptons.checkLengths(); err != nil {
		return err
	}
	if err := b.Jets.checkLengths(); err != nil {
		return err
	}
	if columns != SimulationColumns {
		return nil
	}
	if err := b.JetsJECUp.checkLengths(); err != nil {
		return fmt.Errorf("jec up: %w", err)
	}
	if err := b.JetsJECDown.checkLengths(); err != nil {
		return fmt.Errorf("jec down: %w", err)
	}
	return nil
}

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

package btag

import (
	"math"

	"github.com/cardinalhq/ntuplerunner/internal/physics"
	"github.com/cardinalhq/ntuplerunner/internal/systematics"
)

// CSVReweighter scores jets against a loaded calibration. It satisfies the
// event reader's JetWeighter interface.
type CSVReweighter struct {
	cal Calibration
}

// NewCSVReweighter wraps an already validated calibration.
func NewCSVReweighter(cal Calibration) *CSVReweighter {
	return &CSVReweighter{cal: cal}
}

// LoadCSVReweighter loads a calibration file and wraps it.
func LoadCSVReweighter(path string) (*CSVReweighter, error) {
	cal, err := LoadCalibration(path)
	if err != nil {
		return nil, err
	}
	return NewCSVReweighter(cal), nil
}

// JetWeight returns the calibration weight for one jet under the given
// variation. Jets below 20 GeV or beyond |eta| 2.4 are outside the measured
// range and weigh 1. Variations a flavour class has no table for fall back
// to that class's nominal table, so a b-tag light variation leaves bottom
// jets untouched.
func (rw *CSVReweighter) JetWeight(jet physics.Jet, typ systematics.Type, dir systematics.Direction) float64 {
	ptBin := binIndex(jet.Pt, ptBinEdges[:])
	etaBin := binIndex(math.Abs(jet.Eta), etaBinEdges[:])
	if ptBin < 0 || ptBin >= numPtBinsHF || etaBin < 0 || etaBin >= numEtaBinsLF {
		return 1
	}

	sel := systematics.NewSelection(typ, dir)
	csv := jet.BTag

	switch jet.Flavour {
	case 5, -5:
		return lookupHF(rw.cal.Bottom, sel, ptBin, csv)
	case 4, -4:
		return lookupHF(rw.cal.Charm, sel, ptBin, csv)
	default:
		if ptBin >= numPtBinsLF {
			ptBin = numPtBinsLF - 1
		}
		rows, ok := rw.cal.Light[sel]
		if !ok {
			rows = rw.cal.Light[selNominal]
		}
		return rows[ptBin][etaBin].Lookup(csv)
	}
}

func lookupHF(tables map[systematics.Selection][]WeightBins, sel systematics.Selection, ptBin int, csv float64) float64 {
	cells, ok := tables[sel]
	if !ok {
		cells = tables[selNominal]
	}
	return cells[ptBin].Lookup(csv)
}

// binIndex returns the index of the bin whose lower edge is the greatest
// edge not exceeding v, or -1 when v lies below the first edge. The last
// bin is open ended.
func binIndex(v float64, edges []float64) int {
	i := -1
	for _, edge := range edges {
		if v < edge {
			break
		}
		i++
	}
	return i
}

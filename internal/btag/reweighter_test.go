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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/ntuplerunner/internal/physics"
	"github.com/cardinalhq/ntuplerunner/internal/systematics"
)

func flat(w float64) WeightBins {
	return WeightBins{Edges: []float64{0, 1.000001}, Weights: []float64{w}}
}

func flatCells(w float64, n int) []WeightBins {
	cells := make([]WeightBins, n)
	for i := range cells {
		cells[i] = flat(w)
	}
	return cells
}

// testCalibration starts from the unit calibration and plants distinctive
// weights so table routing is observable.
func testCalibration() Calibration {
	cal := UnitCalibration()

	cal.Bottom[selNominal] = flatCells(0.9, numPtBinsHF)
	cal.Bottom[systematics.NewSelection(systematics.BTagPurityHF, systematics.Up)] = flatCells(0.95, numPtBinsHF)
	cal.Charm[selNominal] = flatCells(0.8, numPtBinsHF)

	light := make([][]WeightBins, numPtBinsLF)
	for i := range light {
		light[i] = make([]WeightBins, numEtaBinsLF)
		for j := range light[i] {
			light[i][j] = flat(1 + 0.1*float64(i) + 0.01*float64(j))
		}
	}
	cal.Light[selNominal] = light
	return cal
}

func jet(pt, eta, csv float64, flavour int32) physics.Jet {
	return physics.NewJet(pt, eta, 0, csv, flavour)
}

func TestBinIndex(t *testing.T) {
	tests := []struct {
		v    float64
		want int
	}{
		{19.99, -1},
		{20, 0},
		{29.9, 0},
		{30, 1},
		{59.9, 2},
		{60, 3},
		{100, 4},
		{159.9, 4},
		{160, 5},
		{1000, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, binIndex(tt.v, ptBinEdges[:]), "pt %v", tt.v)
	}

	assert.Equal(t, 0, binIndex(0, etaBinEdges[:]))
	assert.Equal(t, 0, binIndex(0.79, etaBinEdges[:]))
	assert.Equal(t, 1, binIndex(0.8, etaBinEdges[:]))
	assert.Equal(t, 2, binIndex(2.39, etaBinEdges[:]))
	assert.Equal(t, 3, binIndex(2.4, etaBinEdges[:]))
}

func TestWeightBinsLookup(t *testing.T) {
	b := WeightBins{Edges: []float64{0.1, 0.5, 1.0}, Weights: []float64{1.1, 1.3}}

	// Negative discriminators mean "no tagger inputs" and use the first bin.
	assert.Equal(t, 1.1, b.Lookup(-1))
	// Below the first edge but non-negative is out of range.
	assert.Equal(t, 0.0, b.Lookup(0.05))
	assert.Equal(t, 1.1, b.Lookup(0.1))
	assert.Equal(t, 1.1, b.Lookup(0.3))
	assert.Equal(t, 1.3, b.Lookup(0.5))
	assert.Equal(t, 1.3, b.Lookup(0.99))
	// At or beyond the top edge is out of range.
	assert.Equal(t, 0.0, b.Lookup(1.0))
	assert.Equal(t, 0.0, b.Lookup(7))
}

func TestJetWeightFlavourRouting(t *testing.T) {
	rw := NewCSVReweighter(testCalibration())

	nominal := func(j physics.Jet) float64 {
		return rw.JetWeight(j, systematics.Nominal, systematics.Up)
	}

	assert.InDelta(t, 0.9, nominal(jet(50, 0.5, 0.7, 5)), 1e-12)
	assert.InDelta(t, 0.9, nominal(jet(50, 0.5, 0.7, -5)), 1e-12)
	assert.InDelta(t, 0.8, nominal(jet(50, 0.5, 0.7, 4)), 1e-12)
	assert.InDelta(t, 0.8, nominal(jet(50, 0.5, 0.7, -4)), 1e-12)

	// Anything else is light: pt 50 is pt bin 2, |eta| 0.5 is eta bin 0.
	assert.InDelta(t, 1.2, nominal(jet(50, 0.5, 0.7, 0)), 1e-12)
	assert.InDelta(t, 1.2, nominal(jet(50, -0.5, 0.7, 21)), 1e-12)
	// Eta bin 2.
	assert.InDelta(t, 1.22, nominal(jet(50, -2.0, 0.7, 1)), 1e-12)
}

func TestJetWeightOutOfRangeIsUnity(t *testing.T) {
	rw := NewCSVReweighter(testCalibration())

	assert.Equal(t, 1.0, rw.JetWeight(jet(19, 0.5, 0.7, 5), systematics.Nominal, systematics.Up))
	assert.Equal(t, 1.0, rw.JetWeight(jet(50, 2.5, 0.7, 5), systematics.Nominal, systematics.Up))
	assert.Equal(t, 1.0, rw.JetWeight(jet(50, -3.0, 0.7, 0), systematics.Nominal, systematics.Up))
}

func TestJetWeightLightPtClipping(t *testing.T) {
	rw := NewCSVReweighter(testCalibration())

	// 120 GeV is pt bin 4, beyond the light tables; it clips to bin 3.
	w := rw.JetWeight(jet(120, 0.5, 0.7, 0), systematics.Nominal, systematics.Up)
	assert.InDelta(t, 1.3, w, 1e-12)

	// Bottom jets at the same pt use their own bin 4.
	wb := rw.JetWeight(jet(120, 0.5, 0.7, 5), systematics.Nominal, systematics.Up)
	assert.InDelta(t, 0.9, wb, 1e-12)
}

func TestJetWeightSelectionFallsBackToNominal(t *testing.T) {
	rw := NewCSVReweighter(testCalibration())

	// Bottom has a dedicated purity-HF table.
	w := rw.JetWeight(jet(50, 0.5, 0.7, 5), systematics.BTagPurityHF, systematics.Up)
	assert.InDelta(t, 0.95, w, 1e-12)

	// Charm has no purity-HF table and falls back to its nominal.
	w = rw.JetWeight(jet(50, 0.5, 0.7, 4), systematics.BTagPurityHF, systematics.Up)
	assert.InDelta(t, 0.8, w, 1e-12)

	// Light has no charm-uncertainty table and falls back to its nominal.
	w = rw.JetWeight(jet(50, 0.5, 0.7, 0), systematics.BTagCharmUnc1, systematics.Down)
	assert.InDelta(t, 1.2, w, 1e-12)
}

func TestJetWeightNominalDirectionCollapses(t *testing.T) {
	rw := NewCSVReweighter(testCalibration())

	up := rw.JetWeight(jet(50, 0.5, 0.7, 5), systematics.Nominal, systematics.Up)
	down := rw.JetWeight(jet(50, 0.5, 0.7, 5), systematics.Nominal, systematics.Down)
	assert.Equal(t, up, down)
}

func TestUnitCalibrationWeighsOne(t *testing.T) {
	rw := NewCSVReweighter(UnitCalibration())
	for _, flav := range []int32{5, 4, 0} {
		for _, typ := range systematics.Types() {
			w := rw.JetWeight(jet(45, 1.0, 0.6, flav), typ, systematics.Down)
			assert.Equal(t, 1.0, w, "flavour %d type %s", flav, typ)
		}
	}
}

func TestWeightBinsValidate(t *testing.T) {
	require.NoError(t, flat(1).validate())

	bad := WeightBins{Edges: []float64{0, 1}, Weights: nil}
	assert.Error(t, bad.validate())

	bad = WeightBins{Edges: []float64{0}, Weights: []float64{1}}
	assert.Error(t, bad.validate())

	bad = WeightBins{Edges: []float64{0, 0.5, 0.5}, Weights: []float64{1, 2}}
	assert.Error(t, bad.validate())
}

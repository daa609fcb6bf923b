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

package cmd

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/ntuplerunner/internal/btag"
	"github.com/cardinalhq/ntuplerunner/internal/eventstore"
	"github.com/cardinalhq/ntuplerunner/internal/physics"
	"github.com/cardinalhq/ntuplerunner/internal/systematics"
)

func TestSynthesizeEventShapes(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var buf eventstore.RowBuffer

	for i := 0; i < 200; i++ {
		synthesizeEvent(rng, eventstore.SimulationColumns, &buf)
		nJets := len(buf.Jets.Pt)
		assert.GreaterOrEqual(t, nJets, 1)
		assert.Equal(t, nJets, len(buf.JetsJECUp.Pt))
		assert.Equal(t, nJets, len(buf.JetsJECDown.Pt))
		assert.NotEmpty(t, buf.Leptons.Pt)
		assert.Positive(t, buf.RawWeight)
		assert.Positive(t, buf.MET.Pt)
		assert.GreaterOrEqual(t, buf.NumPV, int32(1))

		for j := 0; j < nJets; j++ {
			assert.Greater(t, buf.JetsJECUp.Pt[j], buf.Jets.Pt[j], "JEC up raises pt")
			assert.Less(t, buf.JetsJECDown.Pt[j], buf.Jets.Pt[j], "JEC down lowers pt")
			assert.Equal(t, buf.Jets.Eta[j], buf.JetsJECUp.Eta[j], "JEC keeps direction")
		}
	}
}

func TestSynthesizeEventDataHasNoVariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	var buf eventstore.RowBuffer

	synthesizeEvent(rng, eventstore.DataColumns, &buf)
	assert.Empty(t, buf.JetsJECUp.Pt)
	assert.Empty(t, buf.JetsJECDown.Pt)
	assert.Zero(t, buf.METJECUp.Pt)
	assert.Zero(t, buf.RawWeight)
}

func TestSynthesizeEventDeterministic(t *testing.T) {
	var a, b eventstore.RowBuffer
	synthesizeEvent(rand.New(rand.NewPCG(7, 7)), eventstore.SimulationColumns, &a)
	synthesizeEvent(rand.New(rand.NewPCG(7, 7)), eventstore.SimulationColumns, &b)
	assert.Equal(t, a.Jets.Pt, b.Jets.Pt)
	assert.Equal(t, a.RawWeight, b.RawWeight)
}

func TestWrapPhi(t *testing.T) {
	for _, phi := range []float64{0, 1, -1, math.Pi - 0.001, -math.Pi + 0.001, 5, -5, 12.5} {
		wrapped := wrapPhi(phi)
		assert.GreaterOrEqual(t, wrapped, -math.Pi)
		assert.Less(t, wrapped, math.Pi)
		// The wrapped angle points the same way.
		assert.InDelta(t, math.Cos(phi), math.Cos(wrapped), 1e-12)
		assert.InDelta(t, math.Sin(phi), math.Sin(wrapped), 1e-12)
	}
}

func TestDemoCalibrationIsValid(t *testing.T) {
	cal := demoCalibration()

	path := filepath.Join(t.TempDir(), "csv.yaml")
	require.NoError(t, btag.WriteCalibration(path, cal))

	rw, err := btag.LoadCSVReweighter(path)
	require.NoError(t, err)

	// Tagged b jet in range gets a non-unit weight.
	jet := physics.NewJet(50, 1.0, 0, 0.8, 5)
	w := rw.JetWeight(jet, systematics.Nominal, systematics.Up)
	assert.NotEqual(t, 1.0, w)
	assert.Greater(t, w, 0.5)
	assert.Less(t, w, 1.5)

	// Up and down shifts straddle the nominal weight.
	up := rw.JetWeight(jet, systematics.BTagPurityHF, systematics.Up)
	down := rw.JetWeight(jet, systematics.BTagPurityHF, systematics.Down)
	assert.Greater(t, up, w)
	assert.Less(t, down, w)
}

func TestJetCSVBottomEnriched(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	for i := 0; i < 100; i++ {
		csv := jetCSV(rng, 5)
		if csv >= 0 {
			assert.GreaterOrEqual(t, csv, float32(0.4))
		}
	}
}

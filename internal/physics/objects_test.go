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

package physics

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeptonMass(t *testing.T) {
	tests := []struct {
		name    string
		flavour int32
		mass    float64
	}{
		{"electron", 11, 0.000511},
		{"positron", -11, 0.000511},
		{"muon", 13, 0.105658},
		{"antimuon", -13, 0.105658},
		{"tau", 15, 1.77686},
		{"antitau", -15, 1.77686},
		{"unknown", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLepton(tt.flavour, 30, 0.5, 1.0, 0.1)
			assert.Equal(t, tt.mass, l.Mass)
			assert.Equal(t, tt.flavour, l.Flavour)
		})
	}
}

func TestCandidateMomentumComponents(t *testing.T) {
	c := Candidate{Pt: 3, Eta: 0, Phi: 0}
	assert.InDelta(t, 3, c.Px(), 1e-12)
	assert.InDelta(t, 0, c.Py(), 1e-12)
	assert.InDelta(t, 0, c.Pz(), 1e-12)

	c = Candidate{Pt: 3, Eta: 1.2, Phi: math.Pi / 2}
	assert.InDelta(t, 0, c.Px(), 1e-12)
	assert.InDelta(t, 3, c.Py(), 1e-12)
	assert.InDelta(t, 3*math.Sinh(1.2), c.Pz(), 1e-12)
	assert.InDelta(t, 3*math.Cosh(1.2), c.P(), 1e-12)
}

func TestCandidateEnergy(t *testing.T) {
	c := Candidate{Pt: 4, Eta: 0, Phi: 0, Mass: 3}
	assert.InDelta(t, 5, c.Energy(), 1e-12)

	// Massless candidates have E == |p|.
	c = Candidate{Pt: 7, Eta: 2.1}
	assert.InDelta(t, c.P(), c.Energy(), 1e-12)
}

func TestDeltaPhiWraps(t *testing.T) {
	a := Candidate{Phi: 3.0}
	b := Candidate{Phi: -3.0}
	d := a.DeltaPhi(b)
	require.LessOrEqual(t, math.Abs(d), math.Pi)
	assert.InDelta(t, 6.0-2*math.Pi, d, 1e-12)
	assert.InDelta(t, -d, b.DeltaPhi(a), 1e-12)
}

func TestDeltaR(t *testing.T) {
	a := Candidate{Eta: 1.0, Phi: 0.2}
	b := Candidate{Eta: 1.3, Phi: 0.6}
	assert.InDelta(t, 0.5, a.DeltaR(b), 1e-12)
}

func TestPtDescending(t *testing.T) {
	lo := Candidate{Pt: 10}
	hi := Candidate{Pt: 20}
	assert.Equal(t, -1, PtDescending(hi, lo))
	assert.Equal(t, 1, PtDescending(lo, hi))
	assert.Equal(t, 0, PtDescending(lo, lo))

	jets := []Jet{
		NewJet(25, 0, 0, 0.1, 0),
		NewJet(90, 0, 0, 0.2, 0),
		NewJet(40, 0, 0, 0.3, 0),
	}
	slices.SortStableFunc(jets, func(a, b Jet) int { return PtDescending(a.Candidate, b.Candidate) })
	require.Len(t, jets, 3)
	assert.Equal(t, 90.0, jets[0].Pt)
	assert.Equal(t, 40.0, jets[1].Pt)
	assert.Equal(t, 25.0, jets[2].Pt)
}

func TestNewMET(t *testing.T) {
	m := NewMET(55, -1.4)
	assert.Equal(t, 55.0, m.Pt)
	assert.Equal(t, -1.4, m.Phi)
	assert.Zero(t, m.Eta)
	assert.Zero(t, m.Mass)
}

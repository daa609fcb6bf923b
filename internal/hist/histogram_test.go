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

package hist

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		bins    int
		lo, hi  float64
		wantErr bool
	}{
		{"mtw", 60, 0, 120, false},
		{"", 60, 0, 120, true},
		{"zero-bins", 0, 0, 120, true},
		{"negative-bins", -3, 0, 120, true},
		{"inverted-axis", 10, 120, 0, true},
		{"degenerate-axis", 10, 5, 5, true},
	}
	for _, tt := range tests {
		h, err := New(tt.name, tt.bins, tt.lo, tt.hi)
		if tt.wantErr {
			assert.Error(t, err, "New(%q, %d, %g, %g)", tt.name, tt.bins, tt.lo, tt.hi)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.name, h.Name())
		assert.Equal(t, tt.bins, h.Bins())
	}
}

func TestFillBinning(t *testing.T) {
	h, err := New("test", 4, 0, 8)
	require.NoError(t, err)

	// Bin width is 2: [0,2) [2,4) [4,6) [6,8).
	h.Fill(0, 1)   // bin 0, lower edge inclusive
	h.Fill(1.9, 1) // bin 0
	h.Fill(2, 1)   // bin 1, interior edge belongs to the upper bin
	h.Fill(5, 2.5) // bin 2
	h.Fill(7.9, 1) // bin 3

	assert.Equal(t, []float64{2, 1, 2.5, 1}, h.Counts())
	assert.Equal(t, int64(5), h.Entries())
	assert.Zero(t, h.Underflow())
	assert.Zero(t, h.Overflow())
	assert.InDelta(t, 6.5, h.Integral(), 1e-12)
}

func TestFillUnderOverflow(t *testing.T) {
	h, err := New("test", 10, 0, 100)
	require.NoError(t, err)

	h.Fill(-0.001, 1.5)
	h.Fill(100, 2) // upper edge is exclusive
	h.Fill(250, 3)
	h.Fill(math.Inf(-1), 1)
	h.Fill(math.Inf(1), 1)

	assert.Equal(t, 2.5, h.Underflow())
	assert.Equal(t, 6.0, h.Overflow())
	assert.Equal(t, int64(5), h.Entries())
	assert.Zero(t, h.Integral())
}

func TestFillDropsNaN(t *testing.T) {
	h, err := New("test", 2, 0, 1)
	require.NoError(t, err)

	h.Fill(math.NaN(), 1)
	assert.Equal(t, int64(0), h.Entries())
	assert.Zero(t, h.Integral())
	assert.Zero(t, h.Underflow())
	assert.Zero(t, h.Overflow())
}

func TestFillUpperEdgeRounding(t *testing.T) {
	// Pick an axis whose bin width is not exactly representable so that
	// (x-lo)/width can round up to len(counts) for x just under hi.
	h, err := New("test", 3, 0, 1)
	require.NoError(t, err)

	h.Fill(math.Nextafter(1, 0), 1)
	counts := h.Counts()
	assert.Equal(t, 1.0, counts[2])
	assert.Zero(t, h.Overflow())
}

func TestWeightedFill(t *testing.T) {
	h, err := New("test", 2, 0, 2)
	require.NoError(t, err)

	h.Fill(0.5, 0.25)
	h.Fill(0.5, 0.75)
	h.Fill(1.5, -0.5) // negative weights are legal for simulated samples

	assert.Equal(t, []float64{1, -0.5}, h.Counts())
	assert.InDelta(t, 0.5, h.Integral(), 1e-12)
	assert.Equal(t, int64(3), h.Entries())
}

func TestMarshalJSON(t *testing.T) {
	h, err := New("mtw", 2, 0, 120)
	require.NoError(t, err)
	h.Fill(30, 1.5)
	h.Fill(-5, 1)
	h.Fill(500, 2)

	data, err := json.Marshal(h)
	require.NoError(t, err)

	var got struct {
		Name      string    `json:"name"`
		Bins      int       `json:"bins"`
		Lo        float64   `json:"lo"`
		Hi        float64   `json:"hi"`
		Counts    []float64 `json:"counts"`
		Underflow float64   `json:"underflow"`
		Overflow  float64   `json:"overflow"`
		Entries   int64     `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "mtw", got.Name)
	assert.Equal(t, 2, got.Bins)
	assert.Equal(t, 0.0, got.Lo)
	assert.Equal(t, 120.0, got.Hi)
	assert.Equal(t, []float64{1.5, 0}, got.Counts)
	assert.Equal(t, 1.0, got.Underflow)
	assert.Equal(t, 2.0, got.Overflow)
	assert.Equal(t, int64(3), got.Entries)
}

func TestBounds(t *testing.T) {
	h, err := New("test", 60, 0, 120)
	require.NoError(t, err)
	lo, hi := h.Bounds()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 120.0, hi)
}

func TestCountsReturnsCopy(t *testing.T) {
	h, err := New("test", 2, 0, 2)
	require.NoError(t, err)
	h.Fill(0.5, 1)

	counts := h.Counts()
	counts[0] = 99
	assert.Equal(t, []float64{1, 0}, h.Counts())
}

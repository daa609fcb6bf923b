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

package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIDGenerator_NextID(t *testing.T) {
	gen, err := NewRunIDGenerator()
	require.NoError(t, err, "failed to create RunIDGenerator")

	id := gen.NextID()
	id2 := gen.NextID()
	assert.Positive(t, id)
	assert.Greater(t, id2, id, "NextID() did not return increasing id")
}

func TestDefaultRunIDGenerator(t *testing.T) {
	require.NotNil(t, DefaultRunIDGenerator)
	assert.Positive(t, DefaultRunIDGenerator.NextID())
}

func TestShortID(t *testing.T) {
	id1 := ShortID()
	id2 := ShortID()

	assert.NotEqual(t, id1, id2, "ShortID() returned duplicate IDs")
	assert.Len(t, id1, 8)
	assert.False(t, strings.Contains(id1, "="), "short ID should not contain padding")
	assert.Equal(t, strings.ToLower(id1), id1)
}

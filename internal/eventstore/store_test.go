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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndOpenStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	created, err := Create(dir, "unit test store")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID())
	assert.Equal(t, "unit test store", created.Description())
	assert.Equal(t, dir, created.Location())

	opened, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, created.ID(), opened.ID())
	assert.Equal(t, "unit test store", opened.Description())
}

func TestCreateRefusesExistingStore(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir, "first")
	require.NoError(t, err)

	_, err = Create(dir, "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestOpenRejectsNonStore(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	var ise *InvalidStoreError
	require.ErrorAs(t, err, &ise)
}

func TestOpenRejectsBadManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"unparseable", "{{{not yaml"},
		{"wrong version", "version: 99\nid: 0b8f6f0e-13a5-4a3e-9f94-5c3de1a0d3a4\n"},
		{"missing id", "version: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(tt.manifest), 0o644))

			_, err := Open(dir)
			var ise *InvalidStoreError
			require.ErrorAs(t, err, &ise)
			assert.Equal(t, dir, ise.Dir)
		})
	}
}

func TestOpenPartitionNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := Create(dir, "")
	require.NoError(t, err)

	_, err = s.OpenPartition("NoSuchSample", DataColumns)
	require.Error(t, err)

	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "NoSuchSample", nfe.Partition)
	assert.Equal(t, dir, nfe.Store)
	assert.Contains(t, nfe.Error(), "NoSuchSample")
}

func TestPartitionNameValidation(t *testing.T) {
	s, err := Create(t.TempDir(), "")
	require.NoError(t, err)

	for _, name := range []string{"", "a/b", `a\b`, "../escape"} {
		_, err := s.OpenPartition(name, DataColumns)
		assert.Error(t, err, "name %q", name)
		var nfe *NotFoundError
		assert.False(t, errors.As(err, &nfe), "name %q should fail validation, not lookup", name)

		_, err = s.CreatePartition(name, DataColumns)
		assert.Error(t, err, "name %q", name)
	}
}

func TestPartitionsListsSorted(t *testing.T) {
	s, err := Create(t.TempDir(), "")
	require.NoError(t, err)

	for _, name := range []string{"Wjets", "TTbar", "SingleMuRun2012A"} {
		w, err := s.CreatePartition(name, DataColumns)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	// Non-partition files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(s.Location(), "notes.txt"), []byte("x"), 0o644))

	names, err := s.Partitions()
	require.NoError(t, err)
	assert.Equal(t, []string{"SingleMuRun2012A", "TTbar", "Wjets"}, names)
}

func TestPartitionPath(t *testing.T) {
	assert.Equal(t, filepath.Join("d", "TTbar.parquet"), PartitionPath("d", "TTbar"))
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine("parquet")
	require.NoError(t, err)
	assert.Equal(t, ParquetEngine, e)

	e, err = ParseEngine(" Arrow ")
	require.NoError(t, err)
	assert.Equal(t, ArrowEngine, e)

	e, err = ParseEngine("")
	require.NoError(t, err)
	assert.Equal(t, ParquetEngine, e)

	_, err = ParseEngine("duckdb")
	assert.Error(t, err)
}

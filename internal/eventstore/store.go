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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ColumnSet selects which columns a partition binding registers.
type ColumnSet int

const (
	// DataColumns binds the lepton, jet, missing-energy, and vertex columns
	// present in every partition.
	DataColumns ColumnSet = iota
	// SimulationColumns additionally binds the JEC-variant jet and
	// missing-energy collections and the stored event weight. Opening a
	// data partition with SimulationColumns fails: the columns are absent.
	SimulationColumns
)

func (c ColumnSet) String() string {
	if c == SimulationColumns {
		return "simulation"
	}
	return "data"
}

// Engine selects the read implementation a store hands out bindings from.
// Both engines read the same Parquet partitions and yield identical rows.
type Engine int

const (
	ParquetEngine Engine = iota
	ArrowEngine
)

func (e Engine) String() string {
	if e == ArrowEngine {
		return "arrow"
	}
	return "parquet"
}

// ParseEngine parses an engine name, "parquet" or "arrow".
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "parquet":
		return ParquetEngine, nil
	case "arrow":
		return ArrowEngine, nil
	default:
		return ParquetEngine, fmt.Errorf("unknown store engine %q", s)
	}
}

// RowSource is a bound partition: typed columnar rows served strictly in
// storage order.
type RowSource interface {
	// NumRows reports the total number of rows in the partition.
	NumRows() int64
	// ReadRow fills buf with the next row. It returns io.EOF once every row
	// has been delivered; the source stays exhausted from then on.
	ReadRow(buf *RowBuffer) error
	// Close releases the binding. Closing twice is harmless.
	Close() error
}

// RowWriter appends rows to a partition being created. Close finalizes the
// file; a partition is not readable until its writer has been closed.
type RowWriter interface {
	WriteRow(buf *RowBuffer) error
	Close() error
}

// Store is a validated event-store directory.
type Store interface {
	// OpenPartition binds the named partition for forward reading. The
	// returned error is a *NotFoundError when the store has no such
	// partition.
	OpenPartition(name string, columns ColumnSet) (RowSource, error)
	// CreatePartition creates or replaces the named partition. The columns
	// argument fixes the file schema: SimulationColumns partitions carry
	// the JEC-variant collections and the stored weight.
	CreatePartition(name string, columns ColumnSet) (RowWriter, error)
	// Partitions lists the partition names in the store, sorted.
	Partitions() ([]string, error)
	// Location returns the store's root directory.
	Location() string
	// ID returns the identity minted when the store was created.
	ID() uuid.UUID
	// Description returns the manifest description.
	Description() string
}

const defaultBatchSize = 1000

// Option adjusts how a store reads its partitions.
type Option func(*fileStore)

// WithEngine selects the read engine. The default is ParquetEngine.
func WithEngine(e Engine) Option {
	return func(s *fileStore) { s.engine = e }
}

// WithBatchSize sets how many rows a binding decodes per batch.
func WithBatchSize(n int) Option {
	return func(s *fileStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

type fileStore struct {
	dir       string
	man       Manifest
	engine    Engine
	batchSize int
}

var _ Store = (*fileStore)(nil)

// Open opens an existing store rooted at dir, validating its manifest.
func Open(dir string, opts ...Option) (Store, error) {
	man, err := readManifest(dir)
	if err != nil {
		return nil, &InvalidStoreError{Dir: dir, Err: err}
	}
	s := &fileStore{
		dir:       dir,
		man:       man,
		engine:    ParquetEngine,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create initializes a new store at dir, which must not already hold one,
// and mints its identity.
func Create(dir, description string, opts ...Option) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if _, err := os.Stat(manifestPath(dir)); err == nil {
		return nil, fmt.Errorf("store already exists at %q", dir)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat manifest: %w", err)
	}
	man := Manifest{
		Version:     manifestVersion,
		ID:          uuid.New(),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := writeManifest(dir, man); err != nil {
		return nil, err
	}
	s := &fileStore{
		dir:       dir,
		man:       man,
		engine:    ParquetEngine,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

const partitionExt = ".parquet"

// PartitionPath returns the file a named partition lives in under dir.
func PartitionPath(dir, name string) string {
	return filepath.Join(dir, name+partitionExt)
}

func validatePartitionName(name string) error {
	if name == "" {
		return errors.New("partition name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return fmt.Errorf("partition name %q must not contain path separators", name)
	}
	return nil
}

func (s *fileStore) OpenPartition(name string, columns ColumnSet) (RowSource, error) {
	if err := validatePartitionName(name); err != nil {
		return nil, err
	}
	path := PartitionPath(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Partition: name, Store: s.dir}
		}
		return nil, fmt.Errorf("stat partition %q: %w", name, err)
	}

	var (
		src RowSource
		err error
	)
	switch s.engine {
	case ArrowEngine:
		src, err = openArrowSource(path, name, columns, s.batchSize)
	default:
		src, err = openParquetSource(path, name, columns, s.batchSize)
	}
	if err != nil {
		return nil, err
	}
	recordPartitionOpened(s.engine, columns)
	return src, nil
}

func (s *fileStore) CreatePartition(name string, columns ColumnSet) (RowWriter, error) {
	if err := validatePartitionName(name); err != nil {
		return nil, err
	}
	return newParquetWriter(PartitionPath(s.dir, name), columns)
}

func (s *fileStore) Partitions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list store %q: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), partitionExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), partitionExt))
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStore) Location() string { return s.dir }

func (s *fileStore) ID() uuid.UUID { return s.man.ID }

func (s *fileStore) Description() string { return s.man.Description }

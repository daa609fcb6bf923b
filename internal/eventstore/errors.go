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
)

// ErrClosed is returned by operations on a closed RowSource or RowWriter.
var ErrClosed = errors.New("eventstore: closed")

// NotFoundError reports a partition name the store does not contain. It is
// not retriable: a missing sample invalidates whatever analysis asked for
// it, so callers are expected to fail rather than skip.
type NotFoundError struct {
	Partition string
	Store     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("partition %q not found in store %q", e.Partition, e.Store)
}

// InvalidStoreError reports a directory that is not a usable event store:
// missing, unreadable, or carrying a manifest this code does not understand.
type InvalidStoreError struct {
	Dir string
	Err error
}

func (e *InvalidStoreError) Error() string {
	return fmt.Sprintf("invalid event store at %q: %v", e.Dir, e.Err)
}

func (e *InvalidStoreError) Unwrap() error {
	return e.Err
}

// CorruptPartitionError reports a partition whose contents violate the
// store's row shape, such as object columns of mismatched lengths.
type CorruptPartitionError struct {
	Partition string
	Row       int64
	Err       error
}

func (e *CorruptPartitionError) Error() string {
	return fmt.Sprintf("corrupt partition %q at row %d: %v", e.Partition, e.Row, e.Err)
}

func (e *CorruptPartitionError) Unwrap() error {
	return e.Err
}

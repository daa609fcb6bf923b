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

// Package eventreader iterates physics events across the partitions of an
// event store.
//
// A Reader walks an ordered list of partitions as one logical sequence:
// Next advances through each partition's rows in storage order, rebinding
// to the next partition as each one drains, and returns io.EOF when the
// last partition is exhausted. Accessors expose the current event's
// reconstructed objects under a systematic selection, and Weight serves the
// event's composite weight, computed lazily and cached per event.
//
// A Reader is not safe for concurrent use; run one Reader per goroutine.
package eventreader

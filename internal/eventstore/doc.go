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

// Package eventstore reads and writes partitioned columnar event stores.
//
// A store is a directory holding a store.yaml manifest plus one Parquet file
// per partition, where a partition is a named physics sample ("TTbar",
// "SingleMuRun2012A"). Column names follow the upstream small-tree
// convention (lept_pt, jet_btagdiscri, met_jesup_pt, ...); per-object
// collections are Parquet LIST columns, so the collection sizes stored as
// separate counters upstream are implicit here.
//
// Key abstractions:
//   - Store: a validated store directory. Opens partitions for strictly
//     forward row-at-a-time reading and creates new partitions.
//   - RowSource: a bound partition. ReadRow fills a RowBuffer and returns
//     io.EOF once every row has been delivered.
//   - RowBuffer: the structured row a binding materializes, reused across
//     rows to avoid per-row allocation.
//
// Two read engines serve the same files: the parquet-go row reader and an
// Arrow record reader. Both yield identical RowBuffer sequences; writes
// always go through parquet-go.
package eventstore

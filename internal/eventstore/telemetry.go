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
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("github.com/cardinalhq/ntuplerunner/internal/eventstore")

	rowsReadCounter         otelmetric.Int64Counter
	rowsWrittenCounter      otelmetric.Int64Counter
	partitionsOpenedCounter otelmetric.Int64Counter
)

func init() {
	var err error

	rowsReadCounter, err = meter.Int64Counter(
		"ntuplerunner.eventstore.rows.read",
		otelmetric.WithDescription("Rows read from partition bindings"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.read counter: %w", err))
	}

	rowsWrittenCounter, err = meter.Int64Counter(
		"ntuplerunner.eventstore.rows.written",
		otelmetric.WithDescription("Rows written to partitions"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.written counter: %w", err))
	}

	partitionsOpenedCounter, err = meter.Int64Counter(
		"ntuplerunner.eventstore.partitions.opened",
		otelmetric.WithDescription("Partition bindings opened"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create partitions.opened counter: %w", err))
	}
}

func recordRowsRead(engine Engine, n int64) {
	rowsReadCounter.Add(context.Background(), n, otelmetric.WithAttributes(
		attribute.String("engine", engine.String()),
	))
}

func recordRowsWritten(n int64) {
	rowsWrittenCounter.Add(context.Background(), n)
}

func recordPartitionOpened(engine Engine, columns ColumnSet) {
	partitionsOpenedCounter.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String("engine", engine.String()),
		attribute.String("columns", columns.String()),
	))
}

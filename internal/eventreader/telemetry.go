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

package eventreader

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("github.com/cardinalhq/ntuplerunner/internal/eventreader")

	eventsReadCounter      otelmetric.Int64Counter
	partitionsBoundCounter otelmetric.Int64Counter
)

func init() {
	var err error

	eventsReadCounter, err = meter.Int64Counter(
		"ntuplerunner.eventreader.events.read",
		otelmetric.WithDescription("Events served by reader advances"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create events.read counter: %w", err))
	}

	partitionsBoundCounter, err = meter.Int64Counter(
		"ntuplerunner.eventreader.partitions.bound",
		otelmetric.WithDescription("Partition bindings acquired, including rewinds"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create partitions.bound counter: %w", err))
	}
}

func recordEventRead() {
	eventsReadCounter.Add(context.Background(), 1)
}

func recordPartitionBound(partition string) {
	partitionsBoundCounter.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String("partition", partition),
	))
}

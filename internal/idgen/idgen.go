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

// Package idgen mints identifiers for analysis runs and the operations
// inside them.
package idgen

import (
	crand "crypto/rand"
	"encoding/base32"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sony/sonyflake"
)

// DefaultRunIDGenerator is the process-wide generator used to stamp
// analysis runs.
var DefaultRunIDGenerator *RunIDGenerator

func init() {
	var err error
	DefaultRunIDGenerator, err = NewRunIDGenerator()
	if err != nil {
		panic(err)
	}
}

// RunIDGenerator produces positive int64 run identifiers that increase
// roughly in time order across processes.
type RunIDGenerator struct {
	sf *sonyflake.Sonyflake
}

func NewRunIDGenerator() (*RunIDGenerator, error) {
	settings := sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &RunIDGenerator{sf: sf}, nil
}

// NextID returns the next run identifier. Sonyflake can refuse to hand out
// an ID when its clock drifts; a random ID keeps runs distinguishable in
// that case.
func (g *RunIDGenerator) NextID() int64 {
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// ShortID creates a short random base32 ID for tagging operations within
// a run. It is 8 characters long and is not suitable for anything
// security-sensitive.
func ShortID() string {
	b := make([]byte, 5) // 5 bytes = 8 base32 chars
	_, _ = crand.Read(b) // errors from rand.Read are rare and not critical for operation IDs
	return strings.ToLower(base32.StdEncoding.EncodeToString(b))
}

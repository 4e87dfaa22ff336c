// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/centipede-fuzz/centipede/pkg/feature"
)

func TestLoggerDescribesEachPCOnce(t *testing.T) {
	pcTable, symbols := reportFixture()
	cl := NewLogger(pcTable, symbols)
	cl.LogIfNew(feature.FromPCIndexAndCounter(2, 1))
	cl.LogIfNew(feature.FromPCIndexAndCounter(2, 100))
	cl.LogIfNew(feature.FromPCIndexAndCounter(100, 1)) // out of range
	cl.LogIfNew(feature.DataFlow.ConvertToMe(3))       // not a counter feature
	assert.Equal(t, map[uint64]bool{2: true}, cl.described)
}

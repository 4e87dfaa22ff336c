// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	sig := Hash([]byte("hello"), []byte(" world"))
	assert.Equal(t, Hash([]byte("hello world")), sig)
	assert.NotEqual(t, Hash([]byte("hello")), sig)
	assert.Len(t, sig.String(), HexLen)
	assert.Equal(t, sig.String(), String([]byte("hello world")))
}

func TestFromString(t *testing.T) {
	sig := Hash([]byte("data"))
	got, err := FromString(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	_, err = FromString("not hex")
	assert.Error(t, err)
	_, err = FromString("abcd")
	assert.Error(t, err)
}

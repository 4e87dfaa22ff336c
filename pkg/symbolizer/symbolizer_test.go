// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNMOutput(t *testing.T) {
	output := []byte(`0000000000001000 0000000000000020 T main
0000000000001020 0000000000000010 t helper
0000000000002000 0000000000000008 W _ZN3foo3barEv
0000000000003000 0000000000000010 D not_text
0000000000004000 0000000000000000 T zero_size
garbage line
`)
	symbols, err := parseNMOutput(output)
	require.NoError(t, err)
	require.Len(t, symbols, 3)
	assert.Equal(t, symbol{addr: 0x1000, size: 0x20, name: "main"}, symbols[0])
	assert.Equal(t, symbol{addr: 0x1020, size: 0x10, name: "helper"}, symbols[1])
	assert.Equal(t, "foo::bar()", symbols[2].name)
}

func TestParseNMOutputBadAddr(t *testing.T) {
	_, err := parseNMOutput([]byte("zzzz 10 T main\n"))
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	symbols := []symbol{
		{addr: 0x1000, size: 0x20, name: "main"},
		{addr: 0x2000, size: 0x10, name: "helper"},
	}
	assert.Equal(t, "main", lookup(symbols, 0x1000))
	assert.Equal(t, "main", lookup(symbols, 0x101f))
	assert.Equal(t, "", lookup(symbols, 0x1020))
	assert.Equal(t, "helper", lookup(symbols, 0x2008))
	assert.Equal(t, "", lookup(symbols, 0x500))
}

func TestSymbolTable(t *testing.T) {
	st := NewSymbolTable([]string{"foo", "", "bar"})
	assert.Equal(t, 3, st.Size())
	assert.Equal(t, "foo", st.Name(0))
	assert.Equal(t, "?", st.Name(1))
	assert.Equal(t, "bar", st.Name(2))
	assert.Equal(t, "?", st.Name(100))

	var nilTable *SymbolTable
	assert.Equal(t, 0, nilTable.Size())
	assert.Equal(t, "?", nilTable.Name(0))
}

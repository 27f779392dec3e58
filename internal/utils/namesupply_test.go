package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameSupply(t *testing.T) {
	ns := NewNameSupply()
	assert.Equal(t, "stack", ns.FreshName("stack"))
	assert.Equal(t, "stack_1", ns.FreshName("stack"))
	assert.Equal(t, "stack_2", ns.FreshName("stack"))

	ns.Reserve("myadd_kernel0_packed")
	assert.Equal(t, "myadd_kernel0_packed_1", ns.FreshName("myadd_kernel0_packed"))

	// Hints are normalized to C identifiers.
	assert.Equal(t, "blockIdx_x", ns.FreshName("blockIdx.x"))
	assert.Equal(t, "_0abc", ns.FreshName("0abc"))
	assert.Equal(t, "v", ns.FreshName(""))
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "", NormalizeIdentifier(""))
	assert.Equal(t, "myadd", NormalizeIdentifier("myadd"))
	assert.Equal(t, "threadIdx_x", NormalizeIdentifier("threadIdx.x"))
	assert.Equal(t, "_1st", NormalizeIdentifier("1st"))
}

func TestNormalizeIdentifierKeywords(t *testing.T) {
	assert.Equal(t, "int_", NormalizeIdentifier("int"))
	assert.Equal(t, "blockIdx_", NormalizeIdentifier("blockIdx"))
	assert.Equal(t, "integer", NormalizeIdentifier("integer"))

	ns := NewNameSupply()
	assert.Equal(t, "float_", ns.FreshName("float"))
	assert.Equal(t, "float__1", ns.FreshName("float"))
}

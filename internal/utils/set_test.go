package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := MakeSet[string](4)
	require.Empty(t, s)
	s.Insert("A", "B")
	assert.Len(t, s, 2)
	assert.True(t, s.Has("A"))
	assert.False(t, s.Has("C"))

	keywords := SetWith("int", "float", "int")
	assert.Len(t, keywords, 2)
	assert.True(t, keywords.Has("float"))
	assert.Empty(t, MakeSet[int]())
}

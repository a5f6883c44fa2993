package tokenhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash_Consistent(t *testing.T) {
	h1 := Hash("eyJhbGciOiJIUzI1NiJ9.payload.sig")
	h2 := Hash("eyJhbGciOiJIUzI1NiJ9.payload.sig")

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHash_DifferentTokens(t *testing.T) {
	assert.NotEqual(t, Hash("token-1"), Hash("token-2"))
}

func TestHash_KnownVector(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Hash("abc"))
}

func TestEqual(t *testing.T) {
	stored := Hash("correct")

	assert.True(t, Equal("correct", stored))
	assert.False(t, Equal("wrong", stored))
	assert.False(t, Equal("correct", "a"+stored))
	assert.False(t, Equal("", ""))
}

package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedID_ReturnsSameID(t *testing.T) {
	gen := NewFixedID("p-1")

	assert.Equal(t, "p-1", gen.Generate())
	assert.Equal(t, "p-1", gen.Generate())
}

func TestFixedID_EmptyDefault(t *testing.T) {
	assert.Equal(t, "fixed-id", NewFixedID("").Generate())
}

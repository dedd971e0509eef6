//go:build !deepstream

package nvds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadBatch_Unsupported(t *testing.T) {
	assert.False(t, Available)

	batch, err := ReadBatch(nil)
	assert.Nil(t, batch)
	assert.ErrorIs(t, err, ErrUnsupported)
}

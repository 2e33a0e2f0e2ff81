package cellstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_New_ReturnsZeroedRegionOfExactSize(t *testing.T) {
	data := New(4096)
	defer func() { require.NoError(t, Destroy(data)) }()

	require.Len(t, data, 4096)
	for i, b := range data {
		require.Zerof(t, b, "byte %d not zeroed", i)
	}
}

func Test_New_ZeroCellsDoesNotMmap(t *testing.T) {
	data := New(0)
	assert.Len(t, data, 0)
	assert.NoError(t, Destroy(data))
}

func Test_Destroy_IsIdempotentForEmptyRegion(t *testing.T) {
	assert.NoError(t, Destroy(nil))
	assert.NoError(t, Destroy([]byte{}))
}

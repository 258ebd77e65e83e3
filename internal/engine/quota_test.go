package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryQuota(t *testing.T) {
	q := NewQueryQuota(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Check(), "query %d should be allowed", i+1)
	}

	err := q.Check()
	require.Error(t, err)
	assert.True(t, IsBudgetError(err))
	assert.False(t, IsRequestError(err))
	assert.Contains(t, err.Error(), "4 > 3")
	assert.Equal(t, 4, q.Current())
	assert.Equal(t, 3, q.Max())
}

func TestQueryQuota_Unlimited(t *testing.T) {
	q := NewQueryQuota(0)
	for i := 0; i < 5000; i++ {
		require.NoError(t, q.Check())
	}
}

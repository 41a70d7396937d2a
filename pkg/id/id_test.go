package id

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	var ids []string
	for i := 0; i < 100; i++ {
		ids = append(ids, New())
	}
	assert.True(t, sort.StringsAreSorted(ids))

	seen := map[string]bool{}
	for _, v := range ids {
		assert.Len(t, v, 26)
		assert.False(t, seen[v], "duplicate id %s", v)
		seen[v] = true
	}
}

func TestNewAtRoundTrip(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 1, 12, 30, 0, 123_000_000, time.UTC)
	v := NewAt(at)

	got, err := Time(v)
	require.NoError(t, err)
	assert.True(t, at.Equal(got))

	_, err = Time("not-a-ulid")
	assert.Error(t, err)
}

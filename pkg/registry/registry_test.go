package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Register("a", 1))

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	r := New[string]()
	require.NoError(t, r.Register("a", "x"))
	assert.Error(t, r.Register("a", "y"))
	assert.Error(t, r.Register("", "z"))
	assert.Equal(t, 1, r.Count())
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r := New[string]()
	for _, name := range []string{"deepseek", "openai", "local"} {
		require.NoError(t, r.Register(name, name))
	}

	assert.Equal(t, []string{"deepseek", "openai", "local"}, r.Names())
	assert.Equal(t, []string{"deepseek", "openai", "local"}, r.List())
}

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/registry"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := registry.New[int]("counter")
	require.NoError(t, r.Register("b", 2))
	require.NoError(t, r.Register("a", 1))

	v, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := registry.New[string]("fixer")
	r.MustRegister("outlier_fixer", "x")

	err := r.Register("outlier_fixer", "y")
	assert.ErrorIs(t, err, exception.ErrDuplicateStrategy)
	assert.Panics(t, func() { r.MustRegister("outlier_fixer", "z") })
}

func TestRegistryUnknownName(t *testing.T) {
	r := registry.New[string]("validator")

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, exception.ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "unknown validator 'nope'")
}

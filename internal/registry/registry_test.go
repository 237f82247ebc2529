package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RUBclim/vpf-730/internal/config"
	"github.com/RUBclim/vpf-730/internal/types"
)

func TestBuilderRegisterAndLookup(t *testing.T) {
	called := false
	reg := New().
		Register("noop", func(ctx context.Context, msg types.Message, cfg *config.Config) error {
			called = true
			return nil
		}).
		Build()

	h, ok := reg.Lookup("noop")
	require.True(t, ok)
	require.NoError(t, h(context.Background(), types.Message{}, &config.Config{}))
	assert.True(t, called)
}

func TestLookupMissingHandler(t *testing.T) {
	reg := New().Build()
	_, ok := reg.Lookup("does_not_exist")
	assert.False(t, ok)
}

func TestBuildIsolatesFromLaterRegisterCalls(t *testing.T) {
	b := New().Register("a", func(ctx context.Context, msg types.Message, cfg *config.Config) error { return nil })
	reg := b.Build()

	b.Register("b", func(ctx context.Context, msg types.Message, cfg *config.Config) error { return nil })
	_, ok := reg.Lookup("b")
	assert.False(t, ok, "mutating the builder after Build must not affect the sealed registry")
}

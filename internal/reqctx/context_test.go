package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/pool"
)

func TestContext_ErrorSlot(t *testing.T) {
	rc := New(context.Background(), nil, pool.NewRegistry(false))
	defer rc.Release()

	assert.False(t, rc.HasError())
	assert.Nil(t, rc.Error())
	assert.NotEmpty(t, rc.RequestID)

	e := apperr.NotFound("missing")
	rc.SetError(e)
	assert.True(t, rc.HasError())
	assert.Same(t, e, rc.Error())

	rc.ClearError()
	assert.False(t, rc.HasError())
}

func TestContext_Arena(t *testing.T) {
	rc := New(context.Background(), nil, pool.NewRegistry(false))
	b := rc.Arena.Alloc(16)
	require.Len(t, b, 16)
	rc.Release()
	assert.Nil(t, rc.Arena)
}

// TestContext_Clone exercises the detached-child path metatile worker
// fan-out uses (spec.md §9): a cloned context shares the pool registry but
// owns its own logger (tagged with its own and its parent's request ID), an
// independent arena and an independent error slot.
func TestContext_Clone(t *testing.T) {
	pools := pool.NewRegistry(false)
	parent := New(context.Background(), nil, pools)
	defer parent.Release()

	parent.SetError(apperr.NotFound("parent failure"))
	parent.Arena.Alloc(8)

	child := parent.Clone()
	defer child.Release()

	assert.Same(t, pools, child.Pools)
	assert.NotSame(t, parent.Arena, child.Arena)
	assert.NotEmpty(t, child.RequestID)
	assert.NotEqual(t, parent.RequestID, child.RequestID)
	assert.False(t, child.HasError(), "clone must not inherit the parent's error slot")
	assert.True(t, parent.HasError(), "cloning must not clear the parent's error slot")

	child.SetError(apperr.BadRequest("child failure"))
	assert.True(t, child.HasError())
	assert.Equal(t, apperr.KindNotFound, parent.Error().Kind, "setting the child's error must not affect the parent")
}

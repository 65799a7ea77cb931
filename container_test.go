package routed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerGetFallsThroughToParent(t *testing.T) {
	root := NewContainer()
	root.Set("db", "primary")

	child := root.ReadOnlyChild()
	v, ok := child.Get("db")
	assert.True(t, ok)
	assert.Equal(t, "primary", v)

	_, ok = child.Get("missing")
	assert.False(t, ok)
}

func TestContainerReadOnlyChildPanicsOnSet(t *testing.T) {
	root := NewContainer()
	child := root.ReadOnlyChild()

	assert.Panics(t, func() {
		child.Set("db", "override")
	})
}

func TestContainerMutableChildCanOverrideWithoutMutatingParent(t *testing.T) {
	root := NewContainer()
	root.Set("db", "primary")

	child := root.MutableChild()
	child.Set("db", "replica")

	v, _ := child.Get("db")
	assert.Equal(t, "replica", v)

	v, _ = root.Get("db")
	assert.Equal(t, "primary", v)
}

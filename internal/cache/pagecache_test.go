package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageCache_GetPut(t *testing.T) {
	c := NewPageCache()

	_, ok := c.Get(Customers, "", 1)
	assert.False(t, ok)

	c.Put(Customers, "", 1, []string{"a", "b"}, true)
	p, ok := c.Get(Customers, "", 1)
	assert.True(t, ok)
	assert.True(t, p.HasMore)
	assert.Equal(t, []string{"a", "b"}, p.Items)

	// same page number under a different query key is a distinct entry
	_, ok = c.Get(Customers, "other", 1)
	assert.False(t, ok)
}

func TestPageCache_InvalidateIsPerEntity(t *testing.T) {
	c := NewPageCache()
	c.Put(Customers, "", 1, 1, false)
	c.Put(Customers, "", 2, 2, false)
	c.Put(Transactions, "all", 1, 3, false)

	c.Invalidate(Customers)

	_, ok := c.Get(Customers, "", 1)
	assert.False(t, ok)
	_, ok = c.Get(Customers, "", 2)
	assert.False(t, ok)
	_, ok = c.Get(Transactions, "all", 1)
	assert.True(t, ok, "other entity types must survive")
}

func TestPageCache_InvalidateAll(t *testing.T) {
	c := NewPageCache()
	c.Put(Customers, "", 1, 1, false)
	c.Put(Prices, "current", 1, 2, false)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestPageCache_IndependentInstances(t *testing.T) {
	a := NewPageCache()
	b := NewPageCache()
	a.Put(Customers, "", 1, "a-data", false)

	_, ok := b.Get(Customers, "", 1)
	assert.False(t, ok, "caches must not share state")
}

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInOrder(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventOrder, 4)
	defer unsub()

	b.Publish(EventOrder, 1)
	b.Publish(EventOrder, 2)
	b.Publish(EventTrade, "ignored")

	require.Equal(t, 1, <-ch)
	require.Equal(t, 2, <-ch)
	assert.Len(t, ch, 0)
}

func TestBusDropsWhenFull(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventTick, 1)
	b.Publish(EventTick, "a")
	b.Publish(EventTick, "b")

	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, "a", <-ch)

	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers(EventTick))
}

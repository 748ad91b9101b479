package enrich

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueuePushPopFIFO(t *testing.T) {
	q := NewQueue(4)
	q.Push(Task{EventID: 1})
	q.Push(Task{EventID: 2})
	q.Push(Task{EventID: 3})

	t1, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, int64(1), t1.EventID)

	require.Equal(t, 2, q.Len())
}

func TestQueueDropsOldestNormalWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.Push(Task{EventID: 1, Priority: PriorityNormal})
	q.Push(Task{EventID: 2, Priority: PriorityNormal})
	q.Push(Task{EventID: 3, Priority: PriorityNormal})

	require.Equal(t, 1, q.Dropped())
	require.Equal(t, 2, q.Len())

	first, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, int64(2), first.EventID)
}

func TestQueueHighPriorityDisplacesNormalFirst(t *testing.T) {
	q := NewQueue(2)
	q.Push(Task{EventID: 1, Priority: PriorityNormal})
	q.Push(Task{EventID: 2, Priority: PriorityHigh})
	q.Push(Task{EventID: 3, Priority: PriorityHigh})

	require.Equal(t, 1, q.Dropped())

	first, _ := q.Pop()
	second, _ := q.Pop()
	require.Equal(t, int64(2), first.EventID)
	require.Equal(t, int64(3), second.EventID)
}

func TestQueueNotifyFiresOnPush(t *testing.T) {
	q := NewQueue(4)
	q.Push(Task{EventID: 1})
	select {
	case <-q.Notify():
	default:
		t.Fatal("expected a notification after push")
	}
}

package httpd

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type idTask struct {
	id  int
	out *[]int
}

func (t *idTask) Execute() { *t.out = append(*t.out, t.id) }
func (t *idTask) Release() {}

func TestTaskQueue(t *testing.T) {
	t.Run("FIFO", func(t *testing.T) {
		q := NewTaskQueue()
		var out []int
		for i := 1; i <= 3; i++ {
			require.NoError(t, q.Put(&idTask{id: i, out: &out}))
		}
		require.Equal(t, 3, q.Len())

		q.mu.Lock()
		for {
			task, ok := q.get()
			if !ok {
				break
			}
			task.Execute()
		}
		q.mu.Unlock()

		require.Equal(t, []int{1, 2, 3}, out)
		require.Equal(t, 0, q.Len())
	})

	t.Run("Emptied queue has no links", func(t *testing.T) {
		q := NewTaskQueue()
		require.NoError(t, q.Put(NewTask(func() {}, nil)))

		q.mu.Lock()
		defer q.mu.Unlock()

		_, ok := q.get()
		require.True(t, ok)
		require.Nil(t, q.head)
		require.Nil(t, q.tail)
		require.Zero(t, q.count)

		_, ok = q.get()
		require.False(t, ok)
	})

	t.Run("Nil task", func(t *testing.T) {
		q := NewTaskQueue()
		require.ErrorIs(t, q.Put(nil), ErrNilTask)
		require.Equal(t, 0, q.Len())
	})

	t.Run("Concurrent put keeps count", func(t *testing.T) {
		q := NewTaskQueue()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					_ = q.Put(NewTask(func() {}, nil))
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 800, q.Len())

		q.mu.Lock()
		defer q.mu.Unlock()
		linked := 0
		for n := q.head; n != nil; n = n.next {
			linked++
		}
		require.Equal(t, q.count, linked)
	})
}

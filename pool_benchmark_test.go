package httpd_test

import (
	"sync"
	"testing"

	"github.com/iliastsa/httpd"
)

// BenchmarkWorkerPool_AddExecute measures submission and execution of
// trivial tasks.
func BenchmarkWorkerPool_AddExecute(b *testing.B) {
	p, err := httpd.NewWorkerPool(8)
	if err != nil {
		b.Fatalf("new pool: %v", err)
	}
	defer p.Destroy()

	var wg sync.WaitGroup
	wg.Add(b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := p.AddFunc(wg.Done, nil); err != nil {
			b.Fatalf("add error: %v", err)
		}
	}
	wg.Wait()
}

// BenchmarkTaskQueue_Put measures raw queue insertion under contention.
func BenchmarkTaskQueue_Put(b *testing.B) {
	q := httpd.NewTaskQueue()
	task := httpd.NewTask(func() {}, nil)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = q.Put(task)
		}
	})
}

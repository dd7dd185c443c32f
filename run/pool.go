package run

import (
	"runtime"
	"sync"
)

// pool executes submitted tasks on a fixed number of goroutines. Stop waits
// for all submitted tasks to finish.
type pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

func newPool(size int) *pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
		if size <= 0 {
			size = 1
		}
	}

	p := &pool{
		tasks: make(chan func(), size*2),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for fn := range p.tasks {
		if fn != nil {
			fn()
		}
	}
}

func (p *pool) Submit(fn func()) {
	p.tasks <- fn
}

func (p *pool) Stop() {
	p.once.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}

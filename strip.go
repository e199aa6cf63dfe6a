package gdalfade

import (
	"context"
	"runtime"
	"sync"

	"github.com/wgdzlh/gdalfade/grid"
)

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// 将条带分发给workers个协程执行fn，遇到首个错误或ctx取消后不再派发新条带
func forStrips(ctx context.Context, ws []grid.Window, workers int, fn func(w grid.Window) error) (err error) {
	var (
		wg    sync.WaitGroup
		once  sync.Once
		stop  = make(chan struct{})
		queue = make(chan grid.Window)
	)
	fail := func(e error) {
		once.Do(func() {
			err = e
			close(stop)
		})
	}
	workers = min(workerCount(workers), len(ws))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range queue {
				if e := fn(w); e != nil {
					fail(e)
				}
			}
		}()
	}
dispatch:
	for _, w := range ws {
		select {
		case queue <- w:
		case <-stop:
			break dispatch
		case <-ctx.Done():
			fail(ctx.Err())
			break dispatch
		}
	}
	close(queue)
	wg.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return
}

// stripIO 串行化同一阶段内的数据集读写
type stripIO struct {
	mu sync.Mutex
}

func (s *stripIO) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

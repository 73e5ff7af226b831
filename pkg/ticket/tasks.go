package ticket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
)

// Tasks runs deferred continuations (topic mirroring, archival, delayed
// channel deletion) in tracked goroutines. Failures are logged instead of
// vanishing into dropped goroutines, and Wait lets tests and shutdown
// drain in-flight work.
type Tasks struct {
	wg     sync.WaitGroup
	logger *zap.SugaredLogger
}

func ProvideTasks(loggerFactory *infra.LoggerFactory) *Tasks {
	return &Tasks{
		logger: loggerFactory.Create("Tasks").Sugar(),
	}
}

func (t *Tasks) Go(name string, fn func() error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Errorf("task[%v] panicked %v", name, r)
			}
		}()

		if err := fn(); err != nil {
			t.logger.Warnf("task[%v] failed %v", name, err)
		}
	}()
}

func (t *Tasks) Wait() {
	t.wg.Wait()
}

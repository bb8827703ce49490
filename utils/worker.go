package utils

import "sync"

// Task представляет единицу работы для пула
type Task func()

// WorkerPool выполняет задачи в фиксированном числе горутин
type WorkerPool struct {
	tasks  chan Task
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool создает пул и запускает воркеры
func NewWorkerPool(numWorkers, queueSize int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	pool := &WorkerPool{
		tasks: make(chan Task, queueSize),
	}

	for i := 0; i < numWorkers; i++ {
		pool.wg.Add(1)
		go pool.run()
	}

	return pool
}

func (p *WorkerPool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					LogError("task panicked: %v", r)
				}
			}()
			task()
		}()
	}
}

// Submit ставит задачу в очередь без блокировки.
// Возвращает false, если очередь заполнена или пул остановлен.
func (p *WorkerPool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop дожидается выполнения поставленных задач и останавливает воркеры
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

package state

import "sync"

// flusher is anything the scheduler can flush; in practice, a Container.
type flusher interface {
	flush()
}

// Scheduler coalesces container notifications. Containers with a pending
// change register themselves; a single background loop drains the pending
// set and runs each container's flush. Patches issued while a flush cycle
// is running land in a fresh pending set and are drained in the next cycle,
// so a cycle never observes its own side effects mid-iteration.
//
// Schedulers are explicit values handed to containers at construction, so
// lifetime and test isolation are controlled by ownership.
type Scheduler struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[flusher]struct{}
	flushing bool

	kick chan struct{}
	done chan struct{}
	once sync.Once
}

// NewScheduler creates a scheduler and starts its flush loop.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		pending: make(map[flusher]struct{}),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Close stops the flush loop. Pending notifications are dropped.
func (s *Scheduler) Close() {
	s.once.Do(func() { close(s.done) })
}

// enqueue registers f for the next flush cycle. Multiple calls before the
// cycle runs collapse into one.
func (s *Scheduler) enqueue(f flusher) {
	s.mu.Lock()
	s.pending[f] = struct{}{}
	s.flushing = true
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Sync blocks until every change scheduled before the call, including any
// follow-on changes those flushes trigger, has been flushed.
func (s *Scheduler) Sync() {
	s.mu.Lock()
	for s.flushing || len(s.pending) > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

func (s *Scheduler) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
		}

		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.flushing = false
				s.cond.Broadcast()
				s.mu.Unlock()
				break
			}
			batch := s.pending
			s.pending = make(map[flusher]struct{})
			s.mu.Unlock()

			for f := range batch {
				f.flush()
			}
		}
	}
}

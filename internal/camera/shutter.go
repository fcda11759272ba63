package camera

import (
	"sync"
	"time"
)

// shutterWorker fires trigger every interval until stopped. It sleeps
// before the first trigger.
type shutterWorker struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (s *shutterWorker) start(interval time.Duration, trigger func()) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-stop:
				return
			case <-timer.C:
				trigger()
				timer.Reset(interval)
			}
		}
	}(s.stop, s.done)
}

// halt stops the worker and waits for it. The caller must not hold any
// lock trigger takes.
func (s *shutterWorker) halt() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *shutterWorker) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

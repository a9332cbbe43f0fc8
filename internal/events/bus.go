package events

import (
	"context"
	"errors"
	"sync"
)

// ErrBusClosed is returned when subscribing to a closed bus.
var ErrBusClosed = errors.New("event bus closed")

// Bus fans messages out to any number of subscribers. Publish never blocks:
// every subscriber owns an unbounded queue drained by its own goroutine.
// All subscribers see messages in publish order.
type Bus struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

type subscription struct {
	mu        sync.Mutex
	queue     []any
	signal    chan struct{}
	out       chan any
	done      chan struct{}
	stopped   bool // no more pushes; drain then close
	abandoned bool // drop everything and close
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscription]struct{})}
}

// Publish delivers msg to every current subscriber.
func (b *Bus) Publish(msg any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.push(msg)
	}
}

// Subscribe returns a stream of messages published from now on and a cleanup
// func. The stream closes when ctx ends, cleanup runs, or the bus closes.
func (b *Bus) Subscribe(ctx context.Context) (<-chan any, func(), error) {
	s := &subscription{
		signal: make(chan struct{}, 1),
		out:    make(chan any),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrBusClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			s.stop()
		})
	}

	go s.run(ctx)
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-s.done:
		}
	}()

	return s.out, cleanup, nil
}

// Close detaches all subscribers after they have drained what was queued.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.finish()
		delete(b.subs, s)
	}
}

func (s *subscription) push(msg any) {
	s.mu.Lock()
	if s.stopped || s.abandoned {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	s.wake()
}

func (s *subscription) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// finish marks the queue complete; run drains it and then closes out.
func (s *subscription) finish() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wake()
}

// stop abandons anything still queued.
func (s *subscription) stop() {
	s.mu.Lock()
	s.abandoned = true
	s.queue = nil
	s.mu.Unlock()
	s.wake()
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)
	for {
		s.mu.Lock()
		if s.abandoned {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return
			}
			select {
			case <-s.signal:
			case <-ctx.Done():
				return
			}
			continue
		}
		msg := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- msg:
		case <-ctx.Done():
			return
		case <-s.signal:
			// Woken while the consumer was busy: put msg back in front and
			// re-evaluate.
			s.mu.Lock()
			if !s.abandoned {
				s.queue = append([]any{msg}, s.queue...)
			}
			s.mu.Unlock()
		}
	}
}

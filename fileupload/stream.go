package fileupload

import (
	"context"
	"sync"
)

// Stream delivers the states of one upload in order.
// The channel returned by Events is closed after the terminal state,
// or without one when the upload is cancelled.
type Stream struct {
	id     string
	events chan State
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	err       error
}

func newStream(id string, buffer int, cancel context.CancelFunc) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	return &Stream{
		id:     id,
		events: make(chan State, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID identifies the upload in log lines.
func (s *Stream) ID() string {
	return s.id
}

// Events returns the states of the upload. Started and the terminal state are always delivered
// unless the upload is cancelled. Progress samples that find the buffer full are dropped.
func (s *Stream) Events() <-chan State {
	return s.events
}

// Close cancels the upload if it is still running and blocks until the file
// and the network resources are released. Events not yet received are discarded.
// Calling Close after the terminal state is harmless.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		for range s.events {
		}
	})
	return nil
}

// Err returns the context error when the upload was cancelled before reaching a terminal state.
// It is nil while the upload is running.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait receives all remaining states and returns the terminal one.
// The returned state is nil if the upload was cancelled, in that case the error is the cancellation cause.
// If ctx is done first the upload is closed and ctx's error is returned.
func (s *Stream) Wait(ctx context.Context) (State, error) {
	var last State
	for {
		select {
		case state, ok := <-s.events:
			if !ok {
				<-s.done
				if last != nil && IsTerminal(last) {
					return last, nil
				}
				return nil, s.err
			}
			last = state
		case <-ctx.Done():
			_ = s.Close()
			return nil, ctx.Err()
		}
	}
}

// emit blocks until the state is buffered or ctx is cancelled.
func (s *Stream) emit(ctx context.Context, state State) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- state:
		return true
	case <-ctx.Done():
		return false
	}
}

// offer sends state only if the buffer has room, it never waits for the consumer.
func (s *Stream) offer(ctx context.Context, state State) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- state:
		return true
	default:
		return false
	}
}

// finish is called once by the producer after every resource of the upload is released.
func (s *Stream) finish(ctx context.Context, terminated bool) {
	if !terminated {
		s.err = ctx.Err()
	}
	s.cancel()
	close(s.events)
	close(s.done)
}

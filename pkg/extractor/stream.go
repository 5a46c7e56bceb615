package extractor

import (
	"context"
	"encoding/json"
	"sync"
)

// Stream is a pull-based view over the paginated studies walk. The producer
// goroutine fills a channel bounded to one page; consumers call Next until it
// reports exhaustion, then check Err for the terminal state.
type Stream struct {
	ch  chan json.RawMessage
	mu  sync.Mutex
	err error
}

// Next returns the next raw study. ok is false when the stream is exhausted —
// either the walk completed or it failed; Err distinguishes the two.
func (s *Stream) Next(ctx context.Context) (json.RawMessage, bool) {
	select {
	case raw, ok := <-s.ch:
		if !ok {
			return nil, false
		}
		return raw, true
	case <-ctx.Done():
		return nil, false
	}
}

// Err returns the terminal error, or nil after a clean walk. Only valid once
// Next has reported exhaustion.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

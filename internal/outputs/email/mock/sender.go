package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/relaypipe/internal/outputs/email"
)

// Sender records messages instead of delivering them. Err, when set, is
// returned from every Send.
type Sender struct {
	Messages []email.Message
	Err      error

	mu sync.Mutex
}

func (s *Sender) Send(ctx context.Context, message email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Messages = append(s.Messages, message)
	return nil
}

package email

import "context"

// Header names set on every cycle digest.
const (
	HeaderPipeline = "X-Relaypipe-Pipeline"
	HeaderCycle    = "X-Relaypipe-Cycle"
)

// Message is an HTML email. Headers are extra generic headers.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	Headers map[string]string
}

type Sender interface {
	Send(ctx context.Context, message Message) error
}

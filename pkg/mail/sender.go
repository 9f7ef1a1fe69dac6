package mail

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dripline/dripline/pkg/protocol"
)

// LogSender is the development transport: it logs instead of delivering.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "mail")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body, fromOverride string) error {
	s.logger.InfoContext(ctx, "Email delivered (log transport)",
		"to", to,
		"subject", subject,
		"from_override", fromOverride,
		"body_bytes", len(body))

	return nil
}

// SentMessage is one message captured by CaptureSender.
type SentMessage struct {
	To           string
	Subject      string
	Body         string
	FromOverride string
}

// CaptureSender records messages for tests. Fail, when set, is returned for
// every send; wrap it in protocol.SendError to exercise the permanent path.
type CaptureSender struct {
	mu       sync.Mutex
	messages []SentMessage

	Fail error
}

// NewCaptureSender creates an empty capture sender.
func NewCaptureSender() *CaptureSender {
	return &CaptureSender{}
}

func (s *CaptureSender) Send(_ context.Context, to, subject, body, fromOverride string) error {
	if s.Fail != nil {
		return s.Fail
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, SentMessage{To: to, Subject: subject, Body: body, FromOverride: fromOverride})

	return nil
}

// Messages returns a copy of everything sent so far.
func (s *CaptureSender) Messages() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SentMessage, len(s.messages))
	copy(out, s.messages)

	return out
}

var (
	_ protocol.Sender = (*LogSender)(nil)
	_ protocol.Sender = (*CaptureSender)(nil)
)

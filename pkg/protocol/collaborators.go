package protocol

import (
	"context"
	"errors"
	"fmt"
)

// RenderedEmail is the output of template rendering.
type RenderedEmail struct {
	Subject string
	Body    string
}

// Renderer resolves and renders an email template with subscriber variables.
// Template storage and rendering live outside the engine.
type Renderer interface {
	Render(ctx context.Context, templateID, subjectTemplate string, variables map[string]any) (*RenderedEmail, error)
}

// Sender delivers a rendered email. Transient transport failures should be
// returned as plain errors; permanent rejections (bad address, suppressed
// recipient) must be wrapped in SendError with Permanent set so the engine
// fails the execution instead of retrying.
type Sender interface {
	Send(ctx context.Context, to, subject, body, fromOverride string) error
}

// SendError distinguishes permanent rejections from transient failures.
type SendError struct {
	Permanent bool
	Err       error
}

func (e *SendError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}

	return fmt.Sprintf("send failed (%s): %v", kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsPermanentSendError reports whether err is a permanent send rejection.
func IsPermanentSendError(err error) bool {
	var sendErr *SendError

	return errors.As(err, &sendErr) && sendErr.Permanent
}

// SegmentDirectory answers segment membership questions. Segment storage is
// an external collaborator.
type SegmentDirectory interface {
	IsMember(ctx context.Context, subscriberID, segmentID string) (bool, error)
	SubscribersOf(ctx context.Context, segmentID string) ([]string, error)
}

// SubscriberDirectory exposes subscriber state used by Condition predicates
// and SendEmail recipient resolution. The attribute map includes "email".
type SubscriberDirectory interface {
	Attributes(ctx context.Context, subscriberID string) (map[string]any, error)
}

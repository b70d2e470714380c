// Package remote holds the error taxonomy shared by the typeahead resolver and
// the upload dispatcher.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a remote failure for the hosting form.
type Kind int

const (
	KindNone Kind = iota
	// KindCanceled is a superseded or explicitly aborted request. Never user-visible.
	KindCanceled
	// KindTransport means no response reached the caller (offline, DNS, reset).
	KindTransport
	// KindStatus means the server answered with an error status.
	KindStatus
	// KindMalformed means the response arrived but matched no known shape.
	KindMalformed
	// KindInvalid means the request was never sent because its input was
	// unusable (missing endpoint, unencodable metadata, unreadable file).
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCanceled:
		return "canceled"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StatusError is returned when the server responded with a non-success status.
type StatusError struct {
	// Status is the HTTP status code.
	Status int
	// Body holds the raw response body for diagnostics.
	Body []byte
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return fmt.Sprintf("remote: status %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote: status %d: %s", e.Status, msg)
}

// TransportError wraps a failure where no response was received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return "remote: transport: " + e.Err.Error()
	}
	return fmt.Sprintf("remote: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedError reports a response whose shape could not be interpreted.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "remote: malformed response: " + e.Reason
}

// IsCanceled reports whether err represents an intentional cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Classify maps err onto the taxonomy. ctx, when non-nil, disambiguates
// transport failures caused by the caller cancelling the request.
func Classify(ctx context.Context, err error) Kind {
	if err == nil {
		return KindNone
	}
	if IsCanceled(err) {
		return KindCanceled
	}
	if ctx != nil && errors.Is(ctx.Err(), context.Canceled) {
		return KindCanceled
	}
	var se *StatusError
	if errors.As(err, &se) {
		return KindStatus
	}
	var me *MalformedError
	if errors.As(err, &me) {
		return KindMalformed
	}
	return KindTransport
}

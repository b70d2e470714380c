package upload

import (
	"formkit/internal/remote"
)

// Status discriminates upload outcomes.
type Status int

const (
	StatusUnknown Status = iota
	StatusOK
	// StatusCanceled is a caller-aborted transfer. Not an error to show the user.
	StatusCanceled
	// StatusHTTPError means the server answered with a non-2xx status.
	StatusHTTPError
	// StatusTransportError means no response was received.
	StatusTransportError
	// StatusInvalid means the task could not be sent: a missing endpoint,
	// unencodable metadata or a file body that failed to read.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCanceled:
		return "canceled"
	case StatusHTTPError:
		return "http_error"
	case StatusTransportError:
		return "transport_error"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Outcome is the normalized result of one Send.
type Outcome struct {
	Status   Status
	Strategy Strategy
	// HTTPStatus is set whenever the server responded.
	HTTPStatus int
	// Data is the decoded response: JSON value, or the body as a string when it is not JSON.
	Data any
	// Raw is the undecoded response body.
	Raw []byte
	// FileRef is the extracted server-side reference when RefFound is true.
	FileRef  string
	RefFound bool
	Err      error
}

func (o Outcome) OK() bool { return o.Status == StatusOK }

func (o Outcome) Canceled() bool { return o.Status == StatusCanceled }

// Kind maps the outcome onto the shared remote taxonomy.
func (o Outcome) Kind() remote.Kind {
	switch o.Status {
	case StatusOK:
		if !o.RefFound {
			return remote.KindMalformed
		}
		return remote.KindNone
	case StatusCanceled:
		return remote.KindCanceled
	case StatusHTTPError:
		return remote.KindStatus
	case StatusTransportError:
		return remote.KindTransport
	case StatusInvalid:
		return remote.KindInvalid
	default:
		return remote.KindNone
	}
}

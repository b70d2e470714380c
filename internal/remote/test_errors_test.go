package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "context canceled", err: fmt.Errorf("fetch: %w", context.Canceled), want: KindCanceled},
		{name: "caller cancelled ctx", ctx: canceled, err: errors.New("read: connection reset"), want: KindCanceled},
		{name: "status", err: fmt.Errorf("wrap: %w", &StatusError{Status: 500}), want: KindStatus},
		{name: "malformed", err: &MalformedError{Reason: "not json"}, want: KindMalformed},
		{name: "transport", err: &TransportError{Op: "get", Err: errors.New("dial tcp: refused")}, want: KindTransport},
		{name: "deadline is transport", ctx: context.Background(), err: context.DeadlineExceeded, want: KindTransport},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.ctx, tc.err))
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "remote: status 404 Not Found", (&StatusError{Status: 404}).Error())
	assert.Equal(t, "remote: status 400: bad meta", (&StatusError{Status: 400, Body: []byte(" bad meta\n")}).Error())
}

func TestTransportErrorUnwrap(t *testing.T) {
	base := errors.New("offline")
	err := &TransportError{Op: "post", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "remote: post: offline", err.Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "invalid", KindInvalid.String())
	assert.Equal(t, "malformed", KindMalformed.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

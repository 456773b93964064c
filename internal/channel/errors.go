package channel

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
)

// ErrorKind tells the caller whether resending later is meaningful.
type ErrorKind int

const (
	// Transient failures are retried inside the sender (network, throttling, 5xx).
	Transient ErrorKind = iota
	// Fatal failures are never retried (auth, bad recipient, oversized media, other 4xx).
	Fatal
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "fatal"
}

// Reason is a coarse classification used in outcome details.
type Reason string

const (
	ReasonNetwork   Reason = "network"
	ReasonRateLimit Reason = "rate_limited"
	ReasonServer    Reason = "server_error"
	ReasonAuth      Reason = "auth"
	ReasonRecipient Reason = "invalid_recipient"
	ReasonMedia     Reason = "media_too_large"
	ReasonRequest   Reason = "bad_request"
	ReasonResponse  Reason = "bad_response"
)

// SendError is returned by the Channel Sender and the API client.
type SendError struct {
	Kind   ErrorKind
	Reason Reason
	// Op is the protocol phase: upload or send.
	Op     string
	Status int
	// Code is the Graph API error code, 0 when absent.
	Code       int
	Message    string
	RetryAfter time.Duration
	Err        error
}

const (
	OpUpload = "upload"
	OpSend   = "send"
)

func (e *SendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s %s (%s, status %d, code %d): %s", e.Op, e.Kind, e.Reason, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s %s (%s): %s", e.Op, e.Kind, e.Reason, msg)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a SendError worth retrying.
func IsTransient(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Kind == Transient
}

// classify maps an HTTP status and Graph API error code to a kind and reason.
// Graph throttling codes win over the status, which is usually 400 for them.
func classify(status, code int) (ErrorKind, Reason) {
	switch code {
	case config.GraphCodeRateLimit, config.GraphCodeUserRateLimit, config.GraphCodeSpamRateLimit:
		return Transient, ReasonRateLimit
	case config.GraphCodeAuth:
		return Fatal, ReasonAuth
	case config.GraphCodeRecipientNotValid, config.GraphCodeRecipientNotAllow:
		return Fatal, ReasonRecipient
	case config.GraphCodeMediaTooLarge:
		return Fatal, ReasonMedia
	case config.GraphCodeInvalidParam:
		return Fatal, ReasonRequest
	}

	switch {
	case status == http.StatusTooManyRequests:
		return Transient, ReasonRateLimit
	case status >= http.StatusInternalServerError:
		return Transient, ReasonServer
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Fatal, ReasonAuth
	case status == http.StatusRequestEntityTooLarge:
		return Fatal, ReasonMedia
	default:
		return Fatal, ReasonRequest
	}
}

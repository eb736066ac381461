// Package apperr is the client error taxonomy. Every failure that reaches a
// user or a queue record is classified into one Kind.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindNotFound
	KindServer
	KindValidation
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Status is set for KindServer, FieldErrors
// for KindValidation.
type Error struct {
	Kind        Kind
	Status      int
	Message     string
	FieldErrors map[string]string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Kind == KindServer && e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Kind == KindValidation && len(e.FieldErrors) > 0 {
		msg = msg + ": " + JoinFieldErrors(e.FieldErrors)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "network unavailable", Err: err}
}

func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Server(status int, msg string) *Error {
	return &Error{Kind: KindServer, Status: status, Message: msg}
}

func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, FieldErrors: fields}
}

func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// KindOf returns the kind of err, classifying it if needed.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	return Classify(err).Kind
}

// Classify maps err onto the taxonomy. Already-classified errors are returned
// as is; deadline and net timeouts become KindTimeout, other dial or URL
// failures KindNetwork.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(err)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return Network(err)
	}
	return &Error{Kind: KindUnknown, Message: "unexpected error", Err: err}
}

// JoinFieldErrors renders field errors as "field: msg; field: msg" in key order.
func JoinFieldErrors(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return strings.Join(parts, "; ")
}

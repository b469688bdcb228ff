package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error kinds. Match them with errors.Is on any error returned by a Source
// or by the connector pipeline.
var (
	ErrCredentialsMissing = errors.New("credentials missing")
	ErrNetwork            = errors.New("network error")
	ErrDNS                = errors.New("dns failure")
	ErrRateLimited        = errors.New("rate limited")
	ErrAuth               = errors.New("auth error")
	ErrGeoBlocked         = errors.New("geo blocked")
	ErrInvalidResponse    = errors.New("invalid response")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrCircuitOpen        = errors.New("circuit open")
)

// Error is a classified failure of one source.
type Error struct {
	Kind   error
	Source string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Source + ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a classified error for source.
func NewError(kind error, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

// FromStatus classifies a non-2xx HTTP status. It returns nil for 2xx.
func FromStatus(source string, code int) error {
	var kind error
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		kind = ErrAuth
	case code == http.StatusNotFound:
		kind = ErrUnknownSymbol
	case code == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case code == http.StatusUnavailableForLegalReasons:
		kind = ErrGeoBlocked
	case code >= 500:
		kind = ErrNetwork
	default:
		kind = ErrInvalidResponse
	}
	return &Error{Kind: kind, Source: source, Status: code}
}

// FromTransport classifies an error returned by the HTTP client itself.
func FromTransport(source string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: ErrDNS, Source: source, Err: err}
	}
	return &Error{Kind: ErrNetwork, Source: source, Err: err}
}

// KindOf returns the error kind carried by err, or nil when err is not classified.
func KindOf(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return nil
}

// Transient reports whether err is worth another attempt.
func Transient(err error) bool {
	switch KindOf(err) {
	case ErrNetwork, ErrDNS, ErrInvalidResponse, ErrRateLimited:
		return true
	}
	return false
}

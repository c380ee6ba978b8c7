// Package apperrors classifies failures so callers can decide between
// retrying, splitting, falling back and aborting, and so user-facing output
// never repeats upstream text.
package apperrors

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindTransient  Kind = "transient"
	KindRateLimit  Kind = "rate_limit"
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindBadRequest Kind = "bad_request"
	// KindSafety marks content the upstream model refused to process.
	KindSafety         Kind = "safety"
	KindMalformed      Kind = "malformed_document"
	KindReconstruction Kind = "reconstruction"
	KindAssembly       Kind = "assembly"
)

type kindInfo struct {
	message   string
	retryable bool
}

// Validation is retryable: model output is not deterministic, so a batch
// whose reply did not line up may succeed on the next attempt. Safety is
// handled by splitting the batch instead.
var kinds = map[Kind]kindInfo{
	KindTransient:      {"Temporary upstream error. Please try again.", true},
	KindRateLimit:      {"Rate limit exceeded. Please try again later.", true},
	KindAuth:           {"Authentication failed. Please verify your API key and permissions.", false},
	KindValidation:     {"Response validation failed.", true},
	KindBadRequest:     {"Request rejected by upstream API.", false},
	KindSafety:         {"Content was rejected by the upstream safety filter.", false},
	KindMalformed:      {"Document markup could not be parsed.", false},
	KindReconstruction: {"Translated output could not be merged into the document.", false},
	KindAssembly:       {"EPUB package could not be assembled.", false},
}

type Error struct {
	Kind Kind
	// SafeMessage is shown to users and written to logs.
	SafeMessage string
	// Cause keeps the internal error for troubleshooting.
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.SafeMessage); msg != "" {
		return msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New wraps cause as kind. An empty safeMessage takes the kind's default.
func New(kind Kind, safeMessage string, cause error) error {
	msg := strings.TrimSpace(safeMessage)
	if msg == "" {
		msg = kinds[kind].message
	}
	if msg == "" {
		msg = "Request failed."
	}
	return &Error{Kind: kind, SafeMessage: msg, Cause: cause}
}

func Transient(err error) error      { return New(KindTransient, "", err) }
func RateLimit(err error) error      { return New(KindRateLimit, "", err) }
func Auth(err error) error           { return New(KindAuth, "", err) }
func Validation(err error) error     { return New(KindValidation, "", err) }
func BadRequest(err error) error     { return New(KindBadRequest, "", err) }
func Safety(err error) error         { return New(KindSafety, "", err) }
func Malformed(err error) error      { return New(KindMalformed, "", err) }
func Reconstruction(err error) error { return New(KindReconstruction, "", err) }
func Assembly(err error) error       { return New(KindAssembly, "", err) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// PublicMessage returns the safe message of a classified error, or the plain
// error text otherwise.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

func IsRetryable(err error) bool {
	k, ok := KindOf(err)
	return ok && kinds[k].retryable
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func IsRateLimit(err error) bool { return Is(err, KindRateLimit) }
func IsSafety(err error) bool    { return Is(err, KindSafety) }

package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so callers can pick a remediation.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindFormat
	KindAuthTagMismatch
	KindDeviceAuthRequired
	KindKeyStoreUnavailable
	KindNoDeviceKey
)

// Error codes for structured error handling.
const (
	ErrCodeUnknown             = "UNKNOWN_ERROR"
	ErrCodeFormat              = "FORMAT_ERROR"
	ErrCodeAuthTagMismatch     = "AUTH_TAG_MISMATCH"
	ErrCodeDeviceAuthRequired  = "DEVICE_AUTH_REQUIRED"
	ErrCodeKeyStoreUnavailable = "KEYSTORE_UNAVAILABLE"
	ErrCodeNoDeviceKey         = "NO_DEVICE_KEY"
)

// Sentinel errors, one per kind.
var (
	ErrFormat              = errors.New("malformed sealed blob")
	ErrAuthTagMismatch     = errors.New("authentication tag mismatch")
	ErrDeviceAuthRequired  = errors.New("device authentication required")
	ErrKeyStoreUnavailable = errors.New("key store unavailable")
	ErrNoDeviceKey         = errors.New("no device key enrolled")
)

// Code returns the stable string code of the kind.
func (k ErrorKind) Code() string {
	switch k {
	case KindFormat:
		return ErrCodeFormat
	case KindAuthTagMismatch:
		return ErrCodeAuthTagMismatch
	case KindDeviceAuthRequired:
		return ErrCodeDeviceAuthRequired
	case KindKeyStoreUnavailable:
		return ErrCodeKeyStoreUnavailable
	case KindNoDeviceKey:
		return ErrCodeNoDeviceKey
	default:
		return ErrCodeUnknown
	}
}

func (k ErrorKind) String() string {
	return k.Code()
}

// Sentinel returns the sentinel error matching the kind, or nil for KindUnknown.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindFormat:
		return ErrFormat
	case KindAuthTagMismatch:
		return ErrAuthTagMismatch
	case KindDeviceAuthRequired:
		return ErrDeviceAuthRequired
	case KindKeyStoreUnavailable:
		return ErrKeyStoreUnavailable
	case KindNoDeviceKey:
		return ErrNoDeviceKey
	default:
		return nil
	}
}

// Retryable reports whether the caller can recover by prompting the user
// (password or device authentication) and trying again.
func (k ErrorKind) Retryable() bool {
	return k == KindAuthTagMismatch || k == KindDeviceAuthRequired
}

// CryptoError is the single typed failure returned by sealing operations.
type CryptoError struct {
	Kind   ErrorKind
	Op     string
	Reason string
	Err    error
}

func (e *CryptoError) Error() string {
	msg := fmt.Sprintf("%s [%s]", e.Op, e.Kind.Code())
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind, so errors.Is(err, ErrFormat)
// holds for every format failure regardless of the wrapped cause.
func (e *CryptoError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && target == s
}

// NewCryptoError creates a typed error.
func NewCryptoError(kind ErrorKind, op, reason string, err error) error {
	return &CryptoError{
		Kind:   kind,
		Op:     op,
		Reason: reason,
		Err:    err,
	}
}

// KindOf extracts the kind of err. Untyped errors report KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ce *CryptoError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	for _, k := range []ErrorKind{KindFormat, KindAuthTagMismatch, KindDeviceAuthRequired, KindKeyStoreUnavailable, KindNoDeviceKey} {
		if errors.Is(err, k.Sentinel()) {
			return k
		}
	}
	return KindUnknown
}

// IsFormatError reports whether err is a malformed blob failure.
func IsFormatError(err error) bool {
	return KindOf(err) == KindFormat
}

// IsAuthTagMismatch reports whether err is an integrity failure.
func IsAuthTagMismatch(err error) bool {
	return KindOf(err) == KindAuthTagMismatch
}

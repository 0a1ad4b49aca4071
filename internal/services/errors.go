package services

import (
	"errors"
	"io/fs"
	"net"
	"strings"
	"syscall"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInputCopy          = errors.New("input copy failed")
	ErrDownload           = errors.New("download failed")
	ErrUnsupportedScheme  = errors.New("unsupported scheme")
	ErrCancelled          = errors.New("cancelled")
	ErrPersistence        = errors.New("persistence write failed")
)

// CancelledMessage is the status detail persisted when preparation is interrupted.
const CancelledMessage = "Job was cancelled"

// Error carries a classification marker, the failing operation, a
// user-facing message, and the underlying cause.
type Error struct {
	Marker    error
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	if e.Marker != nil {
		parts = append(parts, e.Marker.Error())
	}
	if op := strings.TrimSpace(e.Operation); op != "" {
		parts = append(parts, op)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Marker != nil {
		errs = append(errs, e.Marker)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Wrap tags err with one of the exported markers above so the pipeline can
// classify it later. message is the human-readable summary shown to users.
func Wrap(marker error, operation, message string, err error) error {
	if marker == nil {
		marker = ErrInputCopy
	}
	return &Error{Marker: marker, Operation: operation, Message: message, Cause: err}
}

// ErrorKind is the short classification recorded in structured logs.
type ErrorKind string

const (
	KindStorage           ErrorKind = "storage"
	KindInputCopy         ErrorKind = "input_copy"
	KindDownload          ErrorKind = "download"
	KindUnsupportedScheme ErrorKind = "unsupported_scheme"
	KindCancelled         ErrorKind = "cancelled"
	KindPersistence       ErrorKind = "persistence"
	KindUnknown           ErrorKind = "unknown"
)

// ErrorDetails is the decomposed view of a classified error.
type ErrorDetails struct {
	Kind      ErrorKind
	Operation string
	Message   string
	Cause     error
}

// Details extracts classification data from err. Unclassified errors report
// KindUnknown with the error itself as cause.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: kindOf(err), Cause: err}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		details.Operation = svcErr.Operation
		details.Message = svcErr.Message
		details.Cause = svcErr.Cause
	}
	return details
}

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrStorageUnavailable):
		return KindStorage
	case errors.Is(err, ErrInputCopy):
		return KindInputCopy
	case errors.Is(err, ErrDownload):
		return KindDownload
	case errors.Is(err, ErrUnsupportedScheme):
		return KindUnsupportedScheme
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindUnknown
	}
}

// UserMessage renders the status detail persisted for a failed job. Known
// root causes (full disk, permissions, network) replace raw error text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	details := Details(err)
	if details.Kind == KindCancelled {
		return CancelledMessage
	}
	message := strings.TrimSpace(details.Message)
	reason := ""
	if details.Cause != nil {
		reason = KnownReason(details.Cause)
		if reason == "" {
			reason = strings.TrimSpace(details.Cause.Error())
		}
	}
	switch {
	case message != "" && reason != "":
		return message + ": " + reason
	case message != "":
		return message
	case reason != "":
		return "Error: " + reason
	default:
		return "Error: " + err.Error()
	}
}

// KnownReason maps well-understood failures to a short explanation. It
// returns an empty string when err is not recognized.
func KnownReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, syscall.ENOSPC) {
		return "Not enough free storage space"
	}
	if errors.Is(err, fs.ErrPermission) {
		return "Permission denied"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "Network unavailable"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "Network unavailable"
	}
	return ""
}

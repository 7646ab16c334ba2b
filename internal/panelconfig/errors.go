package panelconfig

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorKind is the category surfaced to the user.
type ErrorKind int

const (
	// KindServiceUnreachable: no service handle, a transport failure, or a
	// response that could not be understood.
	KindServiceUnreachable ErrorKind = iota
	// KindOperationRejected: the service answered but declined the request.
	KindOperationRejected
	// KindRenderPrecondition: a view was requested without the state it needs.
	KindRenderPrecondition
)

// String returns a human-readable name for the kind
func (k ErrorKind) String() string {
	switch k {
	case KindServiceUnreachable:
		return "Service Unreachable"
	case KindOperationRejected:
		return "Operation Rejected"
	case KindRenderPrecondition:
		return "Render Precondition"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Cause narrows down why a call failed.
type Cause int

const (
	CauseGeneral Cause = iota
	CauseNoHandle
	CauseTimeout
	CauseConnectionRefused
	CauseDNS
	CauseHostUnreachable
	CauseHTTP
	CauseParse
	CauseDeclined
	CauseCanceled
)

// PanelError is returned by service clients and carried in controller
// notifications.
type PanelError struct {
	Kind       ErrorKind
	Cause      Cause
	Op         Op
	Target     string
	Message    string
	StatusCode int
	Err        error
	Retryable  bool
}

// Error implements the error interface
func (e *PanelError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(string(e.Op))
		if e.Target != "" {
			b.WriteString(" ")
			b.WriteString(e.Target)
		}
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *PanelError) Unwrap() error {
	return e.Err
}

// WithOp annotates the error with the operation and its target.
func (e *PanelError) WithOp(op Op, target string) *PanelError {
	e.Op = op
	e.Target = target
	return e
}

// ClassifyNetworkError maps a transport error onto a PanelError.
func ClassifyNetworkError(err error) *PanelError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return &PanelError{Kind: KindServiceUnreachable, Cause: CauseCanceled, Message: "Request canceled", Err: err}
	}

	if os.IsTimeout(err) {
		return &PanelError{Kind: KindServiceUnreachable, Cause: CauseTimeout, Message: "Request timed out", Err: err, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &PanelError{
			Kind:    KindServiceUnreachable,
			Cause:   CauseDNS,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:     err,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &PanelError{Kind: KindServiceUnreachable, Cause: CauseConnectionRefused, Message: "Service refused connection", Err: err, Retryable: true}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH), errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &PanelError{Kind: KindServiceUnreachable, Cause: CauseHostUnreachable, Message: "Host unreachable", Err: err, Retryable: true}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err)
	}

	return &PanelError{Kind: KindServiceUnreachable, Cause: CauseGeneral, Message: "Network error occurred", Err: err, Retryable: true}
}

// NewNetworkError creates a transport-level error with automatic classification
func NewNetworkError(message string, err error) *PanelError {
	classified := ClassifyNetworkError(err)
	if classified == nil {
		return &PanelError{Kind: KindServiceUnreachable, Message: message, Retryable: true}
	}
	classified.Message = message
	return classified
}

// NewNoHandleError is returned when the host has no service to offer.
func NewNoHandleError() *PanelError {
	return &PanelError{
		Kind:    KindServiceUnreachable,
		Cause:   CauseNoHandle,
		Message: "configuration service handle not available",
	}
}

// NewHTTPError maps a non-2xx status. 4xx means the service saw the request
// and declined it; 5xx is treated as unreachable and retried.
func NewHTTPError(statusCode int, message string) *PanelError {
	kind := KindServiceUnreachable
	if statusCode >= 400 && statusCode < 500 {
		kind = KindOperationRejected
	}
	return &PanelError{
		Kind:       kind,
		Cause:      CauseHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *PanelError {
	return &PanelError{Kind: KindServiceUnreachable, Cause: CauseParse, Message: message, Err: err}
}

// NewRejectedError is used when the service answered false.
func NewRejectedError(op Op, target string) *PanelError {
	return &PanelError{
		Kind:    KindOperationRejected,
		Cause:   CauseDeclined,
		Op:      op,
		Target:  target,
		Message: "rejected by service",
	}
}

// NewRenderError reports a view requested without the data it needs.
func NewRenderError(message string) *PanelError {
	return &PanelError{Kind: KindRenderPrecondition, Message: message}
}

func asPanelError(err error) (*PanelError, bool) {
	var pe *PanelError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsServiceUnreachable checks if an error is a ServiceUnreachable error
func IsServiceUnreachable(err error) bool {
	pe, ok := asPanelError(err)
	return ok && pe.Kind == KindServiceUnreachable
}

// IsOperationRejected checks if an error is an OperationRejected error
func IsOperationRejected(err error) bool {
	pe, ok := asPanelError(err)
	return ok && pe.Kind == KindOperationRejected
}

// IsRenderPrecondition checks if an error is a RenderPrecondition error
func IsRenderPrecondition(err error) bool {
	pe, ok := asPanelError(err)
	return ok && pe.Kind == KindRenderPrecondition
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	pe, ok := asPanelError(err)
	return ok && pe.Retryable
}

// KindOf returns the error kind, defaulting to ServiceUnreachable for errors
// that did not come from this package.
func KindOf(err error) ErrorKind {
	if pe, ok := asPanelError(err); ok {
		return pe.Kind
	}
	return KindServiceUnreachable
}

// GetTroubleshootingHint returns user-friendly advice for an error
func GetTroubleshootingHint(err error) string {
	pe, ok := asPanelError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch pe.Cause {
	case CauseNoHandle:
		return strings.Join([]string{
			"No configuration service is available.",
			"Troubleshooting:",
			"  • Pass --service with the service URL",
			"  • Run 'hubcfg scan' to find services on the network",
		}, "\n")
	case CauseTimeout:
		return strings.Join([]string{
			"The configuration service did not respond in time.",
			"Troubleshooting:",
			"  • Check that hubcfg-server is running",
			"  • Try again; the request may succeed on retry",
		}, "\n")
	case CauseConnectionRefused:
		return strings.Join([]string{
			"The configuration service refused the connection.",
			"Troubleshooting:",
			"  • Check the port in the service URL",
			"  • Start the service with 'hubcfg-server serve'",
		}, "\n")
	case CauseDNS:
		return "Could not resolve the service hostname. Use an IP address instead."
	case CauseHostUnreachable:
		return "The service host is not reachable. Check that you are on the same network."
	case CauseParse:
		return "The service answered with data that could not be read. Check that client and server versions match."
	case CauseDeclined:
		return "The service declined the change. The value may be unknown or the profile read-only."
	case CauseHTTP:
		if pe.StatusCode >= 500 {
			return fmt.Sprintf("The service failed internally (HTTP %d). Check the server log.", pe.StatusCode)
		}
		return fmt.Sprintf("The service rejected the request (HTTP %d).", pe.StatusCode)
	}
	return "An error occurred. Please check the error message for details."
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	pe, ok := asPanelError(err)
	if !ok {
		return err.Error()
	}

	switch pe.Cause {
	case CauseNoHandle:
		return "Configuration service not available"
	case CauseTimeout:
		return "Service not responding (timeout)"
	case CauseConnectionRefused:
		return "Service refused connection"
	case CauseDNS:
		return "Cannot resolve service hostname"
	case CauseHostUnreachable:
		return "Service unreachable - check network connection"
	case CauseHTTP:
		return fmt.Sprintf("Service error (HTTP %d)", pe.StatusCode)
	case CauseParse:
		return "Failed to parse service response"
	case CauseDeclined:
		return "Rejected by service"
	case CauseCanceled:
		return "Request canceled"
	}
	return pe.Message
}

// statusText is used for HTTP errors without a body.
func statusText(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return fmt.Sprintf("status %d", code)
}

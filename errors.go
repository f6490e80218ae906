package flashkv

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a structured flashkv error carrying the operation, the core
// it happened on, and a high-level category for errors.Is matching.
type Error struct {
	Op       string    // Operation that failed (e.g. "dispatch", "classify", "transmit")
	Core     int       // Core ID (-1 if not applicable)
	TenantID uint32    // Tenant ID (0 if not applicable)
	Code     ErrorCode // High-level error category
	Msg      string    // Human-readable message
	Inner    error     // Wrapped error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Core >= 0 {
		parts = append(parts, fmt.Sprintf("core=%d", e.Core))
	}
	if e.TenantID != 0 {
		parts = append(parts, fmt.Sprintf("tenant=%d", e.TenantID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("flashkv: %s (%s)", msg, strings.Join(parts, " "))
	}
	return fmt.Sprintf("flashkv: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is the error taxonomy a Server Core's request path can
// raise. Malformed packets are not represented here: they are silently
// dropped and counted by the Observer rather than surfaced as errors.
type ErrorCode string

const (
	// ErrCodeUnknownOpcode covers a request naming a service kind,
	// opcode, or extension this core has no handler for. Logged at
	// debug level; both the request and the (absent) response are
	// dropped.
	ErrCodeUnknownOpcode ErrorCode = "unknown opcode"

	// ErrCodeDispatchRefusal covers a service.Dispatch call failing for
	// a reason that indicates a programming fault rather than bad
	// client input — logged at error level.
	ErrCodeDispatchRefusal ErrorCode = "dispatch refusal"

	// ErrCodeTransmitShortfall covers a transmit burst accepting fewer
	// buffers than were staged. The shortfall is logged as a warning;
	// the core does not retry the dropped responses.
	ErrCodeTransmitShortfall ErrorCode = "transmit shortfall"

	// ErrCodeQuotaExceeded covers a Context.Alloc call exceeding its
	// request's allocation quota, surfaced back to the extension that
	// made the call.
	ErrCodeQuotaExceeded ErrorCode = "quota exceeded"

	// ErrCodeCompromised covers a core whose scheduler has been marked
	// compromised by the supervisor's watchdog; Scheduler.Run unwinds
	// rather than continuing to step tasks on that core.
	ErrCodeCompromised ErrorCode = "compromised scheduler"
)

// NewError builds a structured Error with no core or tenant context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Core: -1, Code: code, Msg: msg}
}

// NewCoreError builds a structured Error scoped to a specific core.
func NewCoreError(op string, core int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Core: core, Code: code, Msg: msg}
}

// NewTenantError builds a structured Error scoped to a core and tenant.
func NewTenantError(op string, core int, tenantID uint32, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Core: core, TenantID: tenantID, Code: code, Msg: msg}
}

// WrapError wraps inner with flashkv context, classifying it as
// ErrCodeDispatchRefusal unless inner is already a structured Error (in
// which case its code is preserved).
func WrapError(op string, core int, inner error) *Error {
	if inner == nil {
		return nil
	}
	if fe, ok := inner.(*Error); ok {
		return &Error{Op: op, Core: core, TenantID: fe.TenantID, Code: fe.Code, Msg: fe.Msg, Inner: fe.Inner}
	}
	return &Error{Op: op, Core: core, Code: ErrCodeDispatchRefusal, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a structured Error of the given code.
func IsCode(err error, code ErrorCode) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a model-call failure. The classification decides failover
// behavior inside the gateway (rotate credentials or give up) and how the
// mission engine pauses afterwards.
type Kind int

const (
	KindUnknown Kind = iota
	// KindQuotaKey is a per-credential quota hit (429-equivalent); the next
	// credential in the pool may still succeed.
	KindQuotaKey
	// KindQuotaGlobal is a project-wide quota exhaustion; rotating keys
	// cannot help.
	KindQuotaGlobal
	// KindServerTransient is a 5xx-equivalent upstream failure.
	KindServerTransient
	// KindContentBlocked is a safety or recitation block on the request or
	// response; identical on every credential.
	KindContentBlocked
	// KindInvalidRequest is a client-side error (bad request, bad schema).
	KindInvalidRequest
	// KindParseFailure marks structured output that did not unmarshal into
	// the expected shape. Emitted by the mission engine, not by providers.
	KindParseFailure
)

func (k Kind) String() string {
	switch k {
	case KindQuotaKey:
		return "quota-key"
	case KindQuotaGlobal:
		return "quota-global"
	case KindServerTransient:
		return "server-transient"
	case KindContentBlocked:
		return "content-blocked"
	case KindInvalidRequest:
		return "invalid-request"
	case KindParseFailure:
		return "parse-failure"
	}
	return "unknown"
}

// Error is a classified model-call failure.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (http %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether switching to another credential can help.
func (e *Error) Retryable() bool {
	return e.Kind == KindQuotaKey || e.Kind == KindServerTransient
}

// AsError extracts the classified error, wrapping anything unclassified as
// KindUnknown so callers can always switch on Kind.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Kind: KindUnknown, Message: err.Error()}
}

// IsQuota reports whether err is a quota condition of either scope. The
// mission engine uses this to pick auto-pause over manual pause.
func IsQuota(err error) bool {
	k := AsError(err).Kind
	return k == KindQuotaKey || k == KindQuotaGlobal
}

// ErrPoolExhausted is returned when every credential failed without any
// attempt recording a concrete error.
var ErrPoolExhausted = &Error{Kind: KindUnknown, Message: "credential pool exhausted without a recorded error"}

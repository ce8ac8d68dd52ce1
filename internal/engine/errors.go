package engine

// Kind classifies an engine error so callers (mainly the HTTP layer) know
// how to react: fail the request, log and continue, or crash at startup.
type Kind int

const (
	// KindInvalidInput maps to HTTP 400: the caller sent something the
	// pipeline cannot score (empty, over-long or non-punycodable domain).
	KindInvalidInput Kind = iota
	// KindModelLoad is fatal at process startup — a process without a
	// working student model cannot score anything.
	KindModelLoad
	// KindIntelRefresh is logged only; the prior intel snapshot is kept.
	KindIntelRefresh
	// KindBackgroundSink is logged only; the response already went out.
	KindBackgroundSink
	// KindInternal maps to an opaque HTTP 500.
	KindInternal
)

// Error wraps an underlying error with a Kind so the caller can dispatch
// on it with errors.As instead of string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// newError builds an *Error of the given kind.
func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

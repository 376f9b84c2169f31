package hostcall

// BackendError lets a backend (tool runner, HTTP transport, session
// store, ...) signal which outcome error code its failure should map to,
// instead of the dispatcher guessing from an opaque error string.
type BackendError struct {
	Code    ErrorCode
	Message string
}

func (e *BackendError) Error() string { return e.Message }

// NewBackendError wraps msg as a BackendError carrying an explicit code,
// for backends that need a code outside the Not Found/Timeout/Cancelled/
// Unsupported shorthands (invalid_request, denied, internal).
func NewBackendError(code ErrorCode, msg string) error {
	return &BackendError{Code: code, Message: msg}
}

// NotFound wraps msg as a not_found BackendError.
func NotFound(msg string) error { return &BackendError{Code: ErrNotFound, Message: msg} }

// Timeout wraps msg as a timeout BackendError.
func Timeout(msg string) error { return &BackendError{Code: ErrTimeout, Message: msg} }

// Cancelled wraps msg as a cancelled BackendError.
func Cancelled(msg string) error { return &BackendError{Code: ErrCancelled, Message: msg} }

// Unsupported wraps msg as an unsupported BackendError.
func Unsupported(msg string) error { return &BackendError{Code: ErrUnsupported, Message: msg} }

// classify maps an arbitrary backend error to an outcome error code: a
// *BackendError keeps its declared code, anything else becomes internal
// (: "all others -> internal", and: engine-internal failures
// never panic the runtime, they become an opaque internal outcome).
func classify(err error) (ErrorCode, string) {
	if be, ok := err.(*BackendError); ok {
		return be.Code, be.Message
	}
	return ErrInternal, err.Error()
}

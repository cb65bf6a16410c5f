package beat

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Call sites discriminate with errors.Is; no string
// matching is required.
var (
	ErrInvalidAudio       = errors.New("invalid audio")
	ErrInvalidConfig      = errors.New("invalid config")
	ErrInvalidFormat      = errors.New("invalid format")
	ErrFileNotFound       = errors.New("file not found")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrDecoderFailure     = errors.New("decoder failure")
	ErrPluginFailure      = errors.New("plugin failure")
	ErrStreamAborted      = errors.New("stream aborted")
	ErrComputationFailure = errors.New("computation failure")
)

// Error is the single error type surfaced by a parse. It records the
// pipeline stage that failed and the offending parameter or index where
// applicable.
type Error struct {
	Kind  error  // one of the sentinel kinds above
	Stage string // e.g. "onset", "tempo", "stream"
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	s := e.Msg
	if e.Stage != "" {
		s = fmt.Sprintf("%s: %s", e.Stage, s)
	}
	if e.Kind != nil {
		s = fmt.Sprintf("%s: %s", e.Kind.Error(), s)
	}
	if e.Cause != nil {
		s = fmt.Sprintf("%s: %v", s, e.Cause)
	}
	return s
}

// Is reports whether target matches this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Errorf builds a stage-tagged error of the given kind.
func Errorf(kind error, stage string, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a stage-tagged error of the given kind.
func Wrap(kind error, stage string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

package capture

import "errors"

// Kind classifies capture failures.
type Kind string

const (
	KindEmptyRegion      Kind = "empty_region"
	KindDegenerateRegion Kind = "degenerate_region"
	KindNoTargetSurface  Kind = "no_target_surface"
	KindExtractionFailed Kind = "extraction_failed"
)

var (
	ErrEmptyRegion      = errors.New("selection has zero area")
	ErrDegenerateRegion = errors.New("selection maps to an empty bitmap region")
	ErrNoTargetSurface  = errors.New("no page surface under selection")
	ErrExtractionFailed = errors.New("failed to read page pixels")
)

var sentinels = map[Kind]error{
	KindEmptyRegion:      ErrEmptyRegion,
	KindDegenerateRegion: ErrDegenerateRegion,
	KindNoTargetSurface:  ErrNoTargetSurface,
	KindExtractionFailed: ErrExtractionFailed,
}

// Error is returned by Pipeline.Capture. errors.Is matches it against the
// package sentinel for its Kind and against the wrapped cause.
type Error struct {
	Kind Kind
	Err  error
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	msg := sentinels[e.Kind].Error()
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{sentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind of a capture error, or "" for other errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

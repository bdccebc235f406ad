// Package output delivers capture results and preview frames to their
// consumers.
package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/PageGrab/internal/capture"
)

// Sink receives finished captures.
type Sink interface {
	// Name returns a human-readable name for this sink
	Name() string

	// Write delivers one capture. Implementations must be safe for
	// concurrent use.
	Write(ctx context.Context, res *capture.Result) error
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Name() string { return "multi" }

func (m MultiSink) Write(ctx context.Context, res *capture.Result) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, res); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

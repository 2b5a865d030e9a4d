package textract

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/textract/format"
)

// ErrUnknownFormat is surfaced when neither content signature nor declared
// hint resolves a format. Alias of format.ErrUnknown so callers can match
// either.
var ErrUnknownFormat = format.ErrUnknown

var (
	// ErrUnsupportedFormat is returned when a format was detected but no
	// decoder is registered for it.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrTimeout is returned for a request (or batch slot) whose deadline
	// expired before extraction finished.
	ErrTimeout = errors.New("extraction timed out")

	// ErrPasswordRequired signals that a decoder needs a credential to
	// open the document. The fallback orchestrator retries with the
	// configured passwords before degrading to a metadata-only result.
	ErrPasswordRequired = errors.New("password required")
)

// ExtractionError wraps a decoder fault with the format that produced it.
type ExtractionError struct {
	Format format.Format
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError aborts a request after a successful extraction. Only
// validators produce it.
type ValidationError struct {
	Validator string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Validator, e.Reason)
}

// ConfigError reports an invalid configuration field. It is raised before
// any extraction work begins.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// StreamError reports a parse fault in the middle of a stream. Decoders
// supporting incremental parsing return it together with the partial
// outcome produced before the fault, so the orchestrator can salvage the
// progress instead of discarding it.
type StreamError struct {
	Offset int64
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream corrupted at byte %d: %v", e.Offset, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

package merge

import (
	stderrors "errors"
	"fmt"

	"github.com/segmentio/cdcmerge/pkg/event"
)

// Kind classifies why derivation did not produce a descriptor.
type Kind int

const (
	// KindUnmergeable means no primary keys could be resolved for the
	// event's table, so consolidation is impossible.
	KindUnmergeable Kind = iota + 1
	// KindDegradedOrdering means no sort keys could be resolved. A
	// descriptor is still produced; this kind only shows up in logs and
	// metrics, never in a returned error.
	KindDegradedOrdering
	// KindFormat means a naming template referenced data absent from
	// the event.
	KindFormat
	// KindUnexpected covers every other failure during derivation.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindUnmergeable:
		return "unmergeable"
	case KindDegradedOrdering:
		return "degraded-ordering"
	case KindFormat:
		return "format"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// DerivationError reports why a single change event produced no merge
// descriptor. It never aborts the stream; callers drop the event and
// continue.
type DerivationError struct {
	Kind  Kind
	Table event.TableID
	Err   error
}

func (e *DerivationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("derivation failed for %s: %s", e.Table, e.Kind)
	}
	return fmt.Sprintf("derivation failed for %s: %s: %s", e.Table, e.Kind, e.Err)
}

func (e *DerivationError) Unwrap() error {
	return e.Err
}

// KindOf extracts the derivation error kind from an error chain, or
// zero if the error is not a DerivationError.
func KindOf(err error) Kind {
	var derr *DerivationError
	if stderrors.As(err, &derr) {
		return derr.Kind
	}
	return 0
}

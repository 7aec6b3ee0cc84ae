package orchestrator

import (
	"errors"
	"fmt"

	"github.com/spacesedan/insightflow/internal/models"
)

// ErrNoUsableItems is returned when the configured window and sources
// yield nothing to analyze, or when every fetched item fails analysis.
var ErrNoUsableItems = errors.New("no usable feedback items")

// InsufficientDataError explains why a source was excluded from a run.
// It is surfaced as the source's status caveat, not as a run failure.
type InsufficientDataError struct {
	Source    models.SourceKind
	ItemCount int
	Min       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("source %s has %d usable items, need at least %d", e.Source, e.ItemCount, e.Min)
}

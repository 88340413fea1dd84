package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageBatchStart Stage = "BATCH_START"
	StagePageStart  Stage = "PAGE_START"
	StagePageDone   Stage = "PAGE_DONE"
	StagePageError  Stage = "PAGE_ERROR"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
)

// Event captures one step of a prerender run.
type Event struct {
	// RunID identifies the pipeline run that emitted the event.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Batch is the 1-based batch index; Batches the total number of batches.
	Batch   int
	Batches int
	// URL is the fully-qualified page URL for page events.
	URL string
	// Bytes is the size of the written document for PAGE_DONE.
	Bytes int64
	// Dur is the page render time, or the run time for RUN_DONE/RUN_ERROR.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageBatchStart:
		if e.Batch < 1 || e.Batch > e.Batches {
			return fmt.Errorf("batch %d out of range 1..%d", e.Batch, e.Batches)
		}
	case StagePageStart, StagePageDone, StagePageError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

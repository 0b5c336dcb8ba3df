package pipeline

import (
	"errors"
	"fmt"

	"github.com/ignite/audio-retro/internal/config"
	"github.com/ignite/audio-retro/internal/drive"
	"github.com/ignite/audio-retro/internal/podscribe"
	"github.com/ignite/audio-retro/internal/regions"
)

var (
	// ErrNoFolder means the parent holds no dashboard export folder.
	ErrNoFolder = drive.ErrNoFolder
	// ErrNoPrimaryFile means the folder has neither a vendor export nor a
	// geo/spend metrics CSV.
	ErrNoPrimaryFile = errors.New("no Podscribe or geo/spend CSV file in folder")
	// ErrRunInProgress is returned when another run holds the lock.
	ErrRunInProgress = errors.New("a run is already in progress")
)

// StageError wraps a fatal failure with the stage and file it happened in.
type StageError struct {
	Stage string
	File  string
	Err   error
}

func (e *StageError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.File, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage, file string, err error) error {
	return &StageError{Stage: stage, File: file, Err: err}
}

// IsConfigError reports failures caused by inputs or settings rather than a
// collaborator outage.
func IsConfigError(err error) bool {
	for _, target := range []error{
		ErrNoFolder,
		ErrNoPrimaryFile,
		podscribe.ErrNoDataRows,
		regions.ErrMissingColumns,
		config.ErrInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

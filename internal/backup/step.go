package backup

import (
	"context"
	"path/filepath"
	"time"

	"compose-backup/internal/archive"
	"compose-backup/internal/compose"
	"compose-backup/internal/discovery"
	apperrors "compose-backup/internal/errors"
	"compose-backup/internal/logging"
)

// Step performs the full stop/archive/restart sequence for one folder.
// Failures inside a step never abort the run; they are recorded in the
// result and the engine moves on to the next folder.
type Step interface {
	Execute(ctx context.Context, entry discovery.ProjectEntry, backupDir string) FolderBackupResult
}

// folderStep implements the Step interface
type folderStep struct {
	controller compose.ProjectController
	archiver   archive.Archiver
	inspector  compose.ProjectInspector
	logger     *logging.Logger
	sourcePath string
	now        func() time.Time
}

// NewStep creates the per-folder backup step. The inspector is optional;
// when present it is used only to log whether a stop actually quiesced
// the project.
func NewStep(controller compose.ProjectController, archiver archive.Archiver, inspector compose.ProjectInspector, logger *logging.Logger, sourcePath string) Step {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &folderStep{
		controller: controller,
		archiver:   archiver,
		inspector:  inspector,
		logger:     logger,
		sourcePath: sourcePath,
		now:        time.Now,
	}
}

// Execute runs stop, archive and start for one folder. Plain folders are
// archived without the container phases. A stop failure does not skip the
// archive, and an archive failure does not skip the restart: the goal is
// to always leave the project running and to capture whatever can be
// captured.
func (s *folderStep) Execute(ctx context.Context, entry discovery.ProjectEntry, backupDir string) FolderBackupResult {
	start := s.now()
	result := FolderBackupResult{Entry: entry, Outcome: OutcomeSuccess}

	if entry.HasComposeManifest {
		if err := s.controller.StopProject(ctx, entry.Path); err != nil {
			result.Outcome = result.Outcome.Worse(OutcomeContainerStopFailed)
			result.Errors = append(result.Errors, apperrors.ClassifyError(err))
		} else {
			s.verifyStopped(ctx, entry)
		}
	}

	archiveName := start.Format(TimestampLayout) + "_" + entry.Name + s.archiver.Extension()
	archivePath := filepath.Join(backupDir, archiveName)
	if err := s.archiver.Create(archivePath, s.sourcePath, entry.Name); err != nil {
		result.Outcome = result.Outcome.Worse(OutcomeArchiveFailed)
		result.Errors = append(result.Errors, apperrors.ClassifyError(err))
	} else {
		result.ArchivePath = archivePath
	}

	if entry.HasComposeManifest {
		if err := s.controller.StartProject(ctx, entry.Path); err != nil {
			result.Outcome = result.Outcome.Worse(OutcomeContainerStartFailed)
			result.Errors = append(result.Errors, apperrors.ClassifyError(err))
		}
	}

	result.Duration = s.now().Sub(start)

	var firstErr error
	if len(result.Errors) > 0 {
		firstErr = result.Errors[0]
	}
	s.logger.LogProjectBackup(entry.Name, result.ArchivePath, entry.HasComposeManifest, result.Duration, firstErr)

	return result
}

// verifyStopped logs a warning when containers of the project are still
// running after a successful stop. Advisory only.
func (s *folderStep) verifyStopped(ctx context.Context, entry discovery.ProjectEntry) {
	if s.inspector == nil {
		return
	}

	running, err := s.inspector.RunningContainers(ctx, entry.Name)
	if err != nil {
		s.logger.Debugf("Could not inspect containers for %s: %v", entry.Name, err)
		return
	}
	if running > 0 {
		s.logger.Warnf("Project %s reports %d containers still running after stop", entry.Name, running)
	}
}

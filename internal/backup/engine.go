package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"compose-backup/internal/archive"
	"compose-backup/internal/compose"
	"compose-backup/internal/config"
	"compose-backup/internal/discovery"
	apperrors "compose-backup/internal/errors"
	"compose-backup/internal/logging"
)

// ScriptConfigEntryName is the fixed name of the final archive of the run,
// holding the tool's own binary and configuration file.
const ScriptConfigEntryName = "script_and_config"

// EngineParams wires the engine's collaborators
type EngineParams struct {
	Config     *config.Config
	ConfigPath string
	Scanner    discovery.Scanner
	Step       Step
	Archiver   archive.Archiver
	Rotator    Rotator
	Controller compose.ProjectController
	Logger     *logging.Logger
}

// Engine drives one full backup pass: dated directory creation, folder
// discovery, the per-folder step, the script/config archive and finally
// retention rotation. Folders are processed strictly one at a time.
type Engine struct {
	cfg        *config.Config
	configPath string
	scanner    discovery.Scanner
	step       Step
	archiver   archive.Archiver
	rotator    Rotator
	controller compose.ProjectController
	logger     *logging.Logger
	now        func() time.Time

	mu       sync.Mutex
	inFlight *discovery.ProjectEntry
}

// NewEngine creates a backup engine
func NewEngine(p EngineParams) *Engine {
	logger := p.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Engine{
		cfg:        p.Config,
		configPath: p.ConfigPath,
		scanner:    p.Scanner,
		step:       p.Step,
		archiver:   p.Archiver,
		rotator:    p.Rotator,
		controller: p.Controller,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one backup pass. Only a missing source path or an
// uncreatable backup directory abort the run; everything else is recorded
// per folder and the pass continues. Rotation runs exactly once at the
// end, regardless of per-folder failures.
func (e *Engine) Run(ctx context.Context) (*BackupRun, error) {
	started := e.now()
	run := &BackupRun{
		ID:        uuid.NewString(),
		DateStamp: started.Format(DateStampLayout),
		StartedAt: started,
	}
	run.BackupDir = filepath.Join(e.cfg.DestPath, run.DateStamp)

	e.logger.WithFields(map[string]interface{}{
		"run_id":     run.ID,
		"source":     e.cfg.SourcePath,
		"backup_dir": run.BackupDir,
	}).Info("Starting backup run")

	// MkdirAll is a no-op when the dated directory already exists, so a
	// second run on the same day lands in the same directory.
	if err := os.MkdirAll(run.BackupDir, 0o755); err != nil {
		return nil, apperrors.NewFatalError(apperrors.ErrorTypeBackupDir,
			fmt.Sprintf("failed to create backup directory %s", run.BackupDir), err)
	}

	entries, err := e.scanner.Scan(e.cfg.SourcePath, e.cfg.Excludes())
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if ctx.Err() != nil {
			e.logger.Warn("Backup run interrupted, skipping remaining folders")
			break
		}

		e.setInFlight(&entries[i])
		result := e.step.Execute(ctx, entries[i], run.BackupDir)
		e.setInFlight(nil)

		run.Results = append(run.Results, result)
	}

	e.archiveScriptAndConfig(run)

	run.Rotation = e.rotator.Rotate(e.cfg.DestPath, e.cfg.RetentionCount, false)

	run.Duration = e.now().Sub(run.StartedAt)
	counts := run.CountByOutcome()
	e.logger.WithFields(map[string]interface{}{
		"run_id":    run.ID,
		"folders":   len(run.Results),
		"succeeded": counts[OutcomeSuccess],
		"failed":    len(run.Results) - counts[OutcomeSuccess],
		"outcome":   run.WorstOutcome().String(),
		"duration":  run.Duration.String(),
	}).Info("Backup run finished")

	return run, nil
}

// RestartInFlight brings the currently stopped project back up. It is the
// cleanup hook invoked on interruption so a half-finished folder is not
// left with its containers down.
func (e *Engine) RestartInFlight(ctx context.Context) error {
	e.mu.Lock()
	entry := e.inFlight
	e.mu.Unlock()

	if entry == nil || !entry.HasComposeManifest {
		return nil
	}

	e.logger.Warnf("Restarting interrupted project %s", entry.Name)
	return e.controller.StartProject(ctx, entry.Path)
}

func (e *Engine) setInFlight(entry *discovery.ProjectEntry) {
	e.mu.Lock()
	e.inFlight = entry
	e.mu.Unlock()
}

// archiveScriptAndConfig stages the tool's binary and configuration file
// into a temporary directory and archives them as the run's final fixed
// entry. Failure here never affects the folder results.
func (e *Engine) archiveScriptAndConfig(run *BackupRun) {
	stage, err := os.MkdirTemp("", "compose-backup-")
	if err != nil {
		run.ScriptConfigErr = apperrors.NewAppError(apperrors.ErrorTypeArchive,
			"failed to stage script and config archive", err)
		return
	}
	defer os.RemoveAll(stage)

	inner := filepath.Join(stage, ScriptConfigEntryName)
	if err := os.Mkdir(inner, 0o755); err != nil {
		run.ScriptConfigErr = apperrors.NewAppError(apperrors.ErrorTypeArchive,
			"failed to stage script and config archive", err)
		return
	}

	staged := 0
	if e.configPath != "" {
		if err := copyFile(e.configPath, filepath.Join(inner, filepath.Base(e.configPath))); err != nil {
			e.logger.Debugf("Could not stage config file: %v", err)
		} else {
			staged++
		}
	}
	if executable, err := os.Executable(); err == nil {
		if err := copyFile(executable, filepath.Join(inner, filepath.Base(executable))); err != nil {
			e.logger.Debugf("Could not stage executable: %v", err)
		} else {
			staged++
		}
	}

	if staged == 0 {
		run.ScriptConfigErr = apperrors.NewAppError(apperrors.ErrorTypeArchive,
			"no script or config artifacts could be staged", nil)
		return
	}

	archivePath := filepath.Join(run.BackupDir, ScriptConfigEntryName+e.archiver.Extension())
	if err := e.archiver.Create(archivePath, stage, ScriptConfigEntryName); err != nil {
		run.ScriptConfigErr = err
		return
	}
	run.ScriptConfigArchive = archivePath
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

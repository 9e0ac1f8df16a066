package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compose-backup/internal/archive"
	"compose-backup/internal/config"
	"compose-backup/internal/discovery"
	apperrors "compose-backup/internal/errors"
)

// mapController fails stop or start for selected folders only
type mapController struct {
	calls     []string
	stopErrs  map[string]error
	startErrs map[string]error
}

func (m *mapController) StopProject(ctx context.Context, folderPath string) error {
	name := filepath.Base(folderPath)
	m.calls = append(m.calls, "stop:"+name)
	return m.stopErrs[name]
}

func (m *mapController) StartProject(ctx context.Context, folderPath string) error {
	name := filepath.Base(folderPath)
	m.calls = append(m.calls, "start:"+name)
	return m.startErrs[name]
}

func makeSourceTree(t *testing.T) string {
	t.Helper()
	source := t.TempDir()

	// a: compose project, b: plain folder, c: compose project
	for _, name := range []string{"a", "c"} {
		require.NoError(t, os.Mkdir(filepath.Join(source, name), 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(source, name, "docker-compose.yml"),
			[]byte("services:\n  app:\n    image: busybox\n"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(source, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "b", "data.txt"), []byte("payload"), 0o644))

	return source
}

func newTestEngine(t *testing.T, cfg *config.Config, controller *mapController) *Engine {
	t.Helper()
	logger := quietLogger(t)

	archiver, err := archive.NewArchiver(cfg.Compression)
	require.NoError(t, err)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("retention_count: 0\n"), 0o644))

	return NewEngine(EngineParams{
		Config:     cfg,
		ConfigPath: configPath,
		Scanner:    discovery.NewScanner(logger),
		Step:       NewStep(controller, archiver, nil, logger, cfg.SourcePath),
		Archiver:   archiver,
		Rotator:    NewRotator(logger),
		Controller: controller,
		Logger:     logger,
	})
}

func TestEngineRunFullPass(t *testing.T) {
	source := makeSourceTree(t)
	dest := t.TempDir()
	cfg := &config.Config{
		SourcePath:  source,
		DestPath:    dest,
		Compression: config.CompressionGzip,
		StopTimeout: time.Second,
	}

	controller := &mapController{
		stopErrs: map[string]error{"c": errors.New("stop failed")},
	}
	engine := newTestEngine(t, cfg, controller)

	run, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, time.Now().Format(DateStampLayout), run.DateStamp)
	assert.DirExists(t, run.BackupDir)

	// Folders are processed in name order, one at a time
	assert.Equal(t, []string{"stop:a", "start:a", "stop:c", "start:c"}, controller.calls)

	require.Len(t, run.Results, 3)
	assert.Equal(t, "a", run.Results[0].Entry.Name)
	assert.Equal(t, OutcomeSuccess, run.Results[0].Outcome)
	assert.Equal(t, "b", run.Results[1].Entry.Name)
	assert.Equal(t, OutcomeSuccess, run.Results[1].Outcome)
	assert.Equal(t, "c", run.Results[2].Entry.Name)
	assert.Equal(t, OutcomeContainerStopFailed, run.Results[2].Outcome)

	// Every folder got an archive, including the one whose stop failed
	for _, result := range run.Results {
		assert.FileExists(t, result.ArchivePath)
		assert.Equal(t, run.BackupDir, filepath.Dir(result.ArchivePath))
	}

	require.NoError(t, run.ScriptConfigErr)
	assert.FileExists(t, run.ScriptConfigArchive)
	assert.Equal(t, ScriptConfigEntryName+".tar.gz", filepath.Base(run.ScriptConfigArchive))

	require.NotNil(t, run.Rotation)
	assert.Equal(t, OutcomeContainerStopFailed, run.WorstOutcome())
}

func TestEngineRunIsIdempotentForSameDay(t *testing.T) {
	source := makeSourceTree(t)
	dest := t.TempDir()
	cfg := &config.Config{
		SourcePath:  source,
		DestPath:    dest,
		Compression: config.CompressionGzip,
	}

	engine := newTestEngine(t, cfg, &mapController{})

	first, err := engine.Run(context.Background())
	require.NoError(t, err)

	second, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.BackupDir, second.BackupDir)
	assert.DirExists(t, second.BackupDir)
}

func TestEngineRotatesDespiteFolderFailures(t *testing.T) {
	source := makeSourceTree(t)
	dest := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dest, "2020-01-01"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dest, "2020-01-02"), 0o755))

	cfg := &config.Config{
		SourcePath:     source,
		DestPath:       dest,
		RetentionCount: 2,
		Compression:    config.CompressionGzip,
	}

	controller := &mapController{
		stopErrs:  map[string]error{"a": errors.New("stop failed")},
		startErrs: map[string]error{"c": errors.New("start failed")},
	}
	engine := newTestEngine(t, cfg, controller)

	run, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, run.Rotation)
	assert.Contains(t, run.Rotation.Removed, "2020-01-01")
	assert.Contains(t, run.Rotation.Kept, run.DateStamp)
	assert.NoDirExists(t, filepath.Join(dest, "2020-01-01"))
	assert.Equal(t, OutcomeContainerStartFailed, run.WorstOutcome())
}

func TestEngineMissingSourceIsFatal(t *testing.T) {
	cfg := &config.Config{
		SourcePath:  "/definitely/not/a/real/dir",
		DestPath:    t.TempDir(),
		Compression: config.CompressionGzip,
	}

	engine := newTestEngine(t, cfg, &mapController{})

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsFatalError(err))
	assert.Equal(t, apperrors.ErrorTypeSourceNotFound, apperrors.GetErrorType(err))
}

func TestEngineUncreatableBackupDirIsFatal(t *testing.T) {
	dest := t.TempDir()
	blocker := filepath.Join(dest, "backups")
	require.NoError(t, os.WriteFile(blocker, []byte("a file where a directory must go"), 0o644))

	cfg := &config.Config{
		SourcePath:  makeSourceTree(t),
		DestPath:    blocker,
		Compression: config.CompressionGzip,
	}

	engine := newTestEngine(t, cfg, &mapController{})

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsFatalError(err))
	assert.Equal(t, apperrors.ErrorTypeBackupDir, apperrors.GetErrorType(err))
}

func TestEngineCancelledContextSkipsRemainingFolders(t *testing.T) {
	source := makeSourceTree(t)
	cfg := &config.Config{
		SourcePath:  source,
		DestPath:    t.TempDir(),
		Compression: config.CompressionGzip,
	}

	engine := newTestEngine(t, cfg, &mapController{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, run.Results)
}

func TestEngineRestartInFlight(t *testing.T) {
	source := makeSourceTree(t)
	cfg := &config.Config{
		SourcePath:  source,
		DestPath:    t.TempDir(),
		Compression: config.CompressionGzip,
	}

	controller := &mapController{}
	engine := newTestEngine(t, cfg, controller)

	// Nothing in flight: no restart
	require.NoError(t, engine.RestartInFlight(context.Background()))
	assert.Empty(t, controller.calls)

	entry := discovery.ProjectEntry{
		Name:               "a",
		Path:               filepath.Join(source, "a"),
		HasComposeManifest: true,
	}
	engine.setInFlight(&entry)
	require.NoError(t, engine.RestartInFlight(context.Background()))
	assert.Equal(t, []string{"start:a"}, controller.calls)

	// Plain folders are never restarted
	controller.calls = nil
	plain := discovery.ProjectEntry{Name: "b", Path: filepath.Join(source, "b")}
	engine.setInFlight(&plain)
	require.NoError(t, engine.RestartInFlight(context.Background()))
	assert.Empty(t, controller.calls)
}

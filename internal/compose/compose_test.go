package compose

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "compose-backup/internal/errors"
	"compose-backup/internal/logging"
)

type recordedCall struct {
	dir  string
	name string
	args []string
}

// fakeRunner records invocations and returns a canned result
type fakeRunner struct {
	calls  []recordedCall
	output []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{dir: dir, name: name, args: args})
	return f.output, f.err
}

func testController(t *testing.T, runner CommandRunner, stopTimeout time.Duration) *composeController {
	t.Helper()
	logger, err := logging.NewLogger(logging.Config{Level: logging.LogLevelQuiet, Output: io.Discard})
	require.NoError(t, err)
	return &composeController{
		runner:      runner,
		logger:      logger,
		binary:      "docker",
		baseArgs:    []string{"compose"},
		stopTimeout: stopTimeout,
	}
}

func TestStopProjectInvokesComposeStop(t *testing.T) {
	runner := &fakeRunner{}
	controller := testController(t, runner, 30*time.Second)

	require.NoError(t, controller.StopProject(context.Background(), "/srv/projects/webapp"))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "/srv/projects/webapp", runner.calls[0].dir)
	assert.Equal(t, "docker", runner.calls[0].name)
	assert.Equal(t, []string{"compose", "stop", "--timeout", "30"}, runner.calls[0].args)
}

func TestStopProjectOmitsTimeoutWhenUnset(t *testing.T) {
	runner := &fakeRunner{}
	controller := testController(t, runner, 0)

	require.NoError(t, controller.StopProject(context.Background(), "/srv/projects/webapp"))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"compose", "stop"}, runner.calls[0].args)
}

func TestStartProjectInvokesComposeUpDetached(t *testing.T) {
	runner := &fakeRunner{}
	controller := testController(t, runner, 30*time.Second)

	require.NoError(t, controller.StartProject(context.Background(), "/srv/projects/webapp"))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"compose", "up", "-d"}, runner.calls[0].args)
}

func TestStopProjectFailureIsClassified(t *testing.T) {
	runner := &fakeRunner{output: []byte("no such service"), err: errors.New("exit status 1")}
	controller := testController(t, runner, 0)

	err := controller.StopProject(context.Background(), "/srv/projects/webapp")
	require.Error(t, err)

	assert.Equal(t, apperrors.ErrorTypeComposeStop, apperrors.GetErrorType(err))
	assert.Contains(t, err.Error(), "no such service")
	assert.False(t, apperrors.IsFatalError(err))
}

func TestStartProjectFailureIsClassified(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	controller := testController(t, runner, 0)

	err := controller.StartProject(context.Background(), "/srv/projects/webapp")
	require.Error(t, err)

	assert.Equal(t, apperrors.ErrorTypeComposeStart, apperrors.GetErrorType(err))
}

func TestProjectName(t *testing.T) {
	tests := []struct {
		folder string
		want   string
	}{
		{"webapp", "webapp"},
		{"WebApp", "webapp"},
		{"my_stack-2", "my_stack-2"},
		{"My Project!", "myproject"},
		{"caché", "cach"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ProjectName(tt.folder))
	}
}

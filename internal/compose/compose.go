package compose

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	apperrors "compose-backup/internal/errors"
	"compose-backup/internal/logging"
)

// ProjectController stops and starts all containers of one compose project,
// scoped to the project's folder.
type ProjectController interface {
	StopProject(ctx context.Context, folderPath string) error
	StartProject(ctx context.Context, folderPath string) error
}

// CommandRunner executes one external command in a working directory.
// It exists so tests can substitute the docker binary.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// execRunner implements CommandRunner over os/exec
type execRunner struct{}

// NewExecRunner creates the process-based command runner
func NewExecRunner() CommandRunner {
	return &execRunner{}
}

func (r *execRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s %v: %w", name, args, err)
	}
	return output, nil
}

// composeController implements ProjectController by shelling out to the
// compose CLI. The v2 plugin form (docker compose) is preferred; the
// standalone docker-compose binary is the fallback.
type composeController struct {
	runner      CommandRunner
	logger      *logging.Logger
	binary      string
	baseArgs    []string
	stopTimeout time.Duration
}

// NewController creates a compose project controller
func NewController(runner CommandRunner, logger *logging.Logger, stopTimeout time.Duration) ProjectController {
	if runner == nil {
		runner = NewExecRunner()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	binary, baseArgs := resolveComposeCommand()

	return &composeController{
		runner:      runner,
		logger:      logger,
		binary:      binary,
		baseArgs:    baseArgs,
		stopTimeout: stopTimeout,
	}
}

// resolveComposeCommand picks the compose invocation available on the host
func resolveComposeCommand() (string, []string) {
	if _, err := exec.LookPath("docker"); err == nil {
		return "docker", []string{"compose"}
	}
	return "docker-compose", nil
}

// StopProject brings down all containers defined by the folder's manifest
func (c *composeController) StopProject(ctx context.Context, folderPath string) error {
	start := time.Now()

	args := append(append([]string{}, c.baseArgs...), "stop")
	if c.stopTimeout > 0 {
		args = append(args, "--timeout", strconv.Itoa(int(c.stopTimeout.Seconds())))
	}

	output, err := c.runner.Run(ctx, folderPath, c.binary, args...)
	c.logger.LogComposeAction("stop", folderPath, time.Since(start), err)

	if err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeComposeStop,
			fmt.Sprintf("failed to stop project in %s: %s", folderPath, string(output)), err)
	}
	return nil
}

// StartProject brings the project's containers back up detached
func (c *composeController) StartProject(ctx context.Context, folderPath string) error {
	start := time.Now()

	args := append(append([]string{}, c.baseArgs...), "up", "-d")

	output, err := c.runner.Run(ctx, folderPath, c.binary, args...)
	c.logger.LogComposeAction("start", folderPath, time.Since(start), err)

	if err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeComposeStart,
			fmt.Sprintf("failed to start project in %s: %s", folderPath, string(output)), err)
	}
	return nil
}

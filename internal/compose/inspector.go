package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// composeProjectLabel is set by compose on every container it manages
const composeProjectLabel = "com.docker.compose.project"

// ProjectInspector reports how many containers of a compose project are
// still running. It is advisory only: the backup step uses it to log
// whether a stop actually quiesced the project, never to change outcomes.
type ProjectInspector interface {
	RunningContainers(ctx context.Context, projectName string) (int, error)
	Close() error
}

// dockerInspector implements ProjectInspector over the Docker API
type dockerInspector struct {
	cli *client.Client
}

// NewDockerInspector creates an inspector from the ambient Docker
// environment (DOCKER_HOST and friends).
func NewDockerInspector() (ProjectInspector, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("error initializing Docker client: %w", err)
	}
	return &dockerInspector{cli: cli}, nil
}

// RunningContainers counts running containers labelled with the project name
func (d *dockerInspector) RunningContainers(ctx context.Context, projectName string) (int, error) {
	listFilters := filters.NewArgs(
		filters.Arg("label", composeProjectLabel+"="+ProjectName(projectName)),
		filters.Arg("status", "running"),
	)

	containers, err := d.cli.ContainerList(ctx, container.ListOptions{Filters: listFilters})
	if err != nil {
		return 0, fmt.Errorf("failed to list containers for project %s: %w", projectName, err)
	}
	return len(containers), nil
}

// Close releases the underlying API client
func (d *dockerInspector) Close() error {
	return d.cli.Close()
}

// ProjectName normalizes a folder name the way compose derives its default
// project name: lowercased, with characters outside [a-z0-9_-] dropped.
func ProjectName(folderName string) string {
	lower := strings.ToLower(folderName)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

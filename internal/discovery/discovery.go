package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"compose-backup/internal/config"
	apperrors "compose-backup/internal/errors"
	"compose-backup/internal/logging"
)

// manifestNames are the compose manifest file names that mark a folder as a
// compose project. First match wins; both being present is not an error.
var manifestNames = []string{"docker-compose.yml", "docker-compose.yaml"}

// ProjectEntry describes one immediate subdirectory of the source path.
// Entries are created fresh each run and never persisted.
type ProjectEntry struct {
	Name               string
	Path               string
	HasComposeManifest bool
	ManifestPath       string
	Services           []string
}

// Scanner produces the ordered, filtered folder list for one backup pass
type Scanner interface {
	Scan(sourcePath string, excludes config.ExcludeSet) ([]ProjectEntry, error)
}

// scanner implements the Scanner interface
type scanner struct {
	logger *logging.Logger
}

// NewScanner creates a new project scanner
func NewScanner(logger *logging.Logger) Scanner {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &scanner{logger: logger}
}

// Scan lists the immediate children of sourcePath, drops non-directories
// and excluded names, classifies each remaining folder by compose manifest
// presence, and returns the entries sorted by name. The scan is read-only.
func (s *scanner) Scan(sourcePath string, excludes config.ExcludeSet) ([]ProjectEntry, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, apperrors.NewFatalError(apperrors.ErrorTypeSourceNotFound,
			fmt.Sprintf("source path %s does not exist", sourcePath), err)
	}
	if !info.IsDir() {
		return nil, apperrors.NewFatalError(apperrors.ErrorTypeSourceNotFound,
			fmt.Sprintf("source path %s is not a directory", sourcePath), nil)
	}

	children, err := os.ReadDir(sourcePath)
	if err != nil {
		return nil, apperrors.NewFatalError(apperrors.ErrorTypeSourceNotFound,
			fmt.Sprintf("failed to list source path %s", sourcePath), err)
	}

	entries := make([]ProjectEntry, 0, len(children))
	for _, child := range children {
		if !child.IsDir() {
			continue
		}
		if excludes.Contains(child.Name()) {
			s.logger.Debugf("Skipping excluded folder: %s", child.Name())
			continue
		}

		entry := ProjectEntry{
			Name: child.Name(),
			Path: filepath.Join(sourcePath, child.Name()),
		}

		for _, manifest := range manifestNames {
			candidate := filepath.Join(entry.Path, manifest)
			if stat, err := os.Stat(candidate); err == nil && stat.Mode().IsRegular() {
				entry.HasComposeManifest = true
				entry.ManifestPath = candidate
				break
			}
		}

		if entry.HasComposeManifest {
			entry.Services = readServiceNames(entry.ManifestPath)
		}

		entries = append(entries, entry)
	}

	// Directory listing order is platform-dependent; sort by name so two
	// runs over an unchanged tree process folders identically.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	s.logger.Debugf("Discovered %d folders under %s", len(entries), sourcePath)
	return entries, nil
}

// composeManifest is the minimal slice of a compose file needed here
type composeManifest struct {
	Services map[string]yaml.Node `yaml:"services"`
}

// readServiceNames parses the manifest for its service names, sorted.
// This is best-effort metadata for logs and the run summary; a manifest
// that fails to parse still classifies the folder as a compose project.
func readServiceNames(manifestPath string) []string {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil
	}

	var manifest composeManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil
	}

	names := make([]string, 0, len(manifest.Services))
	for name := range manifest.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

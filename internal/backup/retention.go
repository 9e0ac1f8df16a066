package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	apperrors "compose-backup/internal/errors"
	"compose-backup/internal/logging"
)

// datedDirPattern matches the date-stamped directories this tool creates.
// Anything else living in the destination is left alone.
var datedDirPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// RotationResult describes one retention pass over the destination
type RotationResult struct {
	Kept    []string
	Removed []string
	Errors  []error
	DryRun  bool
}

// Rotator prunes old dated backup directories down to the retention count
type Rotator interface {
	Rotate(destPath string, retentionCount int, dryRun bool) *RotationResult
}

// rotator implements the Rotator interface
type rotator struct {
	logger *logging.Logger
}

// NewRotator creates a retention rotator
func NewRotator(logger *logging.Logger) Rotator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &rotator{logger: logger}
}

// Rotate keeps the retentionCount newest dated directories under destPath
// and removes the rest. A retentionCount of zero or less means unlimited
// retention and the pass is a no-op. Deletion failures are collected per
// directory; one stuck directory never blocks the removal of the others.
func (r *rotator) Rotate(destPath string, retentionCount int, dryRun bool) *RotationResult {
	result := &RotationResult{DryRun: dryRun}

	if retentionCount <= 0 {
		r.logger.Debug("Retention is unlimited, skipping rotation")
		return result
	}

	dated, err := r.listDatedDirs(destPath)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	// The fixed-width date stamp sorts chronologically, newest first
	sort.Sort(sort.Reverse(sort.StringSlice(dated)))

	if len(dated) <= retentionCount {
		result.Kept = dated
		r.logger.LogRetentionSweep(destPath, len(result.Kept), 0, 0)
		return result
	}

	result.Kept = dated[:retentionCount]
	for _, name := range dated[retentionCount:] {
		path := filepath.Join(destPath, name)
		if dryRun {
			result.Removed = append(result.Removed, name)
			r.logger.Infof("Would remove %s", path)
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors,
				apperrors.NewAppError(apperrors.ErrorTypeRetentionDelete,
					fmt.Sprintf("failed to remove old backup directory %s", path), err))
			continue
		}
		result.Removed = append(result.Removed, name)
	}

	r.logger.LogRetentionSweep(destPath, len(result.Kept), len(result.Removed), len(result.Errors))
	return result
}

// listDatedDirs returns the names of date-stamped subdirectories of destPath
func (r *rotator) listDatedDirs(destPath string) ([]string, error) {
	children, err := os.ReadDir(destPath)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeRetentionDelete,
			fmt.Sprintf("failed to list destination path %s", destPath), err)
	}

	var dated []string
	for _, child := range children {
		if child.IsDir() && datedDirPattern.MatchString(child.Name()) {
			dated = append(dated, child.Name())
		}
	}
	return dated, nil
}

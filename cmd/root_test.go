package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compose-backup/internal/config"
)

func TestValidateFlagsMutuallyExclusive(t *testing.T) {
	verbose, quiet = true, true
	defer func() { verbose, quiet = false, false }()

	err := validateFlags(rootCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidateFlagsRejectsExplicitZeroRetention(t *testing.T) {
	require.NoError(t, rootCmd.Flags().Set("retention", "0"))

	err := validateFlags(rootCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--retention")

	require.NoError(t, rootCmd.Flags().Set("retention", "4"))
	assert.NoError(t, validateFlags(rootCmd))
}

func TestApplyFlagOverrides(t *testing.T) {
	require.NoError(t, rootCmd.Flags().Set("retention", "7"))
	require.NoError(t, rootCmd.Flags().Set("exclude", "tmp,cache"))
	require.NoError(t, rootCmd.Flags().Set("stop-timeout", "90s"))
	sourcePath = "/srv/override"
	compression = config.CompressionZstd
	logFile = "/var/log/compose-backup.log"
	defer func() { sourcePath, compression, logFile = "", "", "" }()

	cfg := &config.Config{
		SourcePath:     "/srv/original",
		DestPath:       "/mnt/backups",
		RetentionCount: 3,
		Compression:    config.CompressionGzip,
		StopTimeout:    time.Minute,
	}
	applyFlagOverrides(rootCmd, cfg)

	assert.Equal(t, "/srv/override", cfg.SourcePath)
	assert.Equal(t, "/mnt/backups", cfg.DestPath, "unset flags leave the saved value alone")
	assert.Equal(t, 7, cfg.RetentionCount)
	assert.Equal(t, []string{"tmp", "cache"}, cfg.ExcludedNames)
	assert.Equal(t, config.CompressionZstd, cfg.Compression)
	assert.Equal(t, 90*time.Second, cfg.StopTimeout)
	assert.True(t, cfg.LoggingEnabled)
	assert.Equal(t, "/var/log/compose-backup.log", cfg.LogFile)
}

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

// Wizard collects the initial configuration interactively and persists it.
// It is the only component that writes configuration; the backup engine
// receives the resulting record read-only.
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading from in and writing prompts to out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// NewInteractiveWizard creates a wizard bound to the terminal. Fails when
// stdin is not a terminal, since the prompts cannot be answered.
func NewInteractiveWizard() (*Wizard, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("setup requires an interactive terminal")
	}
	return NewWizard(os.Stdin, os.Stdout), nil
}

// Run walks through every configuration value, validates the answers and
// returns the completed record. Nothing is persisted here; the caller
// decides where to Save.
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "compose-backup first-run setup")
	fmt.Fprintln(w.out, strings.Repeat("-", 40))

	cfg := &Config{}

	sourcePath, err := w.promptPath("Source path (directory containing the project folders)", true)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = sourcePath

	destPath, err := w.promptPath("Destination path (where dated backup directories go)", false)
	if err != nil {
		return nil, err
	}
	cfg.DestPath = destPath

	loggingEnabled, err := w.promptYesNo("Enable logging to a file?", false)
	if err != nil {
		return nil, err
	}
	cfg.LoggingEnabled = loggingEnabled

	if loggingEnabled {
		logFile, err := w.promptString("Log file path", filepath.Join(destPath, "compose-backup.log"))
		if err != nil {
			return nil, err
		}
		cfg.LogFile = logFile
	}

	excluded, err := w.promptString("Excluded folder names (comma separated, empty for none)", "")
	if err != nil {
		return nil, err
	}
	cfg.ExcludedNames = splitNames(excluded)

	retention, err := w.promptRetention()
	if err != nil {
		return nil, err
	}
	cfg.RetentionCount = retention

	compression, err := w.promptChoice("Archive compression", []string{CompressionGzip, CompressionZstd, CompressionLZ4}, CompressionGzip)
	if err != nil {
		return nil, err
	}
	cfg.Compression = compression
	cfg.StopTimeout = 60 * time.Second

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("collected configuration is invalid: %w", err)
	}

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (w *Wizard) promptString(label, defaultValue string) (string, error) {
	for {
		if defaultValue != "" {
			fmt.Fprintf(w.out, "%s [%s]: ", label, defaultValue)
		} else {
			fmt.Fprintf(w.out, "%s: ", label)
		}

		answer, err := w.readLine()
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		if answer == "" {
			return defaultValue, nil
		}
		return answer, nil
	}
}

func (w *Wizard) promptPath(label string, mustExist bool) (string, error) {
	for {
		answer, err := w.promptString(label, "")
		if err != nil {
			return "", err
		}
		if answer == "" {
			fmt.Fprintln(w.out, "A path is required.")
			continue
		}

		abs, err := filepath.Abs(answer)
		if err != nil {
			fmt.Fprintf(w.out, "Invalid path: %v\n", err)
			continue
		}

		if mustExist {
			info, err := os.Stat(abs)
			if err != nil || !info.IsDir() {
				fmt.Fprintf(w.out, "Directory %s does not exist.\n", abs)
				continue
			}
		}

		return abs, nil
	}
}

func (w *Wizard) promptYesNo(label string, defaultValue bool) (bool, error) {
	hint := "y/N"
	if defaultValue {
		hint = "Y/n"
	}

	for {
		fmt.Fprintf(w.out, "%s [%s]: ", label, hint)
		answer, err := w.readLine()
		if err != nil {
			return false, fmt.Errorf("failed to read input: %w", err)
		}

		switch strings.ToLower(answer) {
		case "":
			return defaultValue, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(w.out, "Please answer y or n.")
		}
	}
}

// promptRetention enforces a positive count; zero is rejected here so the
// rotation pass never sees it. Empty input means unlimited retention.
func (w *Wizard) promptRetention() (int, error) {
	for {
		fmt.Fprint(w.out, "Number of dated backups to keep (empty for unlimited): ")
		answer, err := w.readLine()
		if err != nil {
			return 0, fmt.Errorf("failed to read input: %w", err)
		}

		if answer == "" {
			return 0, nil
		}

		count, err := strconv.Atoi(answer)
		if err != nil || count <= 0 {
			fmt.Fprintln(w.out, "Retention count must be a positive number.")
			continue
		}
		return count, nil
	}
}

func (w *Wizard) promptChoice(label string, options []string, defaultValue string) (string, error) {
	for {
		fmt.Fprintf(w.out, "%s (%s) [%s]: ", label, strings.Join(options, ", "), defaultValue)
		answer, err := w.readLine()
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		if answer == "" {
			return defaultValue, nil
		}

		answer = strings.ToLower(answer)
		for _, option := range options {
			if answer == option {
				return answer, nil
			}
		}
		fmt.Fprintf(w.out, "Please choose one of: %s\n", strings.Join(options, ", "))
	}
}

func splitNames(input string) []string {
	if input == "" {
		return nil
	}

	parts := strings.Split(input, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

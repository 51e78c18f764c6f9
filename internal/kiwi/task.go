package kiwi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/elektrobit/berrymill/internal/models"
	"github.com/elektrobit/berrymill/internal/utils"
	"github.com/sirupsen/logrus"
)

// DefaultBinary is the kiwi-ng executable looked up in PATH
const DefaultBinary = "kiwi-ng"

// Runner executes name with args
type Runner func(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error

// Engine creates kiwi-ng tasks
type Engine struct {
	Binary  string
	Geteuid func() int
	Runner  Runner
}

// NewEngine creates an engine running the kiwi-ng binary from PATH
func NewEngine() *Engine {
	return &Engine{
		Binary:  DefaultBinary,
		Geteuid: os.Geteuid,
		Runner:  execRunner,
	}
}

func execRunner(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Task is one kiwi-ng invocation
type Task struct {
	engine  *Engine
	command *Command
	state   *XMLState

	// description file inside command.Description, empty to look it up
	file string

	stageDir string
}

// NewTask creates a task for the kiwi-ng command line args. file selects
// the description file in the description directory; when empty the file
// is looked up with FindDescription.
func (e *Engine) NewTask(args []string, file string) (*Task, error) {
	command, err := ParseCommand(args)
	if err != nil {
		return nil, &models.MillError{Type: models.ErrEngine, Subject: strings.Join(args, " "), Err: err}
	}
	return &Task{engine: e, command: command, file: file}, nil
}

// Load runs the checks kiwi-ng does before touching anything and loads the
// image description.
func (t *Task) Load() (*XMLState, error) {
	if t.command.RequiresRoot() && t.engine.Geteuid() != 0 {
		return nil, ErrPrivileges
	}

	if t.command.Action == ActionPrepare && !t.command.AllowExistingRoot && t.command.Root != "" {
		if _, err := os.Stat(t.command.Root); err == nil {
			return nil, &RootDirExistsError{Path: t.command.Root}
		}
	}

	path := t.file
	if path == "" {
		var err error
		if path, err = FindDescription(t.command.Description); err != nil {
			return nil, &models.MillError{Type: models.ErrDescription, Subject: t.command.Description, Err: err}
		}
	}
	state, err := LoadDescription(path)
	if err != nil {
		return nil, &models.MillError{Type: models.ErrDescription, Subject: path, Err: err}
	}

	logrus.Debugf("Loaded image description %s (image %q)", path, state.Name())
	t.state = state
	return state, nil
}

// Run stages the rewritten description and executes kiwi-ng on it
func (t *Task) Run(ctx context.Context) error {
	if t.state == nil {
		return fmt.Errorf("description not loaded")
	}

	staged, err := t.stage()
	if err != nil {
		return &models.MillError{Type: models.ErrEngine, Subject: t.command.Description, Err: err}
	}

	args := t.command.WithDescription(staged)[1:]
	logrus.Infof("Running %s %s", t.engine.Binary, strings.Join(args, " "))

	logWriter := logrus.StandardLogger().WriterLevel(logrus.InfoLevel)
	defer logWriter.Close()

	var captured bytes.Buffer
	out := io.MultiWriter(logWriter, &captured)

	if err := t.engine.Runner(ctx, t.engine.Binary, args, out, out); err != nil {
		return t.classify(err, captured.String())
	}
	return nil
}

func (t *Task) classify(err error, output string) error {
	switch {
	case strings.Contains(output, privilegesMarker):
		return ErrPrivileges
	case strings.Contains(output, rootExistsMarker):
		return &RootDirExistsError{Path: t.command.Root}
	case errors.Is(err, context.Canceled):
		return err
	}
	return &models.MillError{Type: models.ErrEngine, Subject: t.engine.Binary, Err: err}
}

// stage copies the description directory and writes the loaded state as
// StagedDescription, removing the other files kiwi-ng could pick instead.
// It returns the staged directory.
func (t *Task) stage() (string, error) {
	if t.stageDir == "" {
		dir, err := os.MkdirTemp("", "berrymill-")
		if err != nil {
			return "", err
		}
		t.stageDir = dir
	}

	staged := filepath.Join(t.stageDir, "description")
	if err := os.RemoveAll(staged); err != nil {
		return "", err
	}
	if err := utils.CopyTree(t.command.Description, staged); err != nil {
		return "", fmt.Errorf("failed to stage description: %w", err)
	}

	candidates, err := descriptionCandidates(staged)
	if err != nil {
		return "", err
	}
	for _, path := range candidates {
		if err := os.Remove(path); err != nil {
			return "", err
		}
	}

	file := filepath.Join(staged, StagedDescription)
	if err := t.state.Save(file); err != nil {
		return "", err
	}
	for _, rec := range t.state.Repositories() {
		logrus.Debugf("Staged repository %s: %s", rec.Alias, rec.SourceURL)
	}

	if sum, err := utils.CalculateChecksums(file); err == nil {
		logrus.Debugf("Staged description %s (sha256 %s, %d bytes)", file, sum.SHA256, sum.Size)
	}
	return staged, nil
}

// Cleanup removes the staged description. It may be called more than once.
func (t *Task) Cleanup() error {
	if t.stageDir == "" {
		return nil
	}
	err := os.RemoveAll(t.stageDir)
	t.stageDir = ""
	return err
}

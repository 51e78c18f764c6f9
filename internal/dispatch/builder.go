package dispatch

import (
	"context"
	"fmt"

	"github.com/elektrobit/berrymill/internal/kiwi"
	"github.com/elektrobit/berrymill/internal/models"
	"github.com/elektrobit/berrymill/internal/utils"
	"github.com/sirupsen/logrus"
)

// Box settings of boxed builds
const (
	DefaultBox       = "ubuntu"
	DefaultBoxMemory = "8G"
)

// Builder runs "kiwi-ng system build" or "kiwi-ng system boxbuild"
type Builder struct {
	parent
	params models.BuildParams
}

// NewBuilder creates a builder for params injecting repos
func NewBuilder(engine Engine, params models.BuildParams, repos *models.RepoSet) *Builder {
	return &Builder{
		parent: newParent(engine, params.CommonParams, repos),
		params: params,
	}
}

// Command returns the kiwi-ng command line
func (b *Builder) Command() ([]string, error) {
	if b.params.TargetDir == "" {
		return nil, &models.MillError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("target directory mandatory"),
		}
	}
	if b.params.Cross && b.params.CPU != "" {
		return nil, &models.MillError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("--cross sets the cpu, --cpu cannot be used with it"),
		}
	}

	buildArgs := []string{"--description", b.common.Description, "--target-dir", b.params.TargetDir}
	if b.params.Local {
		return b.command(kiwi.ActionBuild, buildArgs...), nil
	}

	memory := b.params.BoxMemory
	if memory == "" {
		memory = DefaultBoxMemory
	}
	args := []string{"--box", DefaultBox, "--box-memory", memory, "--no-update-check"}
	if b.params.NoAccel {
		args = append(args, "--no-accel")
	}
	switch {
	case b.params.Cross:
		args = append(args, "--aarch64", "--machine", "virt", "--cpu", "cortex-a57")
	case b.params.CPU != "":
		args = append(args, "--cpu", b.params.CPU)
	}
	args = append(args, "--")
	args = append(args, buildArgs...)
	return b.command(kiwi.ActionBoxBuild, args...), nil
}

// Process builds the image. Missing privileges are logged and end the run
// without an error.
func (b *Builder) Process(ctx context.Context) error {
	command, err := b.Command()
	if err != nil {
		return err
	}

	var clean func() error
	if b.params.Clean {
		clean = b.clean
	}

	err = b.run(ctx, command, clean)
	if isPrivilegesError(err) {
		return nil
	}
	return err
}

// clean empties the target directory
func (b *Builder) clean() error {
	logrus.Infof("Removing previous build results from %s", b.params.TargetDir)
	if err := utils.RemoveContents(b.params.TargetDir); err != nil {
		return &models.MillError{Type: models.ErrEngine, Subject: b.params.TargetDir, Err: err}
	}
	return nil
}

package dispatch

import (
	"context"
	"errors"

	"github.com/elektrobit/berrymill/internal/kiwi"
	"github.com/elektrobit/berrymill/internal/models"
	"github.com/elektrobit/berrymill/internal/repository"
	"github.com/sirupsen/logrus"
)

// parent holds what the preparer and the builder share
type parent struct {
	engine Engine
	common models.CommonParams
	repos  *models.RepoSet

	task Task
}

func newParent(engine Engine, common models.CommonParams, repos *models.RepoSet) parent {
	if repos == nil {
		repos = models.NewRepoSet()
	}
	return parent{engine: engine, common: common, repos: repos}
}

// kiwiOptions returns the global kiwi-ng options
func (p *parent) kiwiOptions() []string {
	var opts []string
	if p.common.Profile != "" {
		opts = append(opts, "--profile", p.common.Profile)
	}
	if p.common.Debug {
		opts = append(opts, "--debug")
	}
	return opts
}

// command returns the kiwi-ng command line for the "system" action
func (p *parent) command(action string, args ...string) []string {
	command := append([]string{kiwi.DefaultBinary}, p.kiwiOptions()...)
	command = append(command, "system", action)
	return append(command, args...)
}

// run creates the task, rewrites the repositories of the loaded
// description and runs the engine. beforeRun, if set, is called once the
// description loaded.
func (p *parent) run(ctx context.Context, command []string, beforeRun func() error) error {
	logrus.Debugf("Engine command: %v", command)

	task, err := p.engine.NewTask(command, p.common.DescriptionFile)
	if err != nil {
		return err
	}
	p.task = task

	desc, err := task.Load()
	if err != nil {
		return err
	}
	if beforeRun != nil {
		if err := beforeRun(); err != nil {
			return err
		}
	}
	if err := repository.Rewrite(desc, p.repos); err != nil {
		return err
	}
	return task.Run(ctx)
}

// Cleanup releases the task. It is safe to call more than once.
func (p *parent) Cleanup() {
	if p.task == nil {
		return
	}
	if err := p.task.Cleanup(); err != nil {
		logrus.Warnf("Cleanup failed: %v", err)
	}
	p.task = nil
	logrus.Info("Cleanup finished")
}

func isPrivilegesError(err error) bool {
	if errors.Is(err, kiwi.ErrPrivileges) {
		logrus.Error("Operation requires root privileges")
		return true
	}
	return false
}

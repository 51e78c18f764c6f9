package dispatch

import (
	"context"

	"github.com/elektrobit/berrymill/internal/kiwi"
	"github.com/elektrobit/berrymill/internal/repository"
)

// Engine creates tasks from a kiwi-ng command line. descriptionFile picks
// the file in the description directory, empty lets the engine choose.
type Engine interface {
	NewTask(args []string, descriptionFile string) (Task, error)
}

// Task is one run of the external engine
type Task interface {
	// Load checks the preconditions and loads the image description
	Load() (repository.Description, error)
	// Run executes the engine on the loaded description
	Run(ctx context.Context) error
	// Cleanup releases what the task holds
	Cleanup() error
}

type kiwiEngine struct {
	engine *kiwi.Engine
}

// NewKiwiEngine returns an Engine running kiwi-ng through e
func NewKiwiEngine(e *kiwi.Engine) Engine {
	return &kiwiEngine{engine: e}
}

func (k *kiwiEngine) NewTask(args []string, descriptionFile string) (Task, error) {
	task, err := k.engine.NewTask(args, descriptionFile)
	if err != nil {
		return nil, err
	}
	return &kiwiTask{task: task}, nil
}

type kiwiTask struct {
	task *kiwi.Task
}

func (k *kiwiTask) Load() (repository.Description, error) {
	state, err := k.task.Load()
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (k *kiwiTask) Run(ctx context.Context) error {
	return k.task.Run(ctx)
}

func (k *kiwiTask) Cleanup() error {
	return k.task.Cleanup()
}

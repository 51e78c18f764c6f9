package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/elektrobit/berrymill/internal/kiwi"
	"github.com/elektrobit/berrymill/internal/models"
	"github.com/sirupsen/logrus"
)

// Preparer runs "kiwi-ng system prepare"
type Preparer struct {
	parent
	params models.PrepareParams
}

// NewPreparer creates a preparer for params injecting repos
func NewPreparer(engine Engine, params models.PrepareParams, repos *models.RepoSet) *Preparer {
	return &Preparer{
		parent: newParent(engine, params.CommonParams, repos),
		params: params,
	}
}

// Command returns the kiwi-ng command line
func (p *Preparer) Command() ([]string, error) {
	if p.params.Root == "" {
		return nil, &models.MillError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("output directory for root folder mandatory"),
		}
	}

	args := []string{"--description", p.common.Description, "--root", p.params.Root}
	if p.params.AllowExistingRoot {
		args = append(args, "--allow-existing-root")
	}
	return p.command(kiwi.ActionPrepare, args...), nil
}

// Process prepares the sysroot. Missing privileges and an existing root
// are logged and end the run without an error.
func (p *Preparer) Process(ctx context.Context) error {
	command, err := p.Command()
	if err != nil {
		return err
	}

	err = p.run(ctx, command, nil)
	if isPrivilegesError(err) {
		return nil
	}
	var exists *kiwi.RootDirExistsError
	if errors.As(err, &exists) {
		logrus.Error(exists.Error())
		return nil
	}
	return err
}

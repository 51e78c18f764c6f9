package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/elektrobit/berrymill/internal/config"
	"github.com/elektrobit/berrymill/internal/discovery"
	"github.com/elektrobit/berrymill/internal/dispatch"
	"github.com/elektrobit/berrymill/internal/kiwi"
	"github.com/elektrobit/berrymill/internal/models"
	"github.com/elektrobit/berrymill/internal/sysinfo"
	"github.com/sirupsen/logrus"
)

// BoxedPluginEnv names the boxed plugin configuration for kiwi-ng
const BoxedPluginEnv = "KIWI_BOXED_PLUGIN_CFG"

const noNestedWarning = `
Nested virtualization is NOT enabled. This can cause the build to fail
as a virtual enviroment using qemu is utilized to build the image.

You can either:

Enable nested virtualization, build locally, or, use --ignore-nested when you are
sure that you are not running berrymill inside a virtual machine
`

// environment holds what a run needs from the host
type environment struct {
	systemConfig      string
	discoverer        config.Discoverer
	engine            dispatch.Engine
	localArch         func() string
	hasVirtualization func() bool
	setenv            func(key, value string) error
}

func defaultEnvironment() *environment {
	return &environment{
		systemConfig:      config.DefaultSystemConfig,
		discoverer:        discovery.NewDebian("/"),
		engine:            dispatch.NewKiwiEngine(kiwi.NewEngine()),
		localArch:         sysinfo.LocalArch,
		hasVirtualization: func() bool { return sysinfo.HasVirtualization("/") },
		setenv:            os.Setenv,
	}
}

// options are the flags shared by every command
type options struct {
	showConfig bool
	debug      bool
	arch       string
	configs    []string
	image      string
	profile    string
	clean      bool
}

// mill runs one berrymill invocation
type mill struct {
	env   *environment
	opts  options
	store *config.Store
}

// appliance is a resolved appliance description
type appliance struct {
	dir  string
	file string
}

// setup loads the configuration and resolves the appliance description.
// done is set when nothing else must happen.
func (m *mill) setup(ctx context.Context, out io.Writer) (appliance, bool, error) {
	m.store = config.NewStore()
	m.store.SetSystemConfig(m.env.systemConfig)
	for _, path := range m.opts.configs {
		m.store.AddConfig(path)
	}
	if err := m.store.Load(); err != nil {
		return appliance{}, false, err
	}

	m.store.MaybePopulateLocalRepos(ctx, m.env.discoverer)

	if m.opts.showConfig {
		return appliance{}, true, m.store.Dump(out)
	}

	app, err := resolveAppliance(m.opts.image)
	if err != nil {
		return appliance{}, false, err
	}
	logrus.Debugf("Using appliance description %s", app.file)
	return app, false, nil
}

// repos returns the merged repositories for the target architecture
func (m *mill) repos() (*models.RepoSet, error) {
	arch := m.opts.arch
	if arch == "" {
		arch = m.env.localArch()
	}
	repos, err := m.store.Repos(arch)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Using %d repositories for %s from %v", repos.Len(), arch, m.store.Sources())
	return repos, nil
}

func (m *mill) common(app appliance) models.CommonParams {
	return models.CommonParams{
		Description:     app.dir,
		DescriptionFile: app.file,
		Profile:         m.opts.profile,
		Debug:           m.opts.debug,
	}
}

// resolveAppliance resolves image, either the description file or its
// directory. For a directory the file is looked up with kiwi.FindDescription.
func resolveAppliance(image string) (appliance, error) {
	notFound := &models.MillError{
		Type:    models.ErrDescription,
		Subject: image,
		Err:     fmt.Errorf("appliance description was not found"),
	}

	info, err := os.Stat(image)
	if err != nil {
		return appliance{}, notFound
	}

	if !info.IsDir() {
		return appliance{dir: filepath.Dir(image), file: image}, nil
	}

	file, err := kiwi.FindDescription(image)
	if err != nil {
		return appliance{}, notFound
	}
	return appliance{dir: image, file: file}, nil
}

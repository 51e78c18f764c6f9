package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/elektrobit/berrymill/internal/kiwi"
	"github.com/elektrobit/berrymill/internal/models"
	"github.com/elektrobit/berrymill/internal/repository"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDescription struct {
	deleted bool
	records []models.Record
}

func (d *fakeDescription) DeleteRepositorySections() {
	d.deleted = true
	d.records = nil
}

func (d *fakeDescription) AddRepository(rec models.Record) error {
	d.records = append(d.records, rec)
	return nil
}

type fakeTask struct {
	desc     *fakeDescription
	loadErr  error
	runErr   error
	ran      bool
	cleanups int
}

func (t *fakeTask) Load() (repository.Description, error) {
	if t.loadErr != nil {
		return nil, t.loadErr
	}
	return t.desc, nil
}

func (t *fakeTask) Run(ctx context.Context) error {
	t.ran = true
	return t.runErr
}

func (t *fakeTask) Cleanup() error {
	t.cleanups++
	return nil
}

type fakeEngine struct {
	task            *fakeTask
	command         []string
	descriptionFile string
}

func (e *fakeEngine) NewTask(args []string, descriptionFile string) (Task, error) {
	e.command = args
	e.descriptionFile = descriptionFile
	return e.task, nil
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{task: &fakeTask{desc: &fakeDescription{}}}
}

func testRepos() *models.RepoSet {
	repos := models.NewRepoSet()
	repos.Add("myrepo", models.RepoAttributes{
		"url":        "http://myrepo.example.com/debian",
		"type":       "apt-deb",
		"name":       "bookworm",
		"components": "main,contrib",
	})
	return repos
}

func TestPreparerCommand(t *testing.T) {
	p := NewPreparer(newFakeEngine(), models.PrepareParams{
		CommonParams:      models.CommonParams{Description: "/img", Profile: "rpi", Debug: true},
		Root:              "/tmp/root",
		AllowExistingRoot: true,
	}, nil)

	got, err := p.Command()
	require.NoError(t, err)
	want := []string{
		"kiwi-ng", "--profile", "rpi", "--debug", "system", "prepare",
		"--description", "/img", "--root", "/tmp/root", "--allow-existing-root",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Command() mismatch (-want +got):\n%s", diff)
	}
}

func TestPreparerRequiresRoot(t *testing.T) {
	engine := newFakeEngine()
	p := NewPreparer(engine, models.PrepareParams{CommonParams: models.CommonParams{Description: "/img"}}, nil)
	defer p.Cleanup()

	err := p.Process(context.Background())
	assert.True(t, models.IsErrorType(err, models.ErrInvalidConfig))
	assert.Nil(t, engine.command)
}

func TestBuilderCommand(t *testing.T) {
	tests := []struct {
		name   string
		params models.BuildParams
		want   []string
	}{
		{
			name:   "local",
			params: models.BuildParams{TargetDir: "/out", Local: true},
			want:   []string{"kiwi-ng", "system", "build", "--description", "/img", "--target-dir", "/out"},
		},
		{
			name:   "boxed",
			params: models.BuildParams{TargetDir: "/out", BoxMemory: "4G", NoAccel: true},
			want: []string{
				"kiwi-ng", "system", "boxbuild", "--box", "ubuntu", "--box-memory", "4G", "--no-update-check", "--no-accel",
				"--", "--description", "/img", "--target-dir", "/out",
			},
		},
		{
			name:   "boxed cpu",
			params: models.BuildParams{TargetDir: "/out", CPU: "host"},
			want: []string{
				"kiwi-ng", "system", "boxbuild", "--box", "ubuntu", "--box-memory", "8G", "--no-update-check", "--cpu", "host",
				"--", "--description", "/img", "--target-dir", "/out",
			},
		},
		{
			name:   "cross",
			params: models.BuildParams{TargetDir: "/out", Cross: true},
			want: []string{
				"kiwi-ng", "system", "boxbuild", "--box", "ubuntu", "--box-memory", "8G", "--no-update-check",
				"--aarch64", "--machine", "virt", "--cpu", "cortex-a57",
				"--", "--description", "/img", "--target-dir", "/out",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.Description = "/img"
			got, err := NewBuilder(newFakeEngine(), tt.params, nil).Command()
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Command() mismatch (-want +got):\n%s", diff)
			}

			// the engine adapter must read the command back
			parsed, err := kiwi.ParseCommand(got)
			require.NoError(t, err)
			assert.Equal(t, "/img", parsed.Description)
			assert.Equal(t, "/out", parsed.TargetDir)
		})
	}
}

func TestBuilderCommandErrors(t *testing.T) {
	_, err := NewBuilder(newFakeEngine(), models.BuildParams{}, nil).Command()
	assert.True(t, models.IsErrorType(err, models.ErrInvalidConfig))

	_, err = NewBuilder(newFakeEngine(), models.BuildParams{TargetDir: "/out", Cross: true, CPU: "host"}, nil).Command()
	assert.True(t, models.IsErrorType(err, models.ErrInvalidConfig))
}

func TestProcessRewritesBeforeRun(t *testing.T) {
	engine := newFakeEngine()
	b := NewBuilder(engine, models.BuildParams{
		CommonParams: models.CommonParams{Description: "/img"},
		TargetDir:    "/out",
		Local:        true,
	}, testRepos())
	defer b.Cleanup()

	require.NoError(t, b.Process(context.Background()))
	assert.True(t, engine.task.ran)
	assert.True(t, engine.task.desc.deleted)
	require.Len(t, engine.task.desc.records, 1)
	assert.Equal(t, models.Record{
		Alias:        "myrepo",
		SourceURL:    "http://myrepo.example.com/debian",
		Type:         "apt-deb",
		SigningKeys:  []string{""},
		Components:   "main contrib",
		Distribution: "bookworm",
	}, engine.task.desc.records[0])
}

func TestPrivilegesFailureIsInformational(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	engine := newFakeEngine()
	engine.task.runErr = kiwi.ErrPrivileges
	p := NewPreparer(engine, models.PrepareParams{
		CommonParams: models.CommonParams{Description: "/img"},
		Root:         "/tmp/root",
	}, testRepos())

	func() {
		defer p.Cleanup()
		assert.NoError(t, p.Process(context.Background()))
	}()

	assert.Equal(t, 1, engine.task.cleanups)
	var messages []string
	for _, entry := range hook.AllEntries() {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "Operation requires root privileges")
	assert.Contains(t, messages, "Cleanup finished")
}

func TestBuilderPrivilegesFailureOnLoad(t *testing.T) {
	engine := newFakeEngine()
	engine.task.loadErr = kiwi.ErrPrivileges
	b := NewBuilder(engine, models.BuildParams{TargetDir: "/out", Local: true}, nil)
	defer b.Cleanup()

	assert.NoError(t, b.Process(context.Background()))
	assert.False(t, engine.task.ran)
}

func TestRootDirExistsIsInformational(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	engine := newFakeEngine()
	engine.task.loadErr = &kiwi.RootDirExistsError{Path: "/tmp/root"}
	p := NewPreparer(engine, models.PrepareParams{Root: "/tmp/root"}, nil)
	defer p.Cleanup()

	assert.NoError(t, p.Process(context.Background()))
	assert.False(t, engine.task.ran)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Root directory /tmp/root already exists", entry.Message)
}

func TestRootDirExistsPropagatesFromBuilder(t *testing.T) {
	engine := newFakeEngine()
	engine.task.runErr = &kiwi.RootDirExistsError{Path: "/tmp/root"}
	b := NewBuilder(engine, models.BuildParams{TargetDir: "/out", Local: true}, nil)
	defer b.Cleanup()

	var exists *kiwi.RootDirExistsError
	assert.ErrorAs(t, b.Process(context.Background()), &exists)
}

func TestOtherErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	engine := newFakeEngine()
	engine.task.runErr = boom
	p := NewPreparer(engine, models.PrepareParams{Root: "/tmp/root"}, nil)

	err := p.Process(context.Background())
	assert.ErrorIs(t, err, boom)

	p.Cleanup()
	p.Cleanup()
	assert.Equal(t, 1, engine.task.cleanups)
}

func TestCleanupWithoutTask(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	p := NewPreparer(newFakeEngine(), models.PrepareParams{}, nil)
	p.Cleanup()
	assert.Empty(t, hook.AllEntries())
}

func TestBuilderClean(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "old.raw"), []byte("x"), 0644))

	engine := newFakeEngine()
	b := NewBuilder(engine, models.BuildParams{TargetDir: target, Local: true, Clean: true}, nil)
	defer b.Cleanup()

	require.NoError(t, b.Process(context.Background()))
	assert.NoFileExists(t, filepath.Join(target, "old.raw"))
	assert.DirExists(t, target)
}

func TestBuilderCleanWaitsForPrivileges(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "old.raw"), []byte("x"), 0644))

	engine := newFakeEngine()
	engine.task.loadErr = kiwi.ErrPrivileges
	b := NewBuilder(engine, models.BuildParams{TargetDir: target, Local: true, Clean: true}, nil)
	defer b.Cleanup()

	assert.NoError(t, b.Process(context.Background()))
	assert.FileExists(t, filepath.Join(target, "old.raw"))
	assert.False(t, engine.task.ran)
}

func TestDescriptionFilePassedToEngine(t *testing.T) {
	engine := newFakeEngine()
	common := models.CommonParams{Description: "/img", DescriptionFile: "/img/appliance.xml"}
	b := NewBuilder(engine, models.BuildParams{CommonParams: common, TargetDir: "/out", Local: true}, nil)
	defer b.Cleanup()

	require.NoError(t, b.Process(context.Background()))
	assert.Equal(t, "/img/appliance.xml", engine.descriptionFile)
}

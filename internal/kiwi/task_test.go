package kiwi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elektrobit/berrymill/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	name   string
	args   []string
	staged string
}

func testEngine(euid int, output string, runErr error, runs *[]recordedRun) *Engine {
	return &Engine{
		Binary:  "kiwi-ng",
		Geteuid: func() int { return euid },
		Runner: func(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
			run := recordedRun{name: name, args: args}
			for i, arg := range args {
				if arg == "--description" && i+1 < len(args) {
					data, err := os.ReadFile(filepath.Join(args[i+1], "config.kiwi"))
					if err != nil {
						return err
					}
					run.staged = string(data)
				}
			}
			*runs = append(*runs, run)
			fmt.Fprint(stdout, output)
			return runErr
		},
	}
}

func writeDescription(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.kiwi"), []byte(testDescription), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "root", "etc"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root", "etc", "motd"), []byte("hi\n"), 0644))
	return dir
}

func TestTaskRequiresPrivileges(t *testing.T) {
	var runs []recordedRun
	engine := testEngine(1000, "", nil, &runs)

	task, err := engine.NewTask([]string{"kiwi-ng", "system", "build", "--description", writeDescription(t), "--target-dir", "/out"}, "")
	require.NoError(t, err)

	_, err = task.Load()
	assert.ErrorIs(t, err, ErrPrivileges)
}

func TestTaskBoxBuildWithoutPrivileges(t *testing.T) {
	var runs []recordedRun
	engine := testEngine(1000, "", nil, &runs)

	task, err := engine.NewTask([]string{
		"kiwi-ng", "system", "boxbuild", "--box", "ubuntu",
		"--", "--description", writeDescription(t), "--target-dir", "/out",
	}, "")
	require.NoError(t, err)

	_, err = task.Load()
	assert.NoError(t, err)
}

func TestTaskRootDirExists(t *testing.T) {
	var runs []recordedRun
	engine := testEngine(0, "", nil, &runs)
	root := t.TempDir()
	desc := writeDescription(t)

	task, err := engine.NewTask([]string{"kiwi-ng", "system", "prepare", "--description", desc, "--root", root}, "")
	require.NoError(t, err)
	_, err = task.Load()
	var exists *RootDirExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, root, exists.Path)
	assert.Equal(t, fmt.Sprintf("Root directory %s already exists", root), err.Error())

	task, err = engine.NewTask([]string{"kiwi-ng", "system", "prepare", "--description", desc, "--root", root, "--allow-existing-root"}, "")
	require.NoError(t, err)
	_, err = task.Load()
	assert.NoError(t, err)
}

func TestTaskMissingDescription(t *testing.T) {
	var runs []recordedRun
	engine := testEngine(0, "", nil, &runs)

	task, err := engine.NewTask([]string{"kiwi-ng", "system", "build", "--description", t.TempDir(), "--target-dir", "/out"}, "")
	require.NoError(t, err)
	_, err = task.Load()
	assert.True(t, models.IsErrorType(err, models.ErrDescription))
}

func TestTaskRunStagesRewrittenDescription(t *testing.T) {
	var runs []recordedRun
	engine := testEngine(0, "done\n", nil, &runs)
	desc := writeDescription(t)

	task, err := engine.NewTask([]string{"kiwi-ng", "--debug", "system", "build", "--description", desc, "--target-dir", "/out"}, "")
	require.NoError(t, err)

	state, err := task.Load()
	require.NoError(t, err)
	state.DeleteRepositorySections()
	require.NoError(t, state.AddRepository(models.Record{Alias: "new", SourceURL: "http://new.example.com", Type: "apt-deb"}))

	require.NoError(t, task.Run(context.Background()))
	require.Len(t, runs, 1)
	assert.Equal(t, "kiwi-ng", runs[0].name)
	assert.Equal(t, "--debug", runs[0].args[0])
	assert.NotContains(t, runs[0].args, desc)
	assert.Contains(t, runs[0].staged, `alias="new"`)
	assert.NotContains(t, runs[0].staged, `alias="old"`)

	// the original description is untouched
	original, err := os.ReadFile(filepath.Join(desc, "config.kiwi"))
	require.NoError(t, err)
	assert.Equal(t, testDescription, string(original))

	stageDir := task.stageDir
	assert.FileExists(t, filepath.Join(stageDir, "description", "root", "etc", "motd"))
	require.NoError(t, task.Cleanup())
	assert.NoDirExists(t, stageDir)
	require.NoError(t, task.Cleanup())
}

func TestTaskLoadsXMLOnlyDescription(t *testing.T) {
	var runs []recordedRun
	engine := testEngine(0, "", nil, &runs)
	desc := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(desc, "appliance.xml"), []byte(testDescription), 0644))

	task, err := engine.NewTask([]string{"kiwi-ng", "system", "build", "--description", desc, "--target-dir", "/out"}, "")
	require.NoError(t, err)
	defer task.Cleanup()

	state, err := task.Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(desc, "appliance.xml"), state.Path())

	require.NoError(t, task.Run(context.Background()))
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].staged, `alias="old"`)
}

func TestTaskRunsSelectedDescriptionFile(t *testing.T) {
	var runs []recordedRun
	engine := testEngine(0, "", nil, &runs)
	desc := writeDescription(t)
	chosen := strings.Replace(testDescription, `alias="old"`, `alias="chosen"`, 1)
	require.NoError(t, os.WriteFile(filepath.Join(desc, "other.kiwi"), []byte(testDescription), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(desc, "chosen.xml"), []byte(chosen), 0644))

	file := filepath.Join(desc, "chosen.xml")
	task, err := engine.NewTask([]string{"kiwi-ng", "system", "build", "--description", desc, "--target-dir", "/out"}, file)
	require.NoError(t, err)
	defer task.Cleanup()

	state, err := task.Load()
	require.NoError(t, err)
	assert.Equal(t, file, state.Path())

	require.NoError(t, task.Run(context.Background()))
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].staged, `alias="chosen"`)

	staged := filepath.Join(task.stageDir, "description")
	assert.NoFileExists(t, filepath.Join(staged, "other.kiwi"))
	assert.FileExists(t, filepath.Join(staged, StagedDescription))
}

func TestTaskRunClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		output string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "privileges",
			output: "KiwiPrivilegesError: Operation requires root permissions\n",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrPrivileges)
			},
		},
		{
			name:   "root exists",
			output: "KiwiRootDirExists: Root directory /tmp/root already exists\n",
			check: func(t *testing.T, err error) {
				var exists *RootDirExistsError
				assert.ErrorAs(t, err, &exists)
			},
		},
		{
			name:   "other",
			output: "KiwiSchemaImportError\n",
			check: func(t *testing.T, err error) {
				assert.True(t, models.IsErrorType(err, models.ErrEngine))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs []recordedRun
			engine := testEngine(0, tt.output, errors.New("exit status 1"), &runs)

			task, err := engine.NewTask([]string{"kiwi-ng", "system", "prepare", "--description", writeDescription(t), "--root", "/nonexistent/root"}, "")
			require.NoError(t, err)
			defer task.Cleanup()

			_, err = task.Load()
			require.NoError(t, err)
			tt.check(t, task.Run(context.Background()))
		})
	}
}

func TestTaskRunWithoutLoad(t *testing.T) {
	var runs []recordedRun
	engine := testEngine(0, "", nil, &runs)

	task, err := engine.NewTask([]string{"kiwi-ng", "system", "build", "--description", "/img", "--target-dir", "/out"}, "")
	require.NoError(t, err)
	assert.Error(t, task.Run(context.Background()))
	assert.Empty(t, runs)
}

func TestNewTaskInvalidCommand(t *testing.T) {
	_, err := NewEngine().NewTask([]string{"kiwi-ng", "result", "list"}, "")
	assert.True(t, models.IsErrorType(err, models.ErrEngine))
}

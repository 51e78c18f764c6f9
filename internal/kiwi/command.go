package kiwi

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Actions of the "system" command
const (
	ActionBuild    = "build"
	ActionBoxBuild = "boxbuild"
	ActionPrepare  = "prepare"
)

// Command is a kiwi-ng command line read the way kiwi-ng reads it
type Command struct {
	Args []string

	Profiles []string
	Debug    bool

	Action            string
	Description       string
	Root              string
	TargetDir         string
	AllowExistingRoot bool
}

// ParseCommand parses args, args[0] being the program. Options this
// package does not care about are accepted and kept untouched in Args.
func ParseCommand(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := &Command{Args: append([]string(nil), args...)}

	global := newFlagSet("kiwi-ng")
	global.StringArrayVar(&cmd.Profiles, "profile", nil, "profile")
	global.BoolVar(&cmd.Debug, "debug", false, "debug")
	global.SetInterspersed(false)
	if err := global.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("invalid kiwi-ng options: %w", err)
	}

	rest := global.Args()
	if len(rest) < 2 || rest[0] != "system" {
		return nil, fmt.Errorf("expected \"system <action>\", got %q", strings.Join(rest, " "))
	}
	cmd.Action = rest[1]

	switch cmd.Action {
	case ActionBuild, ActionPrepare:
		if err := cmd.parseSystemFlags(rest[2:]); err != nil {
			return nil, err
		}
	case ActionBoxBuild:
		// box options come first, the build options follow "--"
		box := newFlagSet("boxbuild")
		if err := box.Parse(rest[2:]); err != nil {
			return nil, fmt.Errorf("invalid boxbuild options: %w", err)
		}
		if box.ArgsLenAtDash() < 0 {
			return nil, fmt.Errorf("boxbuild needs build options after \"--\"")
		}
		if err := cmd.parseSystemFlags(box.Args()[box.ArgsLenAtDash():]); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported action %q", cmd.Action)
	}

	if cmd.Description == "" {
		return nil, fmt.Errorf("--description is required")
	}
	return cmd, nil
}

func (c *Command) parseSystemFlags(args []string) error {
	fs := newFlagSet(c.Action)
	fs.StringVar(&c.Description, "description", "", "description")
	fs.StringVar(&c.Root, "root", "", "root")
	fs.StringVar(&c.TargetDir, "target-dir", "", "target dir")
	fs.BoolVar(&c.AllowExistingRoot, "allow-existing-root", false, "allow existing root")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid %s options: %w", c.Action, err)
	}
	return nil
}

// RequiresRoot reports whether the action runs with root privileges
func (c *Command) RequiresRoot() bool {
	return c.Action == ActionBuild || c.Action == ActionPrepare
}

// WithDescription returns Args with the description directory replaced
func (c *Command) WithDescription(dir string) []string {
	out := append([]string(nil), c.Args...)
	for i := 0; i < len(out); i++ {
		switch {
		case out[i] == "--description" && i+1 < len(out):
			out[i+1] = dir
			i++
		case strings.HasPrefix(out[i], "--description="):
			out[i] = "--description=" + dir
		}
	}
	return out
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	return fs
}

package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/elektrobit/berrymill/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSystemConfig is merged over the built-in defaults when present
	DefaultSystemConfig = "/etc/berrymill/berrymill.conf"
	// DefaultBoxedPluginConf is used when boxed_plugin_conf is not configured
	DefaultBoxedPluginConf = "/etc/berrymill/kiwi_boxed_plugin.yml"
)

// Recognized top-level keys
const (
	KeyUseGlobalRepos  = "use-global-repos"
	KeyRepos           = "repos"
	KeyBoxedPluginConf = "boxed_plugin_conf"

	// LocalSource is the repos source filled by discovery
	LocalSource = "local"
)

// Discoverer finds repositories already configured on the host
type Discoverer interface {
	Discover(ctx context.Context) models.ArchRepoMapping
}

// Store holds the merged configuration of one invocation
type Store struct {
	systemConfig string
	files        []string
	tree         *Tree
}

// NewStore creates a store holding the built-in defaults
func NewStore() *Store {
	return &Store{
		systemConfig: DefaultSystemConfig,
		tree:         defaults(),
	}
}

func defaults() *Tree {
	t := NewTree()
	t.Set(KeyUseGlobalRepos, false)
	t.Subtree(KeyRepos)
	return t
}

// SetSystemConfig overrides the system config path; empty disables it
func (s *Store) SetSystemConfig(path string) {
	s.systemConfig = path
}

// AddConfig queues a user config file. Files are merged in the order they
// were added, later files winning.
func (s *Store) AddConfig(path string) {
	s.files = append(s.files, path)
}

// Load merges the defaults, the system config and the user configs
func (s *Store) Load() error {
	tree := defaults()

	if s.systemConfig != "" {
		sys, err := LoadFile(s.systemConfig)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logrus.Debugf("No system configuration at %s", s.systemConfig)
		case err != nil:
			return &models.MillError{Type: models.ErrInvalidConfig, Subject: s.systemConfig, Err: err}
		default:
			logrus.Debugf("Loaded system configuration %s", s.systemConfig)
			tree.Merge(sys)
		}
	}

	for _, path := range s.files {
		user, err := LoadFile(path)
		if err != nil {
			return &models.MillError{Type: models.ErrInvalidConfig, Subject: path, Err: err}
		}
		logrus.Debugf("Loaded configuration %s", path)
		tree.Merge(user)
	}

	if v, _ := tree.Value(KeyUseGlobalRepos); v != nil {
		if _, err := parseFlag(v); err != nil {
			return &models.MillError{Type: models.ErrInvalidConfig, Subject: KeyUseGlobalRepos, Err: err}
		}
	}

	s.tree = tree
	return nil
}

// Sources returns the repository sources in declaration order
func (s *Store) Sources() []string {
	repos, ok := s.tree.Lookup(KeyRepos)
	if !ok {
		return nil
	}
	return repos.Keys()
}

// UseGlobalRepos reports whether host repositories should be discovered
func (s *Store) UseGlobalRepos() bool {
	v, _ := s.tree.Value(KeyUseGlobalRepos)
	enabled, _ := parseFlag(v)
	return enabled
}

// parseFlag reads a boolean setting. YAML 1.1 spellings such as "yes" and
// "off" are accepted because yaml.v3 decodes them as strings.
func parseFlag(v interface{}) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "y", "on", "1":
			return true, nil
		case "false", "no", "n", "off", "0", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("expected a boolean, got %v", v)
}

// BoxedPluginConf returns the kiwi boxed plugin configuration path
func (s *Store) BoxedPluginConf() string {
	if v, ok := s.tree.Value(KeyBoxedPluginConf); ok && v != nil {
		return fmt.Sprint(v)
	}
	return DefaultBoxedPluginConf
}

// MaybePopulateLocalRepos installs the repositories found by d under
// repos.local. Nothing happens when use-global-repos is off or when
// repos.local is already configured. It reports whether d was called.
func (s *Store) MaybePopulateLocalRepos(ctx context.Context, d Discoverer) bool {
	if !s.UseGlobalRepos() {
		return false
	}

	repos := s.tree.Subtree(KeyRepos)
	if v, ok := repos.Get(LocalSource); ok && v != nil {
		logrus.Debug("Local repositories are configured explicitly, skipping discovery")
		return false
	}
	local := repos.Subtree(LocalSource)

	found := d.Discover(ctx)
	arches := make([]string, 0, len(found))
	for arch := range found {
		arches = append(arches, arch)
	}
	sort.Strings(arches)

	for _, arch := range arches {
		archTree := local.Subtree(arch)
		set := found[arch]
		for _, name := range set.Names() {
			attrs, _ := set.Get(name)
			archTree.Set(name, attributesTree(attrs))
		}
		logrus.Debugf("Discovered %d local repositories for %s", set.Len(), arch)
	}
	return true
}

// Repos merges the repositories of every source for arch. Sources are
// visited in declaration order so a later source overrides an earlier one
// defining the same repository name.
func (s *Store) Repos(arch string) (*models.RepoSet, error) {
	set := models.NewRepoSet()

	reposTree, ok := s.tree.Lookup(KeyRepos)
	if !ok {
		return set, nil
	}

	for _, source := range reposTree.Keys() {
		sourceTree, err := mapping(reposTree, source, KeyRepos, source)
		if err != nil {
			return set, err
		}
		if sourceTree == nil {
			continue
		}

		archTree, err := mapping(sourceTree, arch, KeyRepos, source, arch)
		if err != nil {
			return set, err
		}
		if archTree == nil {
			continue
		}

		for _, name := range archTree.Keys() {
			attrsTree, err := mapping(archTree, name, KeyRepos, source, arch, name)
			if err != nil {
				return set, err
			}
			if attrsTree == nil {
				return set, &models.MillError{
					Type:    models.ErrInvalidConfig,
					Subject: joinPath([]string{KeyRepos, source, arch, name}),
					Err:     fmt.Errorf("empty repository definition"),
				}
			}
			set.Add(name, attributesOf(attrsTree))
		}
	}
	return set, nil
}

// Dump writes the merged configuration as YAML
func (s *Store) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s.tree); err != nil {
		return err
	}
	return enc.Close()
}

// mapping returns the subtree under key. A missing or null key yields nil;
// a scalar where a mapping is expected is a configuration error.
func mapping(t *Tree, key string, path ...string) (*Tree, error) {
	v, ok := t.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	sub, ok := v.(*Tree)
	if !ok {
		return nil, &models.MillError{
			Type:    models.ErrInvalidConfig,
			Subject: joinPath(path),
			Err:     fmt.Errorf("expected a mapping, got %v", v),
		}
	}
	return sub, nil
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}

// attributesOf flattens the scalar values of t into repository attributes
func attributesOf(t *Tree) models.RepoAttributes {
	attrs := make(models.RepoAttributes, t.Len())
	for _, key := range t.Keys() {
		v, _ := t.Get(key)
		switch v.(type) {
		case nil, *Tree:
			continue
		}
		attrs[key] = fmt.Sprint(v)
	}
	return attrs
}

func attributesTree(attrs models.RepoAttributes) *Tree {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := NewTree()
	for _, k := range keys {
		t.Set(k, attrs[k])
	}
	return t
}

package models

// Attribute keys understood in a repository definition
const (
	AttrURL        = "url"
	AttrType       = "type"
	AttrName       = "name"
	AttrKey        = "key"
	AttrComponents = "components"
)

// AllComponents is the components value meaning "no component filter"
const AllComponents = "/"

// RepoAttributes is the loosely typed definition of one repository as found
// in a config file or reconstructed by discovery. Any key may be missing.
type RepoAttributes map[string]string

// Get returns the attribute value and whether it is set
func (a RepoAttributes) Get(key string) (string, bool) {
	v, ok := a[key]
	return v, ok
}

// Clone returns an independent copy of the attributes
func (a RepoAttributes) Clone() RepoAttributes {
	c := make(RepoAttributes, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// RepoSet is an insertion-ordered set of repositories keyed by name.
// Adding a name twice replaces its attributes but keeps its first position.
type RepoSet struct {
	names []string
	repos map[string]RepoAttributes
}

// NewRepoSet creates an empty repository set
func NewRepoSet() *RepoSet {
	return &RepoSet{repos: make(map[string]RepoAttributes)}
}

// Add inserts or replaces the repository called name
func (s *RepoSet) Add(name string, attrs RepoAttributes) {
	if _, exists := s.repos[name]; !exists {
		s.names = append(s.names, name)
	}
	s.repos[name] = attrs
}

// Get returns the attributes of the repository called name
func (s *RepoSet) Get(name string) (RepoAttributes, bool) {
	attrs, ok := s.repos[name]
	return attrs, ok
}

// Names returns the repository names in insertion order
func (s *RepoSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of repositories in the set
func (s *RepoSet) Len() int {
	return len(s.names)
}

// ArchRepoMapping maps a target architecture to its repositories
type ArchRepoMapping map[string]*RepoSet

// Set returns the repositories of arch, creating an empty set if needed
func (m ArchRepoMapping) Set(arch string) *RepoSet {
	s, ok := m[arch]
	if !ok {
		s = NewRepoSet()
		m[arch] = s
	}
	return s
}

// Record is a repository definition normalized for the image description.
// Empty strings stand for absent values: an empty Components means no
// component filter and a SigningKeys entry may be empty.
type Record struct {
	Alias        string
	SourceURL    string
	Type         string
	SigningKeys  []string
	Components   string
	Distribution string
	GPGCheck     bool
}

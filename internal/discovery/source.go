package discovery

import "context"

// SourceFormat represents the syntax of an APT source file
type SourceFormat int

const (
	FormatUnknown SourceFormat = iota
	// FormatOneLine is the classic "deb [options] uri suite components" syntax
	FormatOneLine
	// FormatDeb822 is the stanza based ".sources" syntax
	FormatDeb822
)

// String returns the string representation of SourceFormat
func (f SourceFormat) String() string {
	switch f {
	case FormatOneLine:
		return "one-line"
	case FormatDeb822:
		return "deb822"
	default:
		return "unknown"
	}
}

// SourceFile represents an APT source file found during scanning
type SourceFile struct {
	Path   string
	Format SourceFormat
}

// Entry is one APT source definition. A deb822 stanza may expand to several
// URIs and suites; a one-line entry always has exactly one of each.
type Entry struct {
	Types         []string
	URIs          []string
	Suites        []string
	Components    []string
	Architectures []string
	// SignedBy is a keyring path, a fingerprint list or an inline key block
	SignedBy string
	Enabled  bool
}

// Scanner finds the APT source files of a system
type Scanner interface {
	// Scan returns the source files below the configured root
	Scan(ctx context.Context) ([]SourceFile, error)
}

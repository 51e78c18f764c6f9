package discovery

import (
	"path/filepath"
	"strings"
)

// DetectFormat determines the source file syntax from its name, the same
// way apt decides which files in sources.list.d to read.
func DetectFormat(path string) SourceFormat {
	base := filepath.Base(path)

	// apt ignores editor backups and dpkg leftovers
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return FormatUnknown
	}
	for _, ext := range []string{".dpkg-old", ".dpkg-dist", ".dpkg-new", ".save", ".disabled"} {
		if strings.HasSuffix(base, ext) {
			return FormatUnknown
		}
	}

	switch filepath.Ext(base) {
	case ".list":
		return FormatOneLine
	case ".sources":
		return FormatDeb822
	}

	if base == "sources.list" {
		return FormatOneLine
	}
	return FormatUnknown
}

// Package discovery reconstructs repository definitions from the APT
// configuration of the local system.
package discovery

import (
	"bufio"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/elektrobit/berrymill/internal/keyring"
	"github.com/elektrobit/berrymill/internal/models"
	"github.com/elektrobit/berrymill/internal/sysinfo"
	"github.com/sirupsen/logrus"
)

// RepoTypeAptDeb is the kiwi repository type of APT repositories
const RepoTypeAptDeb = "apt-deb"

const dpkgArchFile = "var/lib/dpkg/arch"

// Debian discovers the repositories configured for APT
type Debian struct {
	// Root is the filesystem root the APT configuration is read from
	Root string
	// HostArch is used for entries that do not restrict architectures
	HostArch string

	scanner Scanner
}

// NewDebian creates a discoverer for the system below root
func NewDebian(root string) *Debian {
	return &Debian{
		Root:     root,
		HostArch: sysinfo.LocalArch(),
		scanner:  NewFileSystemScanner(root),
	}
}

// Discover returns the deb repositories of the system per architecture.
// Discovery is best effort: unreadable files are skipped and the result
// is empty, never an error, when nothing can be read.
func (d *Debian) Discover(ctx context.Context) models.ArchRepoMapping {
	result := models.ArchRepoMapping{}

	files, err := d.scanner.Scan(ctx)
	if err != nil {
		logrus.Warnf("Failed to scan APT sources: %v", err)
	}

	defaultArches := d.defaultArches()

	for _, file := range files {
		// entries parsed before an error are kept
		entries, err := readSourceFile(file)
		if err != nil {
			logrus.Warnf("Failed to read APT source %s: %v", file.Path, err)
		}

		for _, entry := range entries {
			d.addEntry(result, entry, defaultArches)
		}
	}

	return result
}

func readSourceFile(file SourceFile) ([]Entry, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var parse func(io.Reader) ([]Entry, error)
	switch file.Format {
	case FormatDeb822:
		parse = ParseDeb822
	default:
		parse = ParseOneLine
	}
	return parse(f)
}

func (d *Debian) addEntry(result models.ArchRepoMapping, entry Entry, defaultArches []string) {
	if !entry.Enabled || !contains(entry.Types, "deb") {
		return
	}

	arches := entry.Architectures
	if len(arches) == 0 {
		arches = defaultArches
	}

	key := d.signingKey(entry.SignedBy)

	for _, uri := range entry.URIs {
		for _, suite := range entry.Suites {
			name := RepoName(uri, suite)
			attrs := models.RepoAttributes{
				models.AttrURL:        uri,
				models.AttrType:       RepoTypeAptDeb,
				models.AttrComponents: models.AllComponents,
			}
			if !isFlat(suite) {
				attrs[models.AttrName] = suite
				if len(entry.Components) > 0 {
					attrs[models.AttrComponents] = strings.Join(entry.Components, ",")
				}
			}
			if key != "" {
				attrs[models.AttrKey] = key
			}

			for _, arch := range arches {
				result.Set(arch).Add(name, attrs.Clone())
			}
			logrus.Debugf("Discovered repository %s (%s) for %v", name, uri, arches)
		}
	}
}

// signingKey turns a signed-by value into a key URI and logs the
// fingerprints of the keyring it refers to.
func (d *Debian) signingKey(signedBy string) string {
	switch {
	case signedBy == "":
		return ""
	case keyring.IsArmored(signedBy):
		fps, err := keyring.ArmoredFingerprints(signedBy)
		if err != nil {
			logrus.Warnf("Unreadable inline signing key: %v", err)
			return ""
		}
		logrus.Debugf("Inline signing key %v cannot be referenced by the image description", fps)
		return ""
	case strings.HasPrefix(signedBy, "/"):
		fps, err := keyring.FileFingerprints(filepath.Join(d.Root, signedBy))
		if err != nil {
			logrus.Warnf("Signing key %s: %v", signedBy, err)
		} else {
			logrus.Debugf("Signing key %s: %s", signedBy, strings.Join(fps, ", "))
		}
		return "file://" + signedBy
	default:
		// fingerprints of keys in the trusted keyrings
		return ""
	}
}

// defaultArches returns the host architecture followed by the foreign
// architectures dpkg is configured for.
func (d *Debian) defaultArches() []string {
	arches := []string{d.HostArch}

	f, err := os.Open(filepath.Join(d.Root, dpkgArchFile))
	if err != nil {
		return arches
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		arch := strings.TrimSpace(scanner.Text())
		if arch != "" && !contains(arches, arch) {
			arches = append(arches, arch)
		}
	}
	return arches
}

// RepoName derives a stable repository name from its URI and suite, e.g.
// "deb.debian.org_debian_bookworm-updates".
func RepoName(uri, suite string) string {
	base := uri
	if u, err := url.Parse(uri); err == nil && (u.Host != "" || u.Path != "") {
		base = u.Host + u.Path
	}

	parts := []string{base}
	if s := strings.Trim(suite, "./"); s != "" {
		parts = append(parts, s)
	}

	name := strings.Join(parts, "_")
	name = strings.ReplaceAll(name, "/", "_")
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(name, "_")
}

// isFlat reports whether suite addresses a flat repository ("./", "sub/")
func isFlat(suite string) bool {
	return strings.HasSuffix(suite, "/")
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

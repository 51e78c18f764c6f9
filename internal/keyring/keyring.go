// Package keyring inspects OpenPGP keyrings referenced by repositories.
package keyring

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Fingerprints returns the primary key fingerprints of an armored or binary
// keyring, upper-case hex encoded.
func Fingerprints(r io.ReadSeeker) ([]string, error) {
	// Try to parse as armored keyring first
	entityList, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		// Try as binary keyring
		if _, seekErr := r.Seek(0, io.SeekStart); seekErr != nil {
			return nil, seekErr
		}
		entityList, err = openpgp.ReadKeyRing(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read keyring: %w", err)
		}
	}

	if len(entityList) == 0 {
		return nil, fmt.Errorf("no keys found in keyring")
	}

	fingerprints := make([]string, 0, len(entityList))
	for _, entity := range entityList {
		if entity.PrimaryKey == nil {
			continue
		}
		fingerprints = append(fingerprints, fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint))
	}
	return fingerprints, nil
}

// FileFingerprints reads the keyring stored at path
func FileFingerprints(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	defer f.Close()

	return Fingerprints(f)
}

// IsArmored reports whether s holds an ASCII armored key block
func IsArmored(s string) bool {
	return strings.Contains(s, "-----BEGIN PGP PUBLIC KEY BLOCK-----")
}

// ArmoredFingerprints reads a keyring given inline as an armored block
func ArmoredFingerprints(block string) ([]string, error) {
	return Fingerprints(bytes.NewReader([]byte(block)))
}

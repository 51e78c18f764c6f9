package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

const (
	sourcesList    = "etc/apt/sources.list"
	sourcesListDir = "etc/apt/sources.list.d"
)

// FileSystemScanner implements Scanner for an APT configuration on disk
type FileSystemScanner struct {
	Root string
}

// NewFileSystemScanner creates a scanner for the system below root
func NewFileSystemScanner(root string) *FileSystemScanner {
	return &FileSystemScanner{Root: root}
}

// Scan returns sources.list followed by the files of sources.list.d in
// lexical order, which is the order apt reads them in.
func (s *FileSystemScanner) Scan(ctx context.Context) ([]SourceFile, error) {
	var files []SourceFile

	mainList := filepath.Join(s.Root, sourcesList)
	if info, err := os.Stat(mainList); err == nil && !info.IsDir() {
		files = append(files, SourceFile{Path: mainList, Format: FormatOneLine})
	}

	dir := filepath.Join(s.Root, sourcesListDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return files, nil
	}
	if err != nil {
		return files, fmt.Errorf("failed to scan directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return files, ctx.Err()
		default:
		}

		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		format := DetectFormat(path)
		if format == FormatUnknown {
			logrus.Debugf("Ignoring %s", path)
			continue
		}

		logrus.Debugf("Found %s source file: %s", format, path)
		files = append(files, SourceFile{Path: path, Format: format})
	}

	return files, nil
}

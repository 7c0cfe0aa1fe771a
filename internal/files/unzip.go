package files

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Unzip extracts the archive's file entries into the working directory,
// skipping any entry whose embedded timestamp is not strictly newer than the
// extracts already on disk. It reports whether at least one new file was
// extracted. When clean is set the archive is deleted afterwards.
func (s *Selector) Unzip(zipPath string, clean bool, logger *slog.Logger) (bool, error) {
	existing, err := s.membersOf(Extracts)
	if err != nil {
		return false, err
	}

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return false, err
	}
	defer reader.Close()

	extracted := false
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if !IsNewer(entry.Name, existing) {
			logger.Info("archive entry is not new, skipping", "entry", entry.Name)
			continue
		}
		dest, err := safeDestination(s.dir, entry.Name)
		if err != nil {
			return false, err
		}
		logger.Info("extracting archive entry", "entry", entry.Name)
		if err := extractEntry(entry, dest); err != nil {
			return false, err
		}
		extracted = true
	}

	if clean {
		logger.Info("deleting archive after extraction", "archive", filepath.Base(zipPath))
		if err := os.Remove(zipPath); err != nil {
			return extracted, err
		}
	}
	return extracted, nil
}

// safeDestination refuses entries that would escape the target directory.
func safeDestination(dir, entryName string) (string, error) {
	dest := filepath.Join(dir, filepath.Base(entryName))
	cleanDir := filepath.Clean(dir) + string(os.PathSeparator)
	if !strings.HasPrefix(dest, cleanDir) {
		return "", fmt.Errorf("archive entry escapes target directory: %s", entryName)
	}
	return dest, nil
}

func extractEntry(entry *zip.File, dest string) error {
	in, err := entry.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

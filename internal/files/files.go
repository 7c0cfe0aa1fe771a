// Package files tracks the three working-file families of the pipeline:
// downloaded archives (.zip), parsed extracts (.txt) and serialized
// snapshots (.ser). Filenames embed a 12-digit yyyyMMddhhmm timestamp that
// orders versions; a file without the token sorts as epoch zero.
package files

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Category identifies one working-file family.
type Category string

const (
	Archives  Category = ".zip"
	Extracts  Category = ".txt"
	Snapshots Category = ".ser"
)

var timestampToken = regexp.MustCompile(`(\d{12})`)

// EpochTimestamp is the version assigned to files without an embedded token.
const EpochTimestamp = "197001010000"

// Timestamp extracts the 12-digit version token from a file name.
func Timestamp(name string) string {
	if m := timestampToken.FindStringSubmatch(filepath.Base(name)); m != nil {
		return m[1]
	}
	return EpochTimestamp
}

// Selector classifies and version-orders the files of one working directory.
type Selector struct {
	dir string
}

func NewSelector(dir string) *Selector {
	return &Selector{dir: dir}
}

// Dir returns the working directory the selector operates on.
func (s *Selector) Dir() string {
	return s.dir
}

// List returns the names of all regular files in the working directory.
func (s *Selector) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// LatestOf returns the path of the newest file in the category, or "" when
// the category is empty. Newest means maximum embedded timestamp; ties are
// broken by name so the result is deterministic.
func (s *Selector) LatestOf(cat Category) (string, error) {
	names, err := s.membersOf(cat)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, name := range names {
		if latest == "" || newerThan(name, latest) {
			latest = name
		}
	}
	if latest == "" {
		return "", nil
	}
	return filepath.Join(s.dir, latest), nil
}

// IsConsistent reports whether the latest extract and the latest snapshot
// carry the same embedded timestamp. A mismatch means a prior run died
// between loading and serializing, leaving a stale baseline.
func (s *Selector) IsConsistent() (bool, error) {
	latestExtract, err := s.LatestOf(Extracts)
	if err != nil {
		return false, err
	}
	latestSnapshot, err := s.LatestOf(Snapshots)
	if err != nil {
		return false, err
	}
	return Timestamp(latestExtract) == Timestamp(latestSnapshot), nil
}

// RetainLatestOnly deletes, in each category, every file except the one with
// the maximum embedded timestamp.
func (s *Selector) RetainLatestOnly() error {
	for _, cat := range []Category{Archives, Extracts, Snapshots} {
		names, err := s.membersOf(cat)
		if err != nil {
			return err
		}
		latest := ""
		for _, name := range names {
			if latest == "" || newerThan(name, latest) {
				latest = name
			}
		}
		for _, name := range names {
			if name == latest {
				continue
			}
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsNewer reports whether candidate carries a strictly greater timestamp
// than every existing file name. Equal timestamps are not newer: a payload
// already captured is never re-extracted.
func IsNewer(candidate string, existing []string) bool {
	for _, name := range existing {
		if Timestamp(name) >= Timestamp(candidate) {
			return false
		}
	}
	return true
}

// Remove deletes one named file from the working directory.
func (s *Selector) Remove(name string) error {
	return os.Remove(filepath.Join(s.dir, filepath.Base(name)))
}

// RemoveAll deletes every regular file in the working directory. When
// keepSnapshots is set, .ser files survive so the baseline is preserved.
func (s *Selector) RemoveAll(keepSnapshots bool) error {
	names, err := s.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		if keepSnapshots && strings.HasSuffix(name, string(Snapshots)) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Selector) membersOf(cat Category) ([]string, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	members := all[:0]
	for _, name := range all {
		if strings.HasSuffix(name, string(cat)) {
			members = append(members, name)
		}
	}
	return members, nil
}

// Timestamps are fixed-width digit strings, so lexicographic order is
// chronological order.
func newerThan(a, b string) bool {
	ta, tb := Timestamp(a), Timestamp(b)
	if ta != tb {
		return ta > tb
	}
	return a > b
}

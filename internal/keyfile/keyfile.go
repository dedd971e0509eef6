// Package keyfile loads GKeyFile-style configuration files ("[group]" headers
// followed by key=value lines), the format DeepStream plugins use for their
// low-level configuration.
package keyfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

var (
	ErrConfigNotFound = errors.New("keyfile: config file not found")
	ErrConfigParse    = errors.New("keyfile: config file could not be parsed")
	ErrKeyNotFound    = errors.New("keyfile: key not found")
	ErrTypeMismatch   = errors.New("keyfile: value has wrong type")
)

// Store is a loaded, read-only configuration source.
type Store struct {
	path string // absolute path of the source file
	dir  string
	file *ini.File
}

// Load reads the key file at path.
//
// The path is made absolute at load time so that relative path values can be
// resolved against the file's directory later, independent of the process
// working directory.
func Load(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigNotFound, path, err)
	}

	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("keyfile: stat %s: %w", path, err)
	}

	// GKeyFile has no inline comments: '#' inside a value is part of it.
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
	}, abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}

	return &Store{path: abs, dir: filepath.Dir(abs), file: file}, nil
}

// Parse builds a Store from in-memory data. baseDir is used to resolve
// relative path values.
func Parse(data []byte, baseDir string) (*Store, error) {
	file, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	dir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("keyfile: resolve base dir %s: %w", baseDir, err)
	}
	return &Store{dir: dir, file: file}, nil
}

// Path returns the absolute path of the loaded file, or "" for parsed data.
func (s *Store) Path() string {
	return s.path
}

// Dir returns the directory relative paths are resolved against.
func (s *Store) Dir() string {
	return s.dir
}

// Groups returns the group names in file order.
func (s *Store) Groups() []string {
	var groups []string
	for _, name := range s.file.SectionStrings() {
		if name == ini.DefaultSection {
			continue
		}
		groups = append(groups, name)
	}
	return groups
}

// Keys returns the key names of group in file order.
func (s *Store) Keys(group string) ([]string, error) {
	section, err := s.section(group)
	if err != nil {
		return nil, err
	}
	return section.KeyStrings(), nil
}

// GetString returns the raw string value of group/key.
func (s *Store) GetString(group, key string) (string, error) {
	k, err := s.key(group, key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(k.String()), nil
}

// GetInt returns group/key parsed as a base-10 integer.
func (s *Store) GetInt(group, key string) (int, error) {
	raw, err := s.GetString(group, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: [%s] %s=%q is not an integer", ErrTypeMismatch, group, key, raw)
	}
	return v, nil
}

// GetBool returns group/key as a boolean. Integer encoding (0 false, any
// other integer true) is accepted alongside true/false.
func (s *Store) GetBool(group, key string) (bool, error) {
	raw, err := s.GetString(group, key)
	if err != nil {
		return false, err
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v != 0, nil
	}
	switch strings.ToLower(raw) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: [%s] %s=%q is not a boolean", ErrTypeMismatch, group, key, raw)
}

// GetPath returns group/key as a filesystem path. Relative values are
// resolved against the directory of the config file; absolute values are
// returned unchanged.
func (s *Store) GetPath(group, key string) (string, error) {
	raw, err := s.GetString(group, key)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return "", fmt.Errorf("%w: [%s] %s is empty, expected a path", ErrTypeMismatch, group, key)
	}
	return ResolvePath(s.dir, raw), nil
}

// ResolvePath resolves p against dir unless p is already absolute.
func ResolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (s *Store) section(group string) (*ini.Section, error) {
	section, err := s.file.GetSection(group)
	if err != nil {
		return nil, fmt.Errorf("%w: group [%s]", ErrKeyNotFound, group)
	}
	return section, nil
}

func (s *Store) key(group, key string) (*ini.Key, error) {
	section, err := s.section(group)
	if err != nil {
		return nil, err
	}
	k, err := section.GetKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: [%s] %s", ErrKeyNotFound, group, key)
	}
	return k, nil
}

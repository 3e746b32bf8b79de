// Package projectfile reads and writes a whole project, calendar and tasks,
// as a single YAML, JSON or TOML document for the command line tool.
package projectfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/task"
	"github.com/kazz187/ganttguild/pkg/storage"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// File is the on-disk project document.
type File struct {
	Name      string             `yaml:"name" json:"name" toml:"name"`
	StartDate string             `yaml:"start_date,omitempty" json:"startDate,omitempty" toml:"start_date,omitempty"`
	Calendar  *calendar.Calendar `yaml:"calendar,omitempty" json:"calendar,omitempty" toml:"calendar,omitempty"`
	Tasks     []*task.Task       `yaml:"tasks" json:"tasks" toml:"tasks"`
}

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported project file extension %q", filepath.Ext(path))
}

// dirStorage opens the directory of path as local storage keyed by file name.
func dirStorage(path string) (*storage.LocalStorage, string, error) {
	s, err := storage.NewLocalStorage(filepath.Dir(path))
	if err != nil {
		return nil, "", err
	}
	return s, filepath.Base(path), nil
}

func Load(ctx context.Context, path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	s, key, err := dirStorage(path)
	if err != nil {
		return nil, err
	}
	data, err := s.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Decode parses and validates a document.
func Decode(data []byte, format Format) (*File, error) {
	var f File
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &f)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	case FormatTOML:
		_, err = toml.Decode(string(data), &f)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func Encode(f *File, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(f)
	case FormatJSON:
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(f); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// Save encodes f by the extension of path. The write goes through local
// storage, which renames a temp file into place, so a watcher never sees a
// half written file.
func Save(ctx context.Context, path string, f *File) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Encode(f, format)
	if err != nil {
		return err
	}
	s, key, err := dirStorage(path)
	if err != nil {
		return err
	}
	return s.Write(ctx, key, data)
}

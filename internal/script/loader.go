// Package script loads batch files: ordered command lists authored as YAML,
// JSON or JSONC (JSON with comments and trailing commas).
//
// A batch file is either a bare list of commands or an object with a
// "commands" list and an optional "name":
//
//	name: smoke
//	commands:
//	  - command: New
//	    objPath: /
//	    cmdParam: Scenario Test
//	  - command: SetPosition
//	    objPath: /Ship1
//	    cmdParam: "10 20"
//	    waitMs: 500
package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/model"
)

// Format is a batch file encoding.
type Format string

// Supported formats.
const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
)

// File is a decoded batch file.
type File struct {
	Name     string          `json:"name,omitempty" yaml:"name,omitempty"`
	Commands []model.Command `json:"commands" yaml:"commands"`
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonc":
		return FormatJSONC, nil
	default:
		return "", errors.NewValidationError("unsupported batch file extension (want .yaml, .yml, .json or .jsonc)").
			WithField("path").
			WithValue(path)
	}
}

// NameFromPath derives a batch name from a file path by stripping the
// directory and extension: "batches/smoke.yaml" returns "smoke".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Loader reads batch files through an afero filesystem.
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a Loader over fs; nil means the OS filesystem.
func NewLoader(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs}
}

// Load reads, decodes and validates the batch file at path. When the file
// has no name, the name is taken from the path.
func (l *Loader) Load(path string) (*File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	f, err := Parse(data, format)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if f.Name == "" {
		f.Name = NameFromPath(path)
	}

	if err := f.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return f, nil
}

// Parse decodes data in the given format. Unknown fields are rejected so
// that a misspelled key does not silently become an empty value. Decoding
// failures wrap errors.ErrMalformedBatch.
func Parse(data []byte, format Format) (*File, error) {
	var (
		f   *File
		err error
	)
	switch format {
	case FormatYAML:
		f, err = parseYAML(data)
	case FormatJSON:
		f, err = parseJSON(data)
	case FormatJSONC:
		f, err = parseJSON(jsonc.ToJSON(data))
	default:
		return nil, errors.NewValidationError("unsupported batch format").WithValue(string(format))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedBatch, err)
	}
	return f, nil
}

func parseYAML(data []byte) (*File, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return &File{}, nil
	}

	var f File
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := decodeYAMLStrict(doc, &f.Commands); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		if err := decodeYAMLStrict(doc, &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("line %d: expected a list of commands or a mapping with \"commands\"", doc.Line)
	}
	return &f, nil
}

// decodeYAMLStrict re-encodes node and decodes it with unknown fields
// rejected; yaml.Node.Decode has no strict mode of its own.
func decodeYAMLStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}

func parseJSON(data []byte) (*File, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &File{}, nil
	}

	var f File
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var err error
	if trimmed[0] == '[' {
		err = dec.Decode(&f.Commands)
	} else {
		err = dec.Decode(&f)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every command and returns all problems joined together.
// Each problem is a *errors.ValidationError naming the offending entry.
func (f *File) Validate() error {
	if len(f.Commands) == 0 {
		return errors.NewValidationError("batch has no commands").WithField("commands")
	}

	var errs []error
	for i, cmd := range f.Commands {
		field := fmt.Sprintf("commands[%d]", i)
		if strings.TrimSpace(cmd.Command) == "" {
			errs = append(errs, errors.NewValidationError("command verb is required").
				WithField(field+".command"))
		}
		if cmd.WaitMs != nil && *cmd.WaitMs < 0 {
			errs = append(errs, errors.NewValidationError("waitMs must be non-negative").
				WithField(field+".waitMs").
				WithValue(*cmd.WaitMs))
		}
	}
	return errors.Join(errs...)
}

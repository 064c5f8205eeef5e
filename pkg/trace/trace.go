// Package trace stores counterexample traces: the action sequence that led a
// model from its initial state to a property violation.
package trace

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/persist"
)

// FormatVersion is the current trace format version.
const FormatVersion = 1

// Extension is the file extension of trace files.
const Extension = ".trace.json"

const dirName = "traces"

//go:embed schema.json
var schemaJSON []byte

// Sentinel errors for trace loading.
var (
	ErrInvalid         = outcome.Sentinel(outcome.ConfigurationError, "invalid trace file")
	ErrVersionMismatch = outcome.Sentinel(outcome.ConfigurationError, "trace format version mismatch")
	ErrNotFound        = outcome.Sentinel(outcome.ConfigurationError, "trace file not found")
)

// Violation is the serialized form of a model.Violation.
type Violation struct {
	Property string `json:"property"`
	Detail   string `json:"detail,omitempty"`
}

// Trace is a recorded counterexample.
type Trace struct {
	Version    int            `json:"version"`
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	EntryPoint string         `json:"entry_point"`
	Actions    []model.Action `json:"actions"`
	Violation  Violation      `json:"violation"`
	CreatedAt  time.Time      `json:"created_at"`
}

// New records a counterexample for the given execution.
func New(modelName, entryPoint string, actions []model.Action, v *model.Violation) *Trace {
	t := &Trace{
		Version:    FormatVersion,
		ID:         uuid.NewString(),
		Model:      modelName,
		EntryPoint: entryPoint,
		Actions:    append([]model.Action{}, actions...),
		CreatedAt:  time.Now().UTC(),
	}

	if v != nil {
		t.Violation = Violation{Property: v.Property, Detail: v.Detail}
	}

	return t
}

// Len returns the depth of the counterexample.
func (t *Trace) Len() int {
	return len(t.Actions)
}

// Dir returns the trace directory inside outputFolder.
func Dir(outputFolder string) string {
	return filepath.Join(outputFolder, dirName)
}

// Writer persists traces as they are found.
type Writer interface {
	Write(t *Trace) (string, error)
}

// Store writes each trace once into its own file.
type Store struct {
	dir       string
	project   string
	persister *persist.Persister[Trace]
}

// NewStore creates a store writing into dir with files prefixed by project.
func NewStore(dir, project string) *Store {
	return &Store{
		dir:       dir,
		project:   project,
		persister: persist.NewPersister[Trace](persist.NewJSONCodec()),
	}
}

// Path returns the file a trace is written to.
func (s *Store) Path(t *Trace) string {
	return filepath.Join(s.dir, s.project+"-"+t.ID+Extension)
}

// Write persists t and returns its path. An existing file is never replaced.
func (s *Store) Write(t *Trace) (string, error) {
	path := s.Path(t)

	err := s.persister.Create(path, t)
	if err != nil {
		return "", fmt.Errorf("write trace: %w", err)
	}

	return path, nil
}

// Load reads, schema-validates and decodes the trace at path.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	return Parse(data)
}

// Parse schema-validates and decodes a trace document.
func Parse(data []byte) (*Trace, error) {
	err := Validate(data)
	if err != nil {
		return nil, err
	}

	var t Trace

	err = persist.Unmarshal(persist.NewJSONCodec(), data, &t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if t.Version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, t.Version, FormatVersion)
	}

	return &t, nil
}

// Validate checks a trace document against the embedded JSON schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(bytes.TrimSpace(data)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		problems = append(problems, verr.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

// Package seed is the task source: it decodes the YAML fixture that provides
// the initial audit queue and the detail catalog behind it.
package seed

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"repair-fund-audit/internal/modal"
)

//go:embed seed.yaml
var defaultFixture []byte

var ErrInvalidFixture = errors.New("invalid seed fixture")

type Fixture struct {
	Tasks   []modal.AuditTask   `yaml:"tasks"`
	Details []modal.AuditDetail `yaml:"details"`
}

// Load reads the fixture at path, or the embedded default when path is empty.
func Load(path string) (*Fixture, error) {
	if path == "" {
		return Parse(defaultFixture)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	seen := make(map[int64]bool, len(f.Tasks))
	for i, t := range f.Tasks {
		if t.ID <= 0 {
			return fmt.Errorf("%w: task[%d] has non-positive id %d", ErrInvalidFixture, i, t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate task id %d", ErrInvalidFixture, t.ID)
		}
		seen[t.ID] = true
		if !t.RiskLevel.Valid() {
			return fmt.Errorf("%w: task %d risk level %q", ErrInvalidFixture, t.ID, t.RiskLevel)
		}
		if !t.Status.Valid() {
			return fmt.Errorf("%w: task %d status %q", ErrInvalidFixture, t.ID, t.Status)
		}
	}

	detailed := make(map[int64]bool, len(f.Details))
	for _, d := range f.Details {
		if !seen[d.TaskID] {
			return fmt.Errorf("%w: detail for unknown task %d", ErrInvalidFixture, d.TaskID)
		}
		if detailed[d.TaskID] {
			return fmt.Errorf("%w: duplicate detail for task %d", ErrInvalidFixture, d.TaskID)
		}
		detailed[d.TaskID] = true
	}
	return nil
}

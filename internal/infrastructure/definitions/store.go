package definitions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/domain/repository"
)

// Store serves calculator definitions from a directory of YAML files
type Store struct {
	dir  string
	mu   sync.RWMutex
	defs map[string]*entity.CalculatorDefinition
}

var _ repository.CalculatorRepository = (*Store)(nil)

// NewStore loads every *.yaml and *.yml file in dir
func NewStore(dir string) (*Store, error) {
	s := &Store{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rereads the directory. On error the previous definitions stay in place.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read definitions dir: %w", err)
	}

	defs := make(map[string]*entity.CalculatorDefinition)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		def, err := LoadFile(path)
		if err != nil {
			return err
		}
		if _, dup := defs[def.ID]; dup {
			return fmt.Errorf("duplicate calculator id %q in %s", def.ID, path)
		}
		defs[def.ID] = def
	}

	s.mu.Lock()
	s.defs = defs
	s.mu.Unlock()
	return nil
}

// List retrieves all calculator definitions ordered by ID
func (s *Store) List(_ context.Context) ([]*entity.CalculatorDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.CalculatorDefinition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByID retrieves a definition by ID, nil if absent
func (s *Store) GetByID(_ context.Context, id string) (*entity.CalculatorDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defs[id], nil
}

// LoadFile decodes a single definition file
func LoadFile(path string) (*entity.CalculatorDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	def, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Decode parses a YAML definition. Unknown fields are rejected.
func Decode(data []byte) (*entity.CalculatorDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def entity.CalculatorDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	if err := check(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

func check(def *entity.CalculatorDefinition) error {
	if def.ID == "" {
		return errors.New("calculator id is required")
	}
	seen := map[string]string{}
	claim := func(id, kind string) error {
		if id == "" {
			return fmt.Errorf("%s id is required", kind)
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%s id %q already used by a %s", kind, id, prev)
		}
		seen[id] = kind
		return nil
	}
	for _, v := range def.Variables {
		if err := claim(v.ID, "variable"); err != nil {
			return err
		}
	}
	for _, f := range def.Formulas {
		if err := claim(f.ID, "formula"); err != nil {
			return err
		}
	}
	for _, el := range def.Elements {
		if _, ok := el.Formula(); !ok {
			continue
		}
		if err := claim(el.ID, "element"); err != nil {
			return err
		}
	}
	return nil
}

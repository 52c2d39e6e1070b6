package definitions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
)

const minimal = `
id: simple
name: Simple
variables:
  - id: a
    name: A
    type: number
    default: 2
    validation:
      - type: min
        value: 0
        message: no negatives
formulas:
  - id: double
    name: Double
    expression: a * 2
`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestDecode(t *testing.T) {
	def, err := Decode([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, "simple", def.ID)
	require.Len(t, def.Variables, 1)
	assert.Equal(t, 2, def.Variables[0].DefaultValue)
	assert.Equal(t, entity.RuleMin, def.Variables[0].Validation[0].Type)
	assert.Equal(t, "a * 2", def.Formulas[0].Expression)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", "name: x\n"},
		{"unknown field", "id: x\ncolour: red\n"},
		{"duplicate ids", "id: x\nvariables:\n  - id: a\nformulas:\n  - id: a\n    expression: '1'\n"},
		{"not yaml", "id: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "simple.yaml", minimal)
	writeFile(t, dir, "other.yml", "id: another\nname: Another\n")
	writeFile(t, dir, "README.md", "not a definition")

	s, err := NewStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "another", list[0].ID)
	assert.Equal(t, "simple", list[1].ID)

	def, err := s.GetByID(ctx, "simple")
	require.NoError(t, err)
	require.NotNil(t, def)

	def, err = s.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "simple.yaml", minimal)
	s, err := NewStore(dir)
	require.NoError(t, err)

	writeFile(t, dir, "dup.yaml", minimal)
	require.Error(t, s.Reload())

	def, err := s.GetByID(context.Background(), "simple")
	require.NoError(t, err)
	assert.NotNil(t, def)
}

func TestStore_BundledDefinitions(t *testing.T) {
	s, err := NewStore(filepath.Join("..", "..", "..", "definitions"))
	require.NoError(t, err)

	def, err := s.GetByID(context.Background(), "interior-door")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.NotEmpty(t, def.Formulas)
}

package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPersonas(t *testing.T) {
	p := DefaultPersonas()
	assert.Equal(t, LibraryStaffPersona, p.For("jan@bibliotheekzout.nl"))
	assert.Equal(t, LibraryStaffPersona, p.For("Jan@BibliotheekZout.NL"))
	assert.Equal(t, LibraryStaffPersona, p.For("bieb@example.com"), "shared staff account")
	assert.Equal(t, LibraryStaffPersona, p.For("BIEB@gmail.com"))
	assert.Equal(t, DefaultPersona, p.For("biebkees@example.com"))
	assert.Equal(t, DefaultPersona, p.For("kees@bieb.nl"))
	assert.Equal(t, DefaultPersona, p.For("anita@example.com"))
	assert.Equal(t, DefaultPersona, p.For(""))
}

func TestLoadPersonas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - suffix: "@School.nl"
    prompt: "Je bent een geduldige leraar."
  - suffix: "@bibliotheekzout.nl"
    prompt: "Je bent een bibliothecaris."
  - local: "Balie"
    prompt: "Je helpt aan de balie."
`), 0o644))

	p, err := LoadPersonas(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPersona, p.Default, "missing default keeps the built-in one")
	assert.Equal(t, "Je bent een geduldige leraar.", p.For("kees@school.nl"))
	assert.Equal(t, "Je bent een bibliothecaris.", p.For("a@bibliotheekzout.nl"))
	assert.Equal(t, "Je helpt aan de balie.", p.For("balie@example.com"))
	assert.Equal(t, DefaultPersona, p.For("bieb@example.com"), "file rules replace the built-in ones")
}

func TestLoadPersonasErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPersonas(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules:\n  - suffix: \"@x.nl\"\n"), 0o644))
	_, err = LoadPersonas(bad)
	assert.ErrorContains(t, err, "prompt required")

	both := filepath.Join(dir, "both.yaml")
	require.NoError(t, os.WriteFile(both, []byte("rules:\n  - local: bieb\n    suffix: \"@x.nl\"\n    prompt: p\n"), 0o644))
	_, err = LoadPersonas(both)
	assert.ErrorContains(t, err, "exactly one of local and suffix")

	p, err := LoadPersonas("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPersonas(), p)
}

package endpoints

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_Resolve(t *testing.T) {
	c := NewStatic(map[string]Endpoint{
		"reporting": {URL: "https://api.example.com/graphql", Credential: "tok"},
	})

	ep := c.Resolve("reporting")
	require.Equal(t, "https://api.example.com/graphql", ep.URL)
	require.Equal(t, "tok", ep.Credential)

	require.Zero(t, c.Resolve("unknown"))
	require.Zero(t, (*Config)(nil).Resolve("reporting"))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	doc := `reporting:
  url: https://api.example.com/graphql
  credential: tok
public:
  url: https://public.example.com/graphql
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "tok", c.Resolve("reporting").Credential)
	require.Empty(t, c.Resolve("public").Credential)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerplaylists/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "config.toml", `
[spotify]
client_id = "id"
client_secret = "secret"
refresh_token = "rt"
requests_per_second = 2.5

[cache]
path = "state.db"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.Spotify.ClientID)
	assert.Equal(t, "rt", cfg.Spotify.RefreshToken)
	assert.Equal(t, 2.5, cfg.Spotify.RequestsPerSecond)
	assert.Equal(t, "state.db", cfg.Cache.Path)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5.0, cfg.Spotify.RequestsPerSecond)
	assert.Equal(t, "powerplaylists.db", cfg.Cache.Path)
}

func TestCreateConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, CreateConfigFile(path))

	// Refuses to overwrite.
	err := CreateConfigFile(path)
	assert.ErrorContains(t, err, "already exists")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Spotify.ClientID)
}

func TestLoadUserConfigsPreservesOrder(t *testing.T) {
	path := writeFile(t, "nodes.yaml", `
zulu_src:
  type: playlist
  uri: spotify:playlist:z
alpha_sort:
  type: sort
  input: zulu_src
  sort_key: name
out:
  type: output
  input: alpha_sort
  playlist_name: Sorted
  public: false
`)
	mapping, err := LoadUserConfigs([]string{path})
	require.NoError(t, err)
	require.Len(t, mapping, 3)

	// YAML definition order survives decoding.
	assert.Equal(t, "zulu_src", mapping[0].Name)
	assert.Equal(t, "alpha_sort", mapping[1].Name)
	assert.Equal(t, "out", mapping[2].Name)

	uri, ok := mapping[0].Fields.Get("uri")
	require.True(t, ok)
	assert.Equal(t, "spotify:playlist:z", uri)

	public, ok := mapping[2].Fields.Get("public")
	require.True(t, ok)
	assert.Equal(t, false, public)
}

func TestLoadUserConfigsNestedStructures(t *testing.T) {
	path := writeFile(t, "nodes.yaml", `
tmpl:
  type: dynamic_template
  template:
    "{g}_src":
      type: playlist
      uri: "{u}"
  instances:
    - g: rock
      u: spotify:playlist:r
`)
	mapping, err := LoadUserConfigs([]string{path})
	require.NoError(t, err)
	require.Len(t, mapping, 1)

	tmpl, ok := mapping[0].Fields.Get("template")
	require.True(t, ok)
	body, ok := tmpl.(model.Dict)
	require.True(t, ok, "nested mappings decode to ordered dicts, got %T", tmpl)
	require.Len(t, body, 1)
	assert.Equal(t, "{g}_src", body[0].Key)

	instances, ok := mapping[0].Fields.Get("instances")
	require.True(t, ok)
	list, ok := instances.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	_, ok = list[0].(model.Dict)
	assert.True(t, ok, "sequence elements that are mappings decode to dicts")
}

func TestLoadUserConfigsMergesFiles(t *testing.T) {
	first := writeFile(t, "a.yaml", "a:\n  type: liked_tracks\n")
	second := writeFile(t, "b.yaml", "b:\n  type: liked_tracks\n")
	mapping, err := LoadUserConfigs([]string{first, second})
	require.NoError(t, err)
	require.Len(t, mapping, 2)
	assert.Equal(t, "a", mapping[0].Name)
	assert.Equal(t, "b", mapping[1].Name)
}

func TestLoadUserConfigsRejectsDuplicates(t *testing.T) {
	first := writeFile(t, "a.yaml", "dup:\n  type: liked_tracks\n")
	second := writeFile(t, "b.yaml", "dup:\n  type: liked_tracks\n")
	_, err := LoadUserConfigs([]string{first, second})
	assert.ErrorContains(t, err, `node "dup" defined in both`)
}

func TestLoadUserConfigsRejectsNonMappingTop(t *testing.T) {
	path := writeFile(t, "a.yaml", "- just\n- a\n- list\n")
	_, err := LoadUserConfigs([]string{path})
	assert.ErrorContains(t, err, "top level must be a mapping")
}

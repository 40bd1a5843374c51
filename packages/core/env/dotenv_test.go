package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected map[string]string
	}{
		{"simple key-value", "API_KEY=secret123", map[string]string{"API_KEY": "secret123"}},
		{"multiple keys", "KEY1=value1\nKEY2=value2", map[string]string{"KEY1": "value1", "KEY2": "value2"}},
		{"double quoted value", `API_KEY="secret with spaces"`, map[string]string{"API_KEY": "secret with spaces"}},
		{"single quoted value", `API_KEY='secret with spaces'`, map[string]string{"API_KEY": "secret with spaces"}},
		{"mismatched quotes kept", `API_KEY="secret'`, map[string]string{"API_KEY": `"secret'`}},
		{"comments and blank lines", "# comment\n\nAPI_KEY=secret\n", map[string]string{"API_KEY": "secret"}},
		{"whitespace trimmed", "  API_KEY  =  secret  ", map[string]string{"API_KEY": "secret"}},
		{"export prefix", "export TOKEN=abc", map[string]string{"TOKEN": "abc"}},
		{"value with equals sign", "DSN=postgres://u:p@h/db?ssl=true", map[string]string{"DSN": "postgres://u:p@h/db?ssl=true"}},
		{"empty file", "", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := LoadDotEnv(writeEnvFile(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadDotEnv_Malformed(t *testing.T) {
	_, err := LoadDotEnv(writeEnvFile(t, "GOOD=1\nnot a pair\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2: expected KEY=value")
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	_, err := LoadDotEnv("/nonexistent/path/.env")
	assert.Error(t, err)
}

func TestLoadEnvironment(t *testing.T) {
	envs := map[string]map[string]any{
		"dev":  {"baseUrl": "http://localhost:8080", "retries": 2},
		"prod": {"baseUrl": "https://api.example.com"},
	}

	vars, err := LoadEnvironment("dev", envs)
	require.NoError(t, err)
	assert.Equal(t, 2, vars["retries"])

	empty, err := LoadEnvironment("", envs)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = LoadEnvironment("staging", envs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known: dev, prod")
}

func TestLoadSystemEnv(t *testing.T) {
	t.Setenv("HITFLOW_VAR_tenant", "acme")
	vars := LoadSystemEnv("HITFLOW_VAR_")
	assert.Equal(t, "acme", vars["tenant"])
}

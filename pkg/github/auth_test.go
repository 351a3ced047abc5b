package github

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveToken(t *testing.T) {
	restore := ghTokenOutput
	defer func() { ghTokenOutput = restore }()

	t.Run("gh CLI wins", func(t *testing.T) {
		ghTokenOutput = func() ([]byte, error) {
			return []byte("gho_clitoken\n"), nil
		}
		t.Setenv("GITHUB_TOKEN", "env_token")

		token, err := ResolveToken()
		require.NoError(t, err)
		assert.Equal(t, "gho_clitoken", token)
	})

	t.Run("falls back to environment", func(t *testing.T) {
		ghTokenOutput = func() ([]byte, error) {
			return nil, errors.New("gh: command not found")
		}
		t.Setenv("GITHUB_TOKEN", "env_token")

		token, err := ResolveToken()
		require.NoError(t, err)
		assert.Equal(t, "env_token", token)
	})

	t.Run("empty gh output is ignored", func(t *testing.T) {
		ghTokenOutput = func() ([]byte, error) {
			return []byte("\n"), nil
		}
		t.Setenv("GITHUB_TOKEN", "env_token")

		token, err := ResolveToken()
		require.NoError(t, err)
		assert.Equal(t, "env_token", token)
	})
}

package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/archive"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "digest-o-bot.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	s, err := Default()
	require.NoError(t, err)
	require.Equal(t, analysis.DefaultRetryPolicy(), s.RetryPolicy())
	require.Equal(t, analysis.DefaultMaxChunkBytes, s.ChunkOptions().MaxBytes)
	require.Equal(t, archive.DefaultOwnerName, s.FormatOptions().OwnerName)
	require.Equal(t, archive.DefaultEncoding, s.ExtractOptions().Encoding)
	require.Equal(t, analysis.DefaultPriceTable(), s.Models)

	mo, err := s.MergeOptions()
	require.NoError(t, err)
	require.Equal(t, archive.NewestFirst, mo.Direction)
	require.Equal(t, archive.DefaultShardPattern.String(), mo.Pattern.String())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeTOML(t, `
model = "qwen/qwen-turbo"

[archive]
owner_name = "Андрей"
direction = "oldest-first"

[analysis]
chunk_bytes = 300000
min_interval = "2s"

[retry]
max_attempts = 3
delay = "10ms"

[[models]]
id = "qwen/qwen-turbo"
name = "Qwen Turbo"
input_price = 0.05
output_price = 0.2
`)
	t.Setenv("DIGEST_RETRY__MAX_ATTEMPTS", "7")
	t.Setenv("DIGEST_PROVIDER__API_KEY", "sk-env")

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "qwen/qwen-turbo", s.Model)
	require.Equal(t, "Андрей", s.Archive.OwnerName)
	require.Equal(t, 300000, s.Analysis.ChunkBytes)
	require.Equal(t, 2*time.Second, s.Analysis.MinInterval)
	require.Equal(t, analysis.RetryPolicy{MaxAttempts: 7, Delay: 10 * time.Millisecond, RequestTimeout: 5 * time.Minute}, s.RetryPolicy())
	require.Equal(t, "sk-env", s.APIKey())
	require.Len(t, s.Models, 1)
	require.Equal(t, 0.2, s.Models[0].OutputPrice)

	mo, err := s.MergeOptions()
	require.NoError(t, err)
	require.Equal(t, archive.OldestFirst, mo.Direction)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"chunk":     "[analysis]\nchunk_bytes = 0\n",
		"direction": "[archive]\ndirection = \"sideways\"\n",
		"pattern":   "[archive]\nshard_pattern = \"(\"\n",
		"model id":  "[[models]]\nname = \"x\"\n",
	} {
		_, err := Load(writeTOML(t, body))
		require.Error(t, err, name)
	}
}

func TestAPIKey_Fallbacks(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	var s Settings
	require.Equal(t, "sk-openai", s.APIKey())

	t.Setenv("OPENROUTER_API_KEY", "sk-router")
	require.Equal(t, "sk-router", s.APIKey())

	s.Provider.APIKey = "sk-file"
	require.Equal(t, "sk-file", s.APIKey())
	require.Equal(t, "sk-flag", s.ProviderConfig("sk-flag").APIKey)
}

func TestEnvKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "retry.request_timeout", envKey("DIGEST_RETRY__REQUEST_TIMEOUT"))
	require.Equal(t, "model", envKey("DIGEST_MODEL"))
}

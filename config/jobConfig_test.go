package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearJobEnv(t *testing.T) {
	for _, k := range []string{
		"SSCC_PREFIX", "SSCC_EXTENSION_DIGIT", "SSCC_TX_TIMEOUT", "INSERT_CHUNK_SIZE",
		"RUN_LOCK_TTL", "CRM_URL", "REPORT_DIR", "REPORT_BUCKET", "CODE_REQUEST_TOPIC",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadJobConfig_Defaults(t *testing.T) {
	clearJobEnv(t)
	cfg, err := LoadJobConfig("")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 5}, cfg.Levels)
	assert.Equal(t, 1000, cfg.InsertChunkSize)
	assert.Equal(t, "89041349", cfg.SSCC.Prefix)
	assert.Equal(t, 3, cfg.SSCC.ExtensionDigit)
	assert.Equal(t, 10*time.Minute, cfg.SSCC.TxTimeout)
}

func TestLoadJobConfig_FileThenEnv(t *testing.T) {
	clearJobEnv(t)
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
levels: [1, 2]
insert_chunk_size: 500
sscc:
  prefix: "12345678"
  tx_timeout: 2m
notify:
  topic: code-requests
`), 0o600))
	t.Setenv("INSERT_CHUNK_SIZE", "250")

	cfg, err := LoadJobConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, cfg.Levels)
	assert.Equal(t, 250, cfg.InsertChunkSize)
	assert.Equal(t, "12345678", cfg.SSCC.Prefix)
	assert.Equal(t, 3, cfg.SSCC.ExtensionDigit)
	assert.Equal(t, 2*time.Minute, cfg.SSCC.TxTimeout)
	assert.Equal(t, "code-requests", cfg.Notify.Topic)
}

func TestLoadJobConfig_Invalid(t *testing.T) {
	clearJobEnv(t)

	t.Setenv("SSCC_PREFIX", "89A41349")
	_, err := LoadJobConfig("")
	assert.Error(t, err)

	t.Setenv("SSCC_PREFIX", "")
	t.Setenv("INSERT_CHUNK_SIZE", "0")
	_, err = LoadJobConfig("")
	assert.Error(t, err)

	t.Setenv("INSERT_CHUNK_SIZE", "")
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("levels: [4]\n"), 0o600))
	_, err = LoadJobConfig(path)
	assert.Error(t, err)
}

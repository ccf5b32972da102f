package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("MASTER_SECRET", "01234567890123456789012345678901")
	for _, k := range []string{"HLS_ROOT", "UPLOAD_ROOT", "DB_URL", "KV_ADDR", "STORE_BACKEND", "TOKEN_TTL_ACCESS_MIN"} {
		t.Setenv(k, "")
	}

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "./data/hls", c.HLSRoot)
	require.Equal(t, "local", c.StoreBackend)
	require.Equal(t, int(30*60*1e9), int(c.TokenTTLAccess))
}

func TestLoadRejectsShortMasterSecret(t *testing.T) {
	t.Setenv("MASTER_SECRET", "tooshort")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidIntEnv(t *testing.T) {
	t.Setenv("MASTER_SECRET", "01234567890123456789012345678901")
	t.Setenv("REAPER_INTERVAL_S", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("MASTER_SECRET", "01234567890123456789012345678901")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("STORE_BACKEND", "s3")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", c.HTTPPort)
	require.Equal(t, "s3", c.StoreBackend)
}

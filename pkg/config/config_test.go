package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFillsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, `
node:
  id: manager-a
  bind_addr: 10.0.0.1:7000
  data_dir: /var/lib/backendai
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "manager-a", cfg.Node.ID)
	require.Equal(t, "memory", cfg.StateStore.Backend)
	require.Equal(t, 2*time.Second, cfg.Scheduler.TickInterval)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRedisBackendRequiresAddrOrSentinel(t *testing.T) {
	path := writeConfig(t, `
node:
  id: manager-a
  bind_addr: 10.0.0.1:7000
  data_dir: /var/lib/backendai
state_store:
  backend: redis
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRedisBackendAccepted(t *testing.T) {
	path := writeConfig(t, `
node:
  id: manager-a
  bind_addr: 10.0.0.1:7000
  data_dir: /var/lib/backendai
state_store:
  backend: redis
  redis:
    addr: redis:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis:6379", cfg.StateStore.Redis.Addr)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
node:
  id: manager-a
  bind_addr: 10.0.0.1:7000
  data_dir: /var/lib/backendai
state_store:
  backend: etcd
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsZeroTickInterval(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.TickInterval = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresNodeFields(t *testing.T) {
	cfg := Default()
	cfg.Node.ID = ""
	require.Error(t, cfg.Validate())
}

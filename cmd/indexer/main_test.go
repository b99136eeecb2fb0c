package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardano-chain-indexer/indexer/model"
)

func writeConfig(t *testing.T, body map[string]any) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")

	data, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"backend": "gouroboros",
		"gouroboros": map[string]any{
			"network_magic": 764824073,
			"node_address":  "localhost:3001",
		},
	})

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "gouroboros", cfg.Backend)
	require.Equal(t, ".", cfg.DataDir)
	require.Equal(t, 100, cfg.MailboxCapacity)
	require.Equal(t, 2000, cfg.RestartDelayMS)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Greater(t, cfg.GardenerThrottleSeconds, 0)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, map[string]any{"backend": "carrier-pigeon"})

	_, err := loadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadConfigHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"backend":                   "ogmios",
		"ogmios":                    map[string]any{"url": "ws://localhost:1337"},
		"data_dir":                  "/var/lib/indexer",
		"mailbox_capacity":          64,
		"restart_delay_ms":          500,
		"gardener_throttle_seconds": 30,
		"http_addr":                 ":9090",
	})

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:1337", cfg.Ogmios.URL)
	require.Equal(t, "/var/lib/indexer", cfg.DataDir)
	require.Equal(t, 64, cfg.MailboxCapacity)
	require.Equal(t, 500, cfg.RestartDelayMS)
	require.Equal(t, 30, cfg.GardenerThrottleSeconds)
	require.Equal(t, ":9090", cfg.HTTPAddr)
}

func TestInputManagement(t *testing.T) {
	mgmt, err := inputManagement("")
	require.NoError(t, err)
	require.Equal(t, model.MarkSpentInputs, mgmt)

	mgmt, err = inputManagement("mark")
	require.NoError(t, err)
	require.Equal(t, model.MarkSpentInputs, mgmt)

	mgmt, err = inputManagement("remove")
	require.NoError(t, err)
	require.Equal(t, model.RemoveSpentInputs, mgmt)

	_, err = inputManagement("delete-immediately")
	require.Error(t, err)
}

func TestConfigSummary(t *testing.T) {
	gouroboros := config{Backend: "gouroboros"}
	gouroboros.Gouroboros.NetworkMagic = 764824073
	gouroboros.Gouroboros.NodeAddress = "localhost:3001"
	require.Contains(t, configSummary(gouroboros), "gouroboros")

	ogmios := config{Backend: "ogmios"}
	ogmios.Ogmios.URL = "ws://localhost:1337"
	require.Contains(t, configSummary(ogmios), "ogmios")
}

func TestTaggedErr(t *testing.T) {
	require.NoError(t, taggedErr("consumer", nil))

	err := taggedErr("consumer", errors.New("boom"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "consumer")
	require.Contains(t, err.Error(), "boom")
}

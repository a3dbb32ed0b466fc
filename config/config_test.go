package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LanXuage/gzmap/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gzmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
target_port: 443
targets:
  - 192.0.2.0/24
`))
	require.NoError(t, err)

	assert.Equal(t, "mptcp_synscan", cfg.Module)
	assert.Equal(t, []string{"192.0.2.0/24"}, cfg.Targets)
	assert.Equal(t, uint16(32768), cfg.SourcePorts.First)
	assert.Equal(t, uint16(61000), cfg.SourcePorts.Last)
	assert.Equal(t, 1, cfg.Probes)
	assert.Equal(t, 10000, cfg.Send.Rate)
	assert.Equal(t, 1, cfg.Send.Workers)
	assert.Equal(t, 8*time.Second, cfg.Limits.Cooldown)
	assert.Equal(t, 0.05, cfg.Status.DropWarnRatio)
	assert.Equal(t, 0.01, cfg.Status.FailWarnRatio)
	assert.Equal(t, "-", cfg.Output)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
target_port: 80
source_ports:
  first: 40000
  last: 40010
probes: 3
send:
  rate: 500
  workers: 4
limits:
  max_results: 100
  max_runtime: 1m
  cooldown: 2s
status:
  quiet: true
  updates_file: status.csv
network:
  source_ip: 10.0.0.1
  gateway_mac: "02:00:00:00:00:01"
seed: "00112233"
`))
	require.NoError(t, err)

	pc := cfg.ProbeConfig()
	assert.Equal(t, uint16(80), pc.TargetPort)
	assert.Equal(t, 11, pc.NumSourcePorts())
	assert.Equal(t, 3, pc.PacketStreams)

	mc := cfg.MonitorConfig()
	assert.Equal(t, time.Minute, mc.MaxRuntime)
	assert.Equal(t, 2*time.Second, mc.Cooldown)
	assert.Equal(t, uint64(100), mc.MaxResults)
	assert.True(t, mc.Quiet)
	assert.Equal(t, "status.csv", mc.StatusUpdatesFile)

	sc := cfg.SenderConfig()
	assert.Equal(t, 500, sc.Rate)
	assert.Equal(t, 4, sc.Workers)

	seed, err := cfg.SeedBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33}, seed)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"missing port":       "probes: 1\n",
		"too many probes":    "target_port: 80\nsource_ports: {first: 100, last: 101}\nprobes: 3\n",
		"inverted range":     "target_port: 80\nsource_ports: {first: 200, last: 100}\n",
		"bad source ip":      "target_port: 80\nnetwork: {source_ip: 'fe80::1'}\n",
		"bad gateway mac":    "target_port: 80\nnetwork: {gateway_mac: 'nope'}\n",
		"bad seed":           "target_port: 80\nseed: xyz\n",
		"negative rate":      "target_port: 80\nsend: {rate: -1}\n",
		"not yaml":           "target_port: [\n",
		"negative cooldown":  "target_port: 80\nlimits: {cooldown: -1s}\n",
		"unknown port value": "target_port: http\n",
	} {
		_, err := config.Load(writeConfig(t, data))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Error(t, cfg.Validate(), "target port has no default")
	cfg.TargetPort = 443
	assert.NoError(t, cfg.Validate())
	seed, err := cfg.SeedBytes()
	assert.NoError(t, err)
	assert.Nil(t, seed)
}

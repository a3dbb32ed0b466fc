// Package config loads the scan configuration from YAML. Command line flags
// are applied on top of the loaded values before Validate runs.
package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/LanXuage/gzmap/common/constant"
	"github.com/LanXuage/gzmap/core/mptcp"
	"github.com/LanXuage/gzmap/monitor"
	"github.com/LanXuage/gzmap/probe"
	"github.com/LanXuage/gzmap/sender"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Module      string        `yaml:"module"`
	Targets     []string      `yaml:"targets"`
	TargetPort  uint16        `yaml:"target_port"`
	SourcePorts PortRange     `yaml:"source_ports"`
	Probes      int           `yaml:"probes"`
	Network     NetworkConfig `yaml:"network"`
	Send        SendConfig    `yaml:"send"`
	Limits      LimitsConfig  `yaml:"limits"`
	Status      StatusConfig  `yaml:"status"`
	Output      string        `yaml:"output"`
	OutputAll   bool          `yaml:"output_all"`
	Metrics     MetricsConfig `yaml:"metrics"`
	// Seed is hex; empty draws a random one per scan.
	Seed string `yaml:"seed"`
}

type PortRange struct {
	First uint16 `yaml:"first"`
	Last  uint16 `yaml:"last"`
}

type NetworkConfig struct {
	Interface  string `yaml:"interface"`
	SourceIP   string `yaml:"source_ip"`
	GatewayMAC string `yaml:"gateway_mac"`
}

type SendConfig struct {
	Rate    int `yaml:"rate"`
	Workers int `yaml:"workers"`
}

type LimitsConfig struct {
	MaxTargets uint64        `yaml:"max_targets"`
	MaxResults uint64        `yaml:"max_results"`
	MaxRuntime time.Duration `yaml:"max_runtime"`
	Cooldown   time.Duration `yaml:"cooldown"`
}

type StatusConfig struct {
	Quiet         bool    `yaml:"quiet"`
	UpdatesFile   string  `yaml:"updates_file"`
	DropWarnRatio float64 `yaml:"drop_warn_ratio"`
	FailWarnRatio float64 `yaml:"fail_warn_ratio"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Module == "" {
		c.Module = mptcp.Name
	}
	if c.SourcePorts.First == 0 && c.SourcePorts.Last == 0 {
		c.SourcePorts.First = constant.SourcePortFirst
		c.SourcePorts.Last = constant.SourcePortLast
	}
	if c.Probes == 0 {
		c.Probes = constant.DefaultProbes
	}
	if c.Send.Rate == 0 {
		c.Send.Rate = constant.DefaultRate
	}
	if c.Send.Workers == 0 {
		c.Send.Workers = constant.DefaultSendWorkers
	}
	if c.Limits.Cooldown == 0 {
		c.Limits.Cooldown = constant.DefaultCooldown
	}
	if c.Status.DropWarnRatio == 0 {
		c.Status.DropWarnRatio = constant.DropWarnRatio
	}
	if c.Status.FailWarnRatio == 0 {
		c.Status.FailWarnRatio = constant.FailWarnRatio
	}
	if c.Output == "" {
		c.Output = "-"
	}
}

// Validate checks the values that can be checked without touching the
// network. Targets are optional so that commands other than scan can share
// the configuration.
func (c *Config) Validate() error {
	if c.TargetPort == 0 {
		return fmt.Errorf("config: target_port is required")
	}
	pc := c.ProbeConfig()
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Send.Rate < 0 {
		return fmt.Errorf("config: send.rate must not be negative")
	}
	if c.Send.Workers < 0 {
		return fmt.Errorf("config: send.workers must not be negative")
	}
	if c.Limits.MaxRuntime < 0 || c.Limits.Cooldown < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	if c.Network.SourceIP != "" {
		addr, err := netip.ParseAddr(c.Network.SourceIP)
		if err != nil || !addr.Is4() {
			return fmt.Errorf("config: network.source_ip %q is not an IPv4 address", c.Network.SourceIP)
		}
	}
	if c.Network.GatewayMAC != "" {
		if _, err := net.ParseMAC(c.Network.GatewayMAC); err != nil {
			return fmt.Errorf("config: network.gateway_mac: %w", err)
		}
	}
	if _, err := c.SeedBytes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) ProbeConfig() probe.Config {
	return probe.Config{
		TargetPort:      c.TargetPort,
		SourcePortFirst: c.SourcePorts.First,
		SourcePortLast:  c.SourcePorts.Last,
		PacketStreams:   c.Probes,
	}
}

// MonitorConfig leaves AppSuccess to the caller, who knows the module.
func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		MaxResults:        c.Limits.MaxResults,
		MaxRuntime:        c.Limits.MaxRuntime,
		Cooldown:          c.Limits.Cooldown,
		Quiet:             c.Status.Quiet,
		StatusUpdatesFile: c.Status.UpdatesFile,
		DropWarnRatio:     c.Status.DropWarnRatio,
		FailWarnRatio:     c.Status.FailWarnRatio,
	}
}

// SenderConfig fills everything but the addresses resolved at runtime.
func (c *Config) SenderConfig() sender.Config {
	return sender.Config{
		Workers: c.Send.Workers,
		Rate:    c.Send.Rate,
	}
}

// SeedBytes decodes Seed, returning nil when it is empty.
func (c *Config) SeedBytes() ([]byte, error) {
	if c.Seed == "" {
		return nil, nil
	}
	seed, err := hex.DecodeString(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("config: seed must be hex: %w", err)
	}
	return seed, nil
}

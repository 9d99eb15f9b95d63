package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and overlays it on the defaults. A
// missing path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Session.DefaultAgentID == "" {
		c.Session.DefaultAgentID = "main"
	}
	if c.Session.MaxHistory <= 0 {
		c.Session.MaxHistory = 200
	}
	if c.Tools.Execution.Parallelism <= 0 {
		c.Tools.Execution.Parallelism = 4
	}
	if c.Tools.Execution.Timeout <= 0 {
		c.Tools.Execution.Timeout = 30 * time.Second
	}
	if c.Tools.Cache.Size <= 0 {
		c.Tools.Cache.Size = 128
	}
	if c.Tools.Cache.TTL <= 0 {
		c.Tools.Cache.TTL = 5 * time.Minute
	}
}

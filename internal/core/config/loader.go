package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML config, fills defaults, applies AQUANET_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{DB: Database{Enabled: true}}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errs[0]
	}
	return &cfg, nil
}

// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"encoding/hex"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/carp/fingerprint"
)

// A config carries the optional settings file for the carp tool.
//
// The file is TOML, for example:
//
//	[endpoints]
//	chat = "https://chat.example.com/room/5"
//
//	[[pins]]
//	host = "chat.example.com"
//	port = 443
//	algo = "sha2-256"
//	digest = "9f86d081884c7d65..."
type config struct {
	Endpoints map[string]string `toml:"endpoints"`
	Pins      []pin             `toml:"pins"`
}

// A pin is a known peer certificate fingerprint, hex encoded.
type pin struct {
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	Algo   string `toml:"algo"`
	Digest string `toml:"digest"`
}

// loadConfig reads the configuration from path. An empty path yields an
// empty configuration without error.
func loadConfig(path string) (*config, error) {
	var cfg config
	if path == "" {
		return &cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for i, p := range cfg.Pins {
		if _, err := hex.DecodeString(p.Digest); err != nil {
			return nil, fmt.Errorf("config pin %d: invalid digest: %w", i+1, err)
		}
	}
	return &cfg, nil
}

// resolveEndpoint maps an endpoint alias through the configuration, passing
// unrecognized names through unchanged.
func (c *config) resolveEndpoint(name string) string {
	if ep, ok := c.Endpoints[name]; ok {
		return ep
	}
	return name
}

// pinTable converts the configured pins into a fingerprint table.
func (c *config) pinTable() *fingerprint.Table {
	t := fingerprint.NewTable()
	for _, p := range c.Pins {
		digest, err := hex.DecodeString(p.Digest)
		if err != nil {
			continue // validated at load; unreachable
		}
		t.Set(fingerprint.Peer{Host: p.Host, Port: p.Port},
			fingerprint.Fingerprint{Algo: p.Algo, Digest: digest})
	}
	return t
}

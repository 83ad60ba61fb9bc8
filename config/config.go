// Package config persists the host's server configuration — the network
// bind address, ALPN tag, and a blake3-hashed admin password — as
// config.json under the user's config directory (§6 "Persisted state").
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package config

import (
	"encoding/hex"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"lukechampine.com/blake3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the persisted server configuration.
type Config struct {
	BindAddr            string `json:"bind_addr"`
	ALPN                string `json:"alpn"`
	AdminPasswordBlake3 string `json:"admin_password_blake3,omitempty"`
}

// Default returns the configuration a fresh `serve` invocation starts from.
func Default() Config {
	return Config{
		BindAddr: "0.0.0.0:0",
		ALPN:     "kerr/0",
	}
}

// HashPassword returns the hex-encoded blake3 digest of password, the form
// persisted in config.json so the plaintext is never written to disk.
func HashPassword(password string) string {
	sum := blake3.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword reports whether password hashes to the stored digest.
func (c Config) VerifyPassword(password string) bool {
	return c.AdminPasswordBlake3 != "" && c.AdminPasswordBlake3 == HashPassword(password)
}

// Path returns the location config.json is persisted at.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "kerr", "config.json"), nil
}

// Load reads config.json, returning Default() if it does not yet exist.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, errors.Wrap(err, "read config.json")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config.json")
	}
	return cfg, nil
}

// Save persists cfg to config.json, creating parent directories.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Package config provides user configuration management for dosctl.
//
// This package manages a YAML-based configuration file holding discovery
// preferences (service type, port, product families, settle window, retry
// policy), the HTTP API listen address and device aliases. Durations are
// written as strings such as "500ms". Missing values fall back to defaults.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/dosctl/config.yaml or $HOME/.config/dosctl/config.yaml
//   - macOS: $HOME/.config/dosctl/config.yaml
//   - Windows: %LOCALAPPDATA%\dosctl\config.yaml
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session := discovery.NewSession(cfg.Discovery.SessionOptions())
//
//	cfg.Aliases["kitchen"] = "192.168.1.31"
//	if err := cfg.Save(""); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// Save is serialized by a package mutex and writes through a temporary file.
package config

// Package config loads marquee's settings.
//
// # Resolution order
//
//  1. Built-in defaults
//  2. The TOML file (explicit path, or ~/.config/marquee/config.toml)
//  3. Environment variables (MARQUEE_*), optionally seeded from a .env file
//     via LoadDotEnv
//  4. Command-line flags, applied by the caller
//
// A missing config file is not an error. Empty values in the file keep the
// default.
//
// # TOML format
//
//	api_base_url = "http://localhost:3000"
//	request_timeout = "10s"
//	page_size = 12
//	state_dir = "~/.local/state/marquee"
//	log_level = "info"
//	revalidate_every = "1m"
//
// Durations use Go duration syntax. Tilde paths are expanded.
//
// # Derived paths
//
//   - Session store: <state_dir>/session
//   - Client log: <state_dir>/marquee.log
package config

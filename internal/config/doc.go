// Package config loads and validates runtime configuration for arena.
//
// Configuration is read from `config/config.yaml` (optional), overridden by
// ARENA_* environment variables (`server.port` -> `ARENA_SERVER_PORT`) and
// finally by command-line flags. See `internal/config/config.go` for keys.
package config

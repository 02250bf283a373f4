// Package config loads runtime configuration for the chatrelay terminal
// client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   host:port of the relay server's HTTP surface
//	-t int      dial and request timeout (seconds)
//
// # JSON schema
//
// Timeouts use timex.Duration, so values can be strings like "5s" or integer
// nanoseconds:
//
//	{
//	  "server_addr": "127.0.0.1:8080",
//	  "timeout": "5s"
//	}
package config

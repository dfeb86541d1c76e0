// Package config loads runtime configuration for the comicsync REPL client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the library server
//	-d string   local replica database path
//	-i int      online status check interval (seconds)
//	-l string   log file path
//
// # JSON schema
//
// Durations are timex.Duration values, either strings like "3s" or integer
// nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "database_path": "comicsync.db",
//	  "log_file": "comicsync.log",
//	  "online_check_interval": "3s",
//	  "pull_page_size": 100,
//	  "push_concurrency": 4,
//	  "retry_base_delay": "2s",
//	  "retry_max_delay": "1m",
//	  "retry_max_attempts": 5,
//	  "auto_apply_after": "10s"
//	}
package config

// Package config loads reel's TOML configuration.
//
// # Resolution
//
//  1. An explicit path (the --config flag) wins
//  2. Otherwise ~/.config/reel/config.toml is used
//  3. A missing file yields Default()
//  4. Fields absent from the file keep their defaults
//
// Durations are Go duration strings ("2s", "500ms"). Paths beginning with
// "~" are expanded against the user's home directory.
//
// # Example
//
//	api_base_url = "https://clips.example.com"
//	ws_url = "wss://clips.example.com/ws"   # derived from api_base_url when empty
//	max_reconnect_attempts = 5
//	reconnect_base_delay = "1s"
//	poll_interval = "2s"
//	log_level = "info"
//
//	[features]
//	live_updates = true
//
// # Validation
//
// Load validates the result with go-playground/validator and rejects
// non-http(s) API URLs and non-ws(s) WebSocket URLs. Errors name the
// offending field.
package config

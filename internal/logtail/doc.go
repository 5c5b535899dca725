// Package logtail reads the tail of reel's own log file.
//
// When log_file is configured the dashboard writes its logs there instead
// of the terminal. `reel logs` uses Read to show the most recent entries,
// optionally filtered by level.
package logtail

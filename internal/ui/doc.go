// Package ui renders the reel dashboard with Bubble Tea.
//
// The model only reads state.Graph snapshots and forwards key presses to
// store actions; it never talks to the backend directly. Store changes
// arrive through a single-slot channel so bursts collapse into one redraw.
package ui

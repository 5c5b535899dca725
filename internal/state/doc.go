// Package state holds reel's client-side reactive state.
//
// # Overview
//
// Three stores split the state by concern:
//
//   - UIStore: navigation step, selected intent, notifications, loading
//     indicator, language and theme
//   - VideoStore: the current video, upload progress and the processing job
//   - AppStore: connection state, queue statistics, agents and feature flags
//
// A Manager composes them, wires the cross-store rules and exposes the
// multi-store actions the dashboard and CLI call.
//
// # Store
//
// Store[S] is a generic observable container. Writers pass a mutator to
// SetState; readers take shallow copies with Snapshot:
//
//	store.SetState(func(s *VideoState) {
//		s.JobID = "job-1"
//		s.IsProcessing = true
//	})
//
// A mutator edits only the fields it names and must replace slices and maps
// instead of editing them in place, since previous snapshots share their
// backing arrays.
//
// Every SetState produces exactly one notification carrying (next, prev).
// Listeners run in registration order on the goroutine that called
// SetState, outside the store's lock. A listener that panics is logged and
// skipped. A SetState issued from inside a listener is queued and delivered
// after the current pass, so listeners always observe changes in order.
//
// # Persistence
//
// Stores that own preferences take a Persistence[S]. Restore runs once at
// construction; Persist runs after every change. The UI store persists
// language and theme, the app store persists feature flags, each to its own
// prefs namespace. Missing or corrupt files fall back to defaults.
//
// # Cross-store rules
//
// Rules are declared as Rule values with a When predicate over (prev, next)
// and a Then action:
//
//	Watch(video.Store, Rule[VideoState]{
//		Name: "processing-started",
//		When: Became(func(s VideoState) bool { return s.IsProcessing }, true),
//		Then: func(_, _ VideoState) { ui.SetLoading(true, "") },
//	})
//
// Rules registered by the Manager only ever mutate stores other than the
// one they watch, so a rule cannot re-trigger its own transition.
//
// # Navigation
//
// Steps progress intent → upload → processing → results. SetCurrentStep
// pushes the step being left onto a history bounded to ten entries; GoBack
// pops it. Manager.BackToIntent resets the video store and the UI session
// from any step.
package state

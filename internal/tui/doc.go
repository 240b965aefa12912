// Package tui implements the full-screen live view behind `dosctl watch`.
//
// Built on Bubble Tea, the watch screen subscribes to a discovery session's
// group stream and redraws as groups are confirmed. It follows the Elm
// architecture: the model is a value, Update returns the next model and the
// commands that wait on the stream or query a leader.
//
// # Stream Handling
//
// A probe failure ends every subscription of a session while discovery keeps
// running. The watch screen records the failure, waits ResubscribeDelay and
// subscribes again; the new subscription replays the groups already known.
// When the session itself closes the screen quits.
//
// # Usage Example
//
//	session := discovery.NewSession(opts)
//	if err := session.Start(ctx); err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	model := tui.NewWatchModel(ctx, session, nil)
//	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
//	    return err
//	}
//
// # Key Bindings
//
//   - ↑/↓ (k/j): select a group
//   - enter: fetch the playback state of the selected group from its leader
//   - d: switch between the group view and a flat device table
//   - r: subscribe again now
//   - q, esc: quit
package tui

// Package ui provides terminal output components for the dosctl CLI.
//
// Components render with Lipgloss and follow a "print once and exit" pattern.
// The interactive live view lives in the tui package.
//
// # Components
//
//   - Header: command banner showing the operation and its parameters
//   - Result: success, failure or warning box with details and troubleshooting
//   - Group and device tables: one box per speaker group, or a flat device list
//   - Confirmation: warning box with a typed-phrase prompt for destructive commands
//
// Commands print through a Printer so output can be captured in tests:
//
//	p := ui.NewPrinter(cmd.OutOrStdout())
//	p.PrintHeader("Speaker Groups", "dosctl groups", params)
//	groups, err := session.Groups(ctx)
//	if err != nil {
//	    p.PrintError("Discovery failed", err, nil)
//	    return err
//	}
//	p.PrintGroups(groups)
//
// # Logging Integration
//
// Logging is controlled via the DOSCTL_LOG_LEVEL environment variable. When it
// is unset, zap logging is silent so the curated output is displayed cleanly.
package ui

// Package logging provides structured logging for dosctl.
//
// This package wraps a global zap logger with convenience functions used
// throughout discovery, the device client and the local API server.
//
// # Log Levels
//
//   - Debug: announcements seen, filter verdicts, successful probes
//   - Info: session lifecycle, HTTP requests served
//   - Warn: failed probes (the candidate is dropped), slow stream subscribers
//   - Error: startup failures
//
// # Configuration
//
// Logging is silent unless a level is given, either with --log-level or
// through the DOSCTL_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize(level); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr in console format so that command output on stdout
// stays machine readable.
package logging

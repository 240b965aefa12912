// Package urls holds the documentation links printed by the CLI and the
// terminal UI, so they can be updated in one place before a release.
//
// Usage:
//
//	import "github.com/muurk/dosctl/internal/urls"
//
//	fmt.Printf("See %s\n", urls.Troubleshooting)
package urls

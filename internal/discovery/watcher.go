package discovery

import (
	"context"
	"fmt"

	"github.com/muurk/dosctl/internal/logging"
)

// DefaultFamilies are the host name prefixes of DOS products
var DefaultFamilies = []string{"Phantom", "Arch", "Dialog"}

// Watcher turns a Source into a stream of candidate appearances and
// disappearances
type Watcher struct {
	source  Source
	filters []Filter
}

// NewWatcher creates a watcher. Filters apply to Up events only.
func NewWatcher(source Source, filters ...Filter) *Watcher {
	return &Watcher{source: source, filters: filters}
}

// Watch starts browsing and returns the filtered event stream. The stream is
// closed only when ctx is cancelled. Each call starts a new browse.
func (w *Watcher) Watch(ctx context.Context) (<-chan Announcement, error) {
	raw := make(chan Announcement)
	if err := w.source.Browse(ctx, raw); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	out := make(chan Announcement)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case a, ok := <-raw:
				if !ok {
					// Source gave up; keep the stream open until ctx is done
					raw = nil
					continue
				}
				if a.Kind == Up && !accept(a, w.filters) {
					logging.LogAnnouncement(a.Kind.String(), a.Name, a.Host, a.Port, "ignored")
					continue
				}
				logging.LogAnnouncement(a.Kind.String(), a.Name, a.Host, a.Port, "candidate")
				select {
				case out <- a:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

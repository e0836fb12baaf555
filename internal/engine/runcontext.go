package engine

import (
	"context"
	"sync"
	"time"

	"powerplaylists/internal/provider"
	"powerplaylists/internal/track"
)

// RunContext carries the per-run collaborators every transformation may
// need: the remote provider, the clock, and run-scoped caches. It lives
// for exactly one evaluation pass.
type RunContext struct {
	Provider provider.Provider

	// Now is the evaluation clock; relative time filters resolve against
	// it. Defaults to time.Now.
	Now func() time.Time

	likedOnce sync.Once
	likedIDs  map[string]struct{}
	likedErr  error

	mu        sync.Mutex
	playlists map[string]*playlistFetch
}

type playlistFetch struct {
	once   sync.Once
	tracks track.Set
	err    error
}

// NewRunContext returns a run context backed by the given provider. A nil
// clock defaults to time.Now.
func NewRunContext(p provider.Provider, now func() time.Time) *RunContext {
	if now == nil {
		now = time.Now
	}
	return &RunContext{
		Provider:  p,
		Now:       now,
		playlists: make(map[string]*playlistFetch),
	}
}

// LikedIDs returns the set of liked track IDs, fetched at most once per
// run regardless of how many nodes consult it.
func (rc *RunContext) LikedIDs(ctx context.Context) (map[string]struct{}, error) {
	rc.likedOnce.Do(func() {
		liked, err := rc.Provider.FetchLikedTracks(ctx)
		if err != nil {
			rc.likedErr = err
			return
		}
		rc.likedIDs = make(map[string]struct{}, len(liked))
		for _, t := range liked {
			rc.likedIDs[t.ID] = struct{}{}
		}
	})
	return rc.likedIDs, rc.likedErr
}

// FetchPlaylist fetches a playlist's tracks, memoized per URI for the
// run so several source nodes reading the same playlist cost one call.
func (rc *RunContext) FetchPlaylist(ctx context.Context, uri string) (track.Set, error) {
	rc.mu.Lock()
	entry, ok := rc.playlists[uri]
	if !ok {
		entry = &playlistFetch{}
		rc.playlists[uri] = entry
	}
	rc.mu.Unlock()

	entry.once.Do(func() {
		entry.tracks, entry.err = rc.Provider.FetchPlaylistTracks(ctx, uri)
	})
	return entry.tracks, entry.err
}

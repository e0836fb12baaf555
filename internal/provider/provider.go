// Package provider defines the narrow capability interface the engine
// consumes from the remote playlist/track backend, together with the
// transient/permanent error taxonomy callers use to decide on retries.
package provider

import (
	"context"
	"errors"
	"fmt"

	"powerplaylists/internal/track"
)

// GeneratedDescription marks playlists created by this tool. Sources that
// aggregate the whole library use it to exclude generated playlists.
const GeneratedDescription = "Auto-generated playlist, managed by powerplaylists."

// PlaylistHandle identifies a remote playlist for mutation calls.
type PlaylistHandle struct {
	ID   string
	Name string
}

// Provider is the remote backend. Implementations handle pagination,
// authentication and pacing internally; every call returns a complete
// result or an error from the taxonomy below.
type Provider interface {
	// FetchPlaylistTracks returns the full ordered track list of the
	// playlist identified by uri.
	FetchPlaylistTracks(ctx context.Context, uri string) (track.Set, error)

	// FetchLikedTracks returns the user's saved tracks.
	FetchLikedTracks(ctx context.Context) (track.Set, error)

	// FetchAllLibraryTracks returns the saved tracks plus the tracks of
	// every playlist in the user's library. Playlists carrying the
	// generated-by marker are skipped unless includeGenerated is set.
	FetchAllLibraryTracks(ctx context.Context, includeGenerated bool) (track.Set, error)

	// FindOrCreatePlaylist resolves a playlist by name, creating it when
	// absent.
	FindOrCreatePlaylist(ctx context.Context, name string, public bool) (PlaylistHandle, error)

	// PlaylistTrackIDs returns the ordered track IDs currently on the
	// playlist.
	PlaylistTrackIDs(ctx context.Context, h PlaylistHandle) ([]string, error)

	// AddTracks appends the given track IDs in order. Idempotent per ID
	// under the reconciler's diff (an ID is only added when absent).
	AddTracks(ctx context.Context, h PlaylistHandle, ids []string) error

	// RemoveTracks removes every occurrence of the given track IDs.
	RemoveTracks(ctx context.Context, h PlaylistHandle, ids []string) error
}

// TransientError wraps a failure worth retrying: rate limits, 5xx
// responses, network flakes.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a failure retrying cannot fix: malformed URIs,
// missing resources, authorization problems.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent provider error during %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

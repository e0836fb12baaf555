package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"powerplaylists/internal/track"
)

// MemoryPlaylist is one playlist held by the in-memory provider.
type MemoryPlaylist struct {
	URI       string
	Name      string
	Public    bool
	Generated bool
	Tracks    track.Set
}

// Memory is an in-memory Provider used by tests. It records mutations and
// can inject failures through FailHook.
type Memory struct {
	mu        sync.Mutex
	liked     track.Set
	playlists []*MemoryPlaylist
	catalog   map[string]track.Track
	nextID    int

	// FailHook, when set, is consulted before every call with the
	// operation name; a non-nil return is surfaced as the call's error.
	FailHook func(op string) error

	// Calls counts invocations per operation name.
	Calls map[string]int
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{
		catalog: make(map[string]track.Track),
		Calls:   make(map[string]int),
	}
}

// SeedLiked replaces the liked-track library.
func (m *Memory) SeedLiked(tracks ...track.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liked = append(track.Set{}, tracks...)
	for _, t := range tracks {
		m.catalog[t.ID] = t
	}
}

// SeedPlaylist creates (or replaces) a playlist and returns its URI.
func (m *Memory) SeedPlaylist(name string, tracks ...track.Track) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pl := range m.playlists {
		if pl.Name == name {
			pl.Tracks = append(track.Set{}, tracks...)
			return pl.URI
		}
	}
	pl := &MemoryPlaylist{
		URI:    fmt.Sprintf("mem:playlist:%d", m.nextID),
		Name:   name,
		Tracks: append(track.Set{}, tracks...),
	}
	m.nextID++
	m.playlists = append(m.playlists, pl)
	for _, t := range tracks {
		m.catalog[t.ID] = t
	}
	return pl.URI
}

// Playlist returns the playlist with the given name, if any.
func (m *Memory) Playlist(name string) (*MemoryPlaylist, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pl := range m.playlists {
		if pl.Name == name {
			return pl, true
		}
	}
	return nil, false
}

func (m *Memory) enter(op string) error {
	m.mu.Lock()
	m.Calls[op]++
	hook := m.FailHook
	m.mu.Unlock()
	if hook != nil {
		return hook(op)
	}
	return nil
}

func (m *Memory) FetchPlaylistTracks(ctx context.Context, uri string) (track.Set, error) {
	if err := m.enter("FetchPlaylistTracks"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !strings.HasPrefix(uri, "mem:playlist:") {
		return nil, &PermanentError{Op: "FetchPlaylistTracks", Err: fmt.Errorf("malformed playlist uri %q", uri)}
	}
	for _, pl := range m.playlists {
		if pl.URI == uri {
			return append(track.Set{}, pl.Tracks...), nil
		}
	}
	return nil, &PermanentError{Op: "FetchPlaylistTracks", Err: fmt.Errorf("no playlist with uri %q", uri)}
}

func (m *Memory) FetchLikedTracks(ctx context.Context) (track.Set, error) {
	if err := m.enter("FetchLikedTracks"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(track.Set, len(m.liked))
	for i, t := range m.liked {
		t.Liked = track.LikedTrue
		out[i] = t
	}
	return out, nil
}

func (m *Memory) FetchAllLibraryTracks(ctx context.Context, includeGenerated bool) (track.Set, error) {
	if err := m.enter("FetchAllLibraryTracks"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(track.Set, 0, len(m.liked))
	for _, t := range m.liked {
		t.Liked = track.LikedTrue
		out = append(out, t)
	}
	for _, pl := range m.playlists {
		if pl.Generated && !includeGenerated {
			continue
		}
		out = append(out, pl.Tracks...)
	}
	return out, nil
}

func (m *Memory) FindOrCreatePlaylist(ctx context.Context, name string, public bool) (PlaylistHandle, error) {
	if err := m.enter("FindOrCreatePlaylist"); err != nil {
		return PlaylistHandle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pl := range m.playlists {
		if pl.Name == name {
			return PlaylistHandle{ID: pl.URI, Name: name}, nil
		}
	}
	pl := &MemoryPlaylist{
		URI:       fmt.Sprintf("mem:playlist:%d", m.nextID),
		Name:      name,
		Public:    public,
		Generated: true,
	}
	m.nextID++
	m.playlists = append(m.playlists, pl)
	return PlaylistHandle{ID: pl.URI, Name: name}, nil
}

func (m *Memory) PlaylistTrackIDs(ctx context.Context, h PlaylistHandle) ([]string, error) {
	if err := m.enter("PlaylistTrackIDs"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, err := m.byURI(h.ID)
	if err != nil {
		return nil, err
	}
	return pl.Tracks.IDs(), nil
}

func (m *Memory) AddTracks(ctx context.Context, h PlaylistHandle, ids []string) error {
	if err := m.enter("AddTracks"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, err := m.byURI(h.ID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		t, ok := m.catalog[id]
		if !ok {
			t = track.Track{ID: id}
		}
		pl.Tracks = append(pl.Tracks, t)
	}
	return nil
}

func (m *Memory) RemoveTracks(ctx context.Context, h PlaylistHandle, ids []string) error {
	if err := m.enter("RemoveTracks"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, err := m.byURI(h.ID)
	if err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := pl.Tracks[:0:0]
	for _, t := range pl.Tracks {
		if _, gone := drop[t.ID]; !gone {
			kept = append(kept, t)
		}
	}
	pl.Tracks = kept
	return nil
}

func (m *Memory) byURI(uri string) (*MemoryPlaylist, error) {
	for _, pl := range m.playlists {
		if pl.URI == uri {
			return pl, nil
		}
	}
	return nil, &PermanentError{Op: "lookup", Err: fmt.Errorf("no playlist with uri %q", uri)}
}

// Package track defines the track record and the ordered track set that
// flows between nodes during an evaluation pass.
package track

import (
	"fmt"
	"time"
)

// Liked is the tri-state liked/saved flag on a track. Tracks fetched from
// playlists carry LikedUnknown; membership is resolved against the liked
// set on demand.
type Liked int

const (
	LikedUnknown Liked = iota
	LikedTrue
	LikedFalse
)

// Track is an immutable track record. Identity is ID: two tracks are
// duplicates exactly when their IDs match.
type Track struct {
	ID     string
	Name   string
	Artist string
	Album  string

	// AddedAt is when the track entered its source playlist or the liked
	// library. The zero value means the timestamp is absent.
	AddedAt time.Time

	// ReleaseDate is the raw release date as reported by the provider. It
	// may be partial: "2006", "2006-01" or "2006-01-02".
	ReleaseDate string

	Liked Liked
}

// Set is an ordered sequence of tracks. A Set is owned by the node that
// produced it and must be treated as read-only by consumers.
type Set []Track

// IDs returns the track IDs of the set in order.
func (s Set) IDs() []string {
	ids := make([]string, len(s))
	for i, t := range s {
		ids[i] = t.ID
	}
	return ids
}

// releaseDateLayouts covers the partial date shapes Spotify reports.
var releaseDateLayouts = []string{"2006-01-02", "2006-01", "2006"}

// ParseReleaseDate parses a possibly partial release date. An empty input
// reports ok=false with no error; a malformed input is an error.
func ParseReleaseDate(s string) (t time.Time, ok bool, err error) {
	if s == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range releaseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unparsable release date %q", s)
}

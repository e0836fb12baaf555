package spotify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	spotifyapi "github.com/zmb3/spotify/v2"

	"powerplaylists/internal/provider"
	"powerplaylists/internal/track"
)

func TestParsePlaylistURI(t *testing.T) {
	t.Run("spotify uri", func(t *testing.T) {
		id, err := parsePlaylistURI("spotify:playlist:37i9dQZF1DXcBWIGoYBM5M")
		require.NoError(t, err)
		assert.Equal(t, spotifyapi.ID("37i9dQZF1DXcBWIGoYBM5M"), id)
	})

	t.Run("open.spotify.com url", func(t *testing.T) {
		id, err := parsePlaylistURI("https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc")
		require.NoError(t, err)
		assert.Equal(t, spotifyapi.ID("37i9dQZF1DXcBWIGoYBM5M"), id)
	})

	t.Run("bare id", func(t *testing.T) {
		id, err := parsePlaylistURI("37i9dQZF1DXcBWIGoYBM5M")
		require.NoError(t, err)
		assert.Equal(t, spotifyapi.ID("37i9dQZF1DXcBWIGoYBM5M"), id)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, uri := range []string{
			"",
			"spotify:track:abc",
			"spotify:playlist:",
			"https://open.spotify.com/track/abc",
			"not a playlist",
		} {
			_, err := parsePlaylistURI(uri)
			assert.Error(t, err, "uri %q", uri)
		}
	})
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, 0, 250)
	for range 250 {
		ids = append(ids, "x")
	}
	chunks := chunkIDs(ids, 100)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)

	assert.Empty(t, chunkIDs(nil, 100))
}

func TestClassify(t *testing.T) {
	t.Run("rate limit is transient", func(t *testing.T) {
		err := classify("op", spotifyapi.Error{Status: 429, Message: "rate limited"})
		assert.True(t, provider.IsTransient(err))
	})

	t.Run("server error is transient", func(t *testing.T) {
		err := classify("op", spotifyapi.Error{Status: 502, Message: "bad gateway"})
		assert.True(t, provider.IsTransient(err))
	})

	t.Run("client error is permanent", func(t *testing.T) {
		err := classify("op", spotifyapi.Error{Status: 404, Message: "not found"})
		assert.False(t, provider.IsTransient(err))
		var permErr *provider.PermanentError
		assert.ErrorAs(t, err, &permErr)
	})

	t.Run("network error is transient", func(t *testing.T) {
		err := classify("op", errors.New("connection reset"))
		assert.True(t, provider.IsTransient(err))
	})

	t.Run("context errors pass through", func(t *testing.T) {
		assert.Equal(t, context.Canceled, classify("op", context.Canceled))
	})
}

func TestFromFullTrack(t *testing.T) {
	ft := &spotifyapi.FullTrack{
		SimpleTrack: spotifyapi.SimpleTrack{
			ID:      "id1",
			Name:    "Song",
			Artists: []spotifyapi.SimpleArtist{{Name: "First"}, {Name: "Second"}},
		},
		Album: spotifyapi.SimpleAlbum{Name: "Album", ReleaseDate: "2021-03"},
	}

	got := fromFullTrack(ft, "2024-06-15T10:30:00Z", track.LikedTrue)
	assert.Equal(t, "id1", got.ID)
	assert.Equal(t, "Song", got.Name)
	assert.Equal(t, "First", got.Artist)
	assert.Equal(t, "Album", got.Album)
	assert.Equal(t, "2021-03", got.ReleaseDate)
	assert.Equal(t, track.LikedTrue, got.Liked)
	assert.Equal(t, time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC), got.AddedAt)

	// Missing timestamp stays absent.
	got = fromFullTrack(ft, "", track.LikedUnknown)
	assert.True(t, got.AddedAt.IsZero())
}

func TestNewValidatesCredentials(t *testing.T) {
	_, err := New(context.Background(), Credentials{}, 5)
	assert.ErrorContains(t, err, "client_id")

	_, err = New(context.Background(), Credentials{ClientID: "i", ClientSecret: "s"}, 5)
	assert.ErrorContains(t, err, "access_token or refresh_token")

	c, err := New(context.Background(), Credentials{
		ClientID: "i", ClientSecret: "s", RefreshToken: "r",
	}, 0)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

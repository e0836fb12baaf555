// Package spotify adapts the Spotify Web API to the provider interface.
// All calls are paced by a shared rate limiter and paginated to
// completion; failures are classified into the provider error taxonomy
// so the reconciler knows what to retry.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"powerplaylists/internal/ctxlog"
	"powerplaylists/internal/provider"
	"powerplaylists/internal/track"
)

// mutation chunk limit imposed by the Web API.
const trackChunkSize = 100

// Credentials carries everything needed to act as a user.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
}

// Client implements provider.Provider on the Spotify Web API.
type Client struct {
	api     *spotifyapi.Client
	limiter *rate.Limiter

	userOnce sync.Once
	userID   string
	userErr  error
}

// New builds a client from user credentials. requestsPerSecond <= 0
// falls back to 5.
func New(ctx context.Context, creds Credentials, requestsPerSecond float64) (*Client, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, errors.New("spotify client_id and client_secret are required")
	}
	if creds.RefreshToken == "" && creds.AccessToken == "" {
		return nil, errors.New("spotify access_token or refresh_token is required")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(creds.ClientID),
		spotifyauth.WithClientSecret(creds.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserLibraryRead,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopePlaylistModifyPublic,
		),
	)
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		// Force an immediate refresh when only a refresh token is present.
		Expiry: time.Now().Add(-time.Minute),
	}
	if creds.RefreshToken == "" {
		token.Expiry = time.Time{}
	}

	return &Client{
		api:     spotifyapi.New(auth.Client(ctx, token)),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}, nil
}

var _ provider.Provider = (*Client)(nil)

func (c *Client) FetchPlaylistTracks(ctx context.Context, uri string) (track.Set, error) {
	id, err := parsePlaylistURI(uri)
	if err != nil {
		return nil, &provider.PermanentError{Op: "FetchPlaylistTracks", Err: err}
	}
	return c.playlistTracks(ctx, id)
}

func (c *Client) playlistTracks(ctx context.Context, id spotifyapi.ID) (track.Set, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.GetPlaylistItems(ctx, id)
	if err != nil {
		return nil, classify("FetchPlaylistTracks", err)
	}

	var out track.Set
	for {
		for _, item := range page.Items {
			// Episodes and local files carry no usable track.
			if item.Track.Track == nil {
				continue
			}
			out = append(out, fromFullTrack(item.Track.Track, item.AddedAt, track.LikedUnknown))
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := c.api.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotifyapi.ErrNoMorePages) {
				return out, nil
			}
			return nil, classify("FetchPlaylistTracks", err)
		}
	}
}

func (c *Client) FetchLikedTracks(ctx context.Context) (track.Set, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.CurrentUsersTracks(ctx)
	if err != nil {
		return nil, classify("FetchLikedTracks", err)
	}

	var out track.Set
	for {
		for i := range page.Tracks {
			saved := &page.Tracks[i]
			out = append(out, fromFullTrack(&saved.FullTrack, saved.AddedAt, track.LikedTrue))
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := c.api.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotifyapi.ErrNoMorePages) {
				return out, nil
			}
			return nil, classify("FetchLikedTracks", err)
		}
	}
}

func (c *Client) FetchAllLibraryTracks(ctx context.Context, includeGenerated bool) (track.Set, error) {
	logger := ctxlog.FromContext(ctx)

	out, err := c.FetchLikedTracks(ctx)
	if err != nil {
		return nil, err
	}

	playlists, err := c.userPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	for _, pl := range playlists {
		if !includeGenerated {
			generated, err := c.isGenerated(ctx, pl.ID)
			if err != nil {
				return nil, err
			}
			if generated {
				logger.Debug("Skipping generated playlist.", "playlist", pl.Name)
				continue
			}
		}
		tracks, err := c.playlistTracks(ctx, pl.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, tracks...)
	}
	return out, nil
}

func (c *Client) userPlaylists(ctx context.Context) ([]spotifyapi.SimplePlaylist, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.CurrentUsersPlaylists(ctx)
	if err != nil {
		return nil, classify("CurrentUsersPlaylists", err)
	}
	var out []spotifyapi.SimplePlaylist
	for {
		out = append(out, page.Playlists...)
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := c.api.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotifyapi.ErrNoMorePages) {
				return out, nil
			}
			return nil, classify("CurrentUsersPlaylists", err)
		}
	}
}

// isGenerated checks the playlist description for the generated-by
// marker. The playlist listing omits descriptions, so this costs one
// extra call per playlist.
func (c *Client) isGenerated(ctx context.Context, id spotifyapi.ID) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}
	pl, err := c.api.GetPlaylist(ctx, id)
	if err != nil {
		return false, classify("GetPlaylist", err)
	}
	return pl.Description == provider.GeneratedDescription, nil
}

func (c *Client) FindOrCreatePlaylist(ctx context.Context, name string, public bool) (provider.PlaylistHandle, error) {
	playlists, err := c.userPlaylists(ctx)
	if err != nil {
		return provider.PlaylistHandle{}, err
	}
	for _, pl := range playlists {
		if pl.Name == name {
			return provider.PlaylistHandle{ID: string(pl.ID), Name: name}, nil
		}
	}

	userID, err := c.currentUserID(ctx)
	if err != nil {
		return provider.PlaylistHandle{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return provider.PlaylistHandle{}, err
	}
	created, err := c.api.CreatePlaylistForUser(ctx, userID, name, provider.GeneratedDescription, public, false)
	if err != nil {
		return provider.PlaylistHandle{}, classify("CreatePlaylistForUser", err)
	}
	ctxlog.FromContext(ctx).Info("Created playlist.", "playlist", name, "public", public)
	return provider.PlaylistHandle{ID: string(created.ID), Name: name}, nil
}

func (c *Client) currentUserID(ctx context.Context) (string, error) {
	c.userOnce.Do(func() {
		if err := c.limiter.Wait(ctx); err != nil {
			c.userErr = err
			return
		}
		user, err := c.api.CurrentUser(ctx)
		if err != nil {
			c.userErr = classify("CurrentUser", err)
			return
		}
		c.userID = user.ID
	})
	return c.userID, c.userErr
}

func (c *Client) PlaylistTrackIDs(ctx context.Context, h provider.PlaylistHandle) ([]string, error) {
	tracks, err := c.playlistTracks(ctx, spotifyapi.ID(h.ID))
	if err != nil {
		return nil, err
	}
	return tracks.IDs(), nil
}

func (c *Client) AddTracks(ctx context.Context, h provider.PlaylistHandle, ids []string) error {
	for _, chunk := range chunkIDs(ids, trackChunkSize) {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := c.api.AddTracksToPlaylist(ctx, spotifyapi.ID(h.ID), chunk...); err != nil {
			return classify("AddTracks", err)
		}
	}
	return nil
}

func (c *Client) RemoveTracks(ctx context.Context, h provider.PlaylistHandle, ids []string) error {
	for _, chunk := range chunkIDs(ids, trackChunkSize) {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := c.api.RemoveTracksFromPlaylist(ctx, spotifyapi.ID(h.ID), chunk...); err != nil {
			return classify("RemoveTracks", err)
		}
	}
	return nil
}

func fromFullTrack(ft *spotifyapi.FullTrack, addedAt string, liked track.Liked) track.Track {
	t := track.Track{
		ID:          string(ft.ID),
		Name:        ft.Name,
		Album:       ft.Album.Name,
		ReleaseDate: ft.Album.ReleaseDate,
		Liked:       liked,
	}
	if len(ft.Artists) > 0 {
		t.Artist = ft.Artists[0].Name
	}
	if addedAt != "" {
		if parsed, err := time.Parse(spotifyapi.TimestampLayout, addedAt); err == nil {
			t.AddedAt = parsed
		}
	}
	return t
}

// parsePlaylistURI accepts "spotify:playlist:<id>", an
// open.spotify.com playlist URL, or a bare ID.
func parsePlaylistURI(uri string) (spotifyapi.ID, error) {
	switch {
	case strings.HasPrefix(uri, "spotify:"):
		parts := strings.Split(uri, ":")
		if len(parts) != 3 || parts[1] != "playlist" || parts[2] == "" {
			return "", fmt.Errorf("malformed playlist uri %q", uri)
		}
		return spotifyapi.ID(parts[2]), nil
	case strings.HasPrefix(uri, "https://open.spotify.com/"):
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("malformed playlist url %q", uri)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "playlist" || parts[1] == "" {
			return "", fmt.Errorf("url %q is not a playlist url", uri)
		}
		return spotifyapi.ID(parts[1]), nil
	case uri == "":
		return "", errors.New("empty playlist uri")
	case strings.ContainsAny(uri, ":/ "):
		return "", fmt.Errorf("malformed playlist uri %q", uri)
	default:
		return spotifyapi.ID(uri), nil
	}
}

func chunkIDs(ids []string, size int) [][]spotifyapi.ID {
	var chunks [][]spotifyapi.ID
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunk := make([]spotifyapi.ID, 0, end-start)
		for _, id := range ids[start:end] {
			chunk = append(chunk, spotifyapi.ID(id))
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// classify maps an API failure onto the provider taxonomy: rate limits
// and server errors are transient, everything else addressed to the API
// is permanent, and plain transport errors are assumed transient.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr spotifyapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == 429 || apiErr.Status >= 500 {
			return &provider.TransientError{Op: op, Err: err}
		}
		return &provider.PermanentError{Op: op, Err: err}
	}
	return &provider.TransientError{Op: op, Err: err}
}

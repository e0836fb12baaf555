// Package reconcile converges remote playlists to the track sets the
// engine computed. The diff is order-insensitive per track ID: missing
// IDs are appended, remote-only IDs are removed, and a playlist whose
// content hash matches the cached value is skipped entirely.
package reconcile

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"powerplaylists/internal/cache"
	"powerplaylists/internal/ctxlog"
	"powerplaylists/internal/provider"
	"powerplaylists/internal/track"
)

// Target is one playlist to converge: the engine's output mapped into
// reconciler terms.
type Target struct {
	// Node is the name of the output node that produced this target.
	Node string
	// PlaylistName is the remote playlist to find or create.
	PlaylistName string
	Public       bool
	Tracks       track.Set
}

// Status of one reconciled target.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusSkipped Status = "skipped"
	StatusDryRun  Status = "dry-run"
	StatusFailed  Status = "failed"
)

// Result records what happened to one target.
type Result struct {
	Node     string
	Playlist string
	Status   Status
	Added    int
	Removed  int
	Err      error
}

// Reconciler pushes computed track sets to the provider.
type Reconciler struct {
	Provider provider.Provider

	// Cache, when non-nil, stores per-playlist content hashes so unchanged
	// playlists skip the remote round-trip.
	Cache *cache.Store

	// DryRun computes and reports diffs without mutating anything.
	DryRun bool

	// Force reconciles even when the cached hash matches.
	Force bool

	// MaxAttempts bounds retries of transient provider failures. Values
	// < 1 fall back to 5.
	MaxAttempts int

	// BaseDelay is the first retry backoff, doubled per attempt. Values
	// <= 0 fall back to 500ms.
	BaseDelay time.Duration
}

// playlistLocks serializes reconciliation per playlist name across every
// Reconciler in the process. Two outputs targeting the same playlist are
// rejected at build time, but overlapping runs each build their own
// Reconciler, so the lock must outlive any one instance.
var playlistLocks sync.Map

func lockPlaylist(name string) *sync.Mutex {
	lock, _ := playlistLocks.LoadOrStore(name, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	return mu
}

// Reconcile converges every target concurrently and returns one result
// per target, in target order.
func (r *Reconciler) Reconcile(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			results[i] = r.reconcileOne(ctx, target)
		}(i, target)
	}
	wg.Wait()
	return results
}

func (r *Reconciler) reconcileOne(ctx context.Context, target Target) Result {
	logger := ctxlog.FromContext(ctx).With("playlist", target.PlaylistName, "node", target.Node)
	res := Result{Node: target.Node, Playlist: target.PlaylistName}

	mu := lockPlaylist(target.PlaylistName)
	defer mu.Unlock()

	// Duplicate occurrences in the computed set collapse to the first:
	// playlist identity is per track ID.
	want := dedupIDs(target.Tracks.IDs())
	hash := contentHash(want)

	if r.Cache != nil && !r.Force && !r.DryRun {
		cached, ok, err := r.Cache.Get(ctx, target.PlaylistName)
		if err != nil {
			logger.Warn("Cache lookup failed, reconciling anyway.", "error", err)
		} else if ok && cached == hash {
			logger.Debug("Playlist unchanged since last run, skipping.")
			res.Status = StatusSkipped
			return res
		}
	}

	handle, err := findOrCreate(ctx, r, target)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	var remote []string
	err = r.withRetry(ctx, logger, "PlaylistTrackIDs", func() error {
		var e error
		remote, e = r.Provider.PlaylistTrackIDs(ctx, handle)
		return e
	})
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	toAdd, toRemove := diff(want, remote)
	res.Added = len(toAdd)
	res.Removed = len(toRemove)

	if r.DryRun {
		logger.Info("Dry run, not mutating playlist.", "would_add", len(toAdd), "would_remove", len(toRemove))
		res.Status = StatusDryRun
		return res
	}

	if len(toRemove) > 0 {
		err = r.withRetry(ctx, logger, "RemoveTracks", func() error {
			return r.Provider.RemoveTracks(ctx, handle, toRemove)
		})
		if err != nil {
			res.Status = StatusFailed
			res.Err = err
			return res
		}
	}
	if len(toAdd) > 0 {
		err = r.withRetry(ctx, logger, "AddTracks", func() error {
			return r.Provider.AddTracks(ctx, handle, toAdd)
		})
		if err != nil {
			res.Status = StatusFailed
			res.Err = err
			return res
		}
	}

	if r.Cache != nil {
		if err := r.Cache.Put(ctx, target.PlaylistName, hash, time.Now()); err != nil {
			logger.Warn("Cache update failed.", "error", err)
		}
	}

	logger.Info("Playlist reconciled.", "added", len(toAdd), "removed", len(toRemove), "size", len(want))
	res.Status = StatusSynced
	return res
}

func findOrCreate(ctx context.Context, r *Reconciler, target Target) (provider.PlaylistHandle, error) {
	logger := ctxlog.FromContext(ctx)
	var handle provider.PlaylistHandle
	err := r.withRetry(ctx, logger, "FindOrCreatePlaylist", func() error {
		var e error
		handle, e = r.Provider.FindOrCreatePlaylist(ctx, target.PlaylistName, target.Public)
		return e
	})
	return handle, err
}

// withRetry runs op, retrying transient provider errors with exponential
// backoff. Permanent errors and context cancellation return immediately.
func (r *Reconciler) withRetry(ctx context.Context, logger *slog.Logger, name string, op func() error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 5
	}
	delay := r.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !provider.IsTransient(err) || attempt == attempts {
			return err
		}
		logger.Warn("Transient provider failure, retrying.",
			"op", name, "attempt", attempt, "backoff", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// diff computes the IDs to add (in want order) and to remove. Order on
// the remote playlist is not reconciled.
func diff(want, remote []string) (toAdd, toRemove []string) {
	wantSet := make(map[string]struct{}, len(want))
	for _, id := range want {
		wantSet[id] = struct{}{}
	}
	remoteSet := make(map[string]struct{}, len(remote))
	for _, id := range remote {
		if _, seen := remoteSet[id]; seen {
			continue
		}
		remoteSet[id] = struct{}{}
		if _, keep := wantSet[id]; !keep {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range want {
		if _, have := remoteSet[id]; !have {
			toAdd = append(toAdd, id)
		}
	}
	return toAdd, toRemove
}

func dedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// contentHash is a stable fingerprint of an ID sequence, used for the
// skip-if-unchanged cache.
func contentHash(ids []string) string {
	sum := sha1.Sum([]byte(strings.Join(ids, "\n")))
	return hex.EncodeToString(sum[:])
}

// Summarize renders a one-line status per result, for reports.
func Summarize(res Result) string {
	switch res.Status {
	case StatusFailed:
		return fmt.Sprintf("failed: %v", res.Err)
	case StatusSkipped:
		return "unchanged"
	case StatusDryRun:
		return fmt.Sprintf("would add %d, remove %d", res.Added, res.Removed)
	default:
		return fmt.Sprintf("added %d, removed %d", res.Added, res.Removed)
	}
}

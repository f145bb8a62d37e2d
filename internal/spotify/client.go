// Package spotify wraps the external catalog, profile and
// transport-control endpoints. Every call is bearer-authenticated,
// fallible and non-blocking to the sync engine.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	spotifyapi "github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/vibesync/client/internal/domain"
)

var ErrAuthFailure = errors.New("authentication failure")

type Client struct {
	api    *spotifyapi.Client
	logger *slog.Logger
}

// NewClient builds a client around a static bearer credential. The
// credential is issued and refreshed by the external identity
// provider; a stale credential surfaces as ErrAuthFailure.
func NewClient(credential string, logger *slog.Logger) *Client {
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: credential,
	}))

	return &Client{
		api:    spotifyapi.New(httpClient),
		logger: logger,
	}
}

func (c *Client) wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr spotifyapi.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, ErrAuthFailure)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (domain.User, error) {
	u, err := c.api.CurrentUser(ctx)
	if err != nil {
		return domain.User{}, c.wrap("fetch profile", err)
	}

	user := domain.User{
		ID:   u.ID,
		Name: u.DisplayName,
	}
	if len(u.Images) > 0 {
		user.Image = u.Images[0].URL
	}

	return user, nil
}

// SearchTracks queries the catalog and maps results to queueable
// tracks, artist names joined into one display string.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]domain.Track, error) {
	res, err := c.api.Search(ctx, query, spotifyapi.SearchTypeTrack, spotifyapi.Limit(limit))
	if err != nil {
		return nil, c.wrap("search tracks", err)
	}

	if res.Tracks == nil {
		return nil, nil
	}

	tracks := make([]domain.Track, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		artists := make([]string, 0, len(t.Artists))
		for _, a := range t.Artists {
			artists = append(artists, a.Name)
		}

		track := domain.Track{
			URI:        string(t.URI),
			Name:       t.Name,
			Artist:     strings.Join(artists, ", "),
			DurationMs: int(t.Duration),
		}
		if len(t.Album.Images) > 0 {
			track.Image = t.Album.Images[0].URL
		}

		tracks = append(tracks, track)
	}

	return tracks, nil
}

// StartPlayback asks the transport-control endpoint to start the given
// track on the given device.
func (c *Client) StartPlayback(ctx context.Context, deviceID, uri string) error {
	id := spotifyapi.ID(deviceID)
	return c.wrap("start playback", c.api.PlayOpt(ctx, &spotifyapi.PlayOptions{
		DeviceID: &id,
		URIs:     []spotifyapi.URI{spotifyapi.URI(uri)},
	}))
}

func (c *Client) Resume(ctx context.Context, deviceID string) error {
	id := spotifyapi.ID(deviceID)
	return c.wrap("resume", c.api.PlayOpt(ctx, &spotifyapi.PlayOptions{DeviceID: &id}))
}

func (c *Client) Pause(ctx context.Context, deviceID string) error {
	id := spotifyapi.ID(deviceID)
	return c.wrap("pause", c.api.PauseOpt(ctx, &spotifyapi.PlayOptions{DeviceID: &id}))
}

func (c *Client) Seek(ctx context.Context, deviceID string, positionMs int) error {
	id := spotifyapi.ID(deviceID)
	return c.wrap("seek", c.api.SeekOpt(ctx, positionMs, &spotifyapi.PlayOptions{DeviceID: &id}))
}

func (c *Client) SetVolume(ctx context.Context, deviceID string, percent int) error {
	id := spotifyapi.ID(deviceID)
	return c.wrap("set volume", c.api.VolumeOpt(ctx, percent, &spotifyapi.PlayOptions{DeviceID: &id}))
}

// PlaybackState is the device-reported fact of what is actually
// playing, as opposed to the server-declared intent.
type PlaybackState struct {
	DeviceID   string
	PositionMs int
	DurationMs int
	IsPlaying  bool
	Volume     int
}

func (c *Client) PlayerState(ctx context.Context) (PlaybackState, error) {
	ps, err := c.api.PlayerState(ctx)
	if err != nil {
		return PlaybackState{}, c.wrap("fetch player state", err)
	}

	state := PlaybackState{
		DeviceID:   string(ps.Device.ID),
		PositionMs: int(ps.Progress),
		IsPlaying:  ps.Playing,
		Volume:     int(ps.Device.Volume),
	}
	if ps.Item != nil {
		state.DurationMs = int(ps.Item.Duration)
	}

	return state, nil
}

// ActiveDeviceID returns the currently active playback device, or the
// first known device when none is active.
func (c *Client) ActiveDeviceID(ctx context.Context) (string, error) {
	devices, err := c.api.PlayerDevices(ctx)
	if err != nil {
		return "", c.wrap("list devices", err)
	}

	if len(devices) == 0 {
		return "", errors.New("no playback devices available")
	}

	for _, d := range devices {
		if d.Active {
			return string(d.ID), nil
		}
	}

	return string(devices[0].ID), nil
}

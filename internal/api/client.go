// Package api is the typed client for the anime streaming backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/anikino/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Anikino/1.0"
	codeOK         = 200
)

// CodeError is a failure reported inside a response envelope
type CodeError struct {
	Code int
	Msg  string
}

func (e *CodeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("backend error code %d", e.Code)
	}
	return fmt.Sprintf("backend error code %d: %s", e.Code, e.Msg)
}

// Is lets a 404 envelope match domain.ErrNotFound
func (e *CodeError) Is(target error) bool {
	return target == domain.ErrNotFound && e.Code == http.StatusNotFound
}

// Client implements domain.Backend over HTTP
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the server at baseURL.
// transport may be nil; pass a retry.Transport to retry failed calls.
func NewClient(baseURL string, transport http.RoundTripper, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: missing scheme or host", baseURL)
	}
	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the server root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// doRequest performs an HTTP request and returns the raw body.
// body, when non-nil, is sent as JSON.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	ref := &url.URL{Path: strings.TrimPrefix(path, "/")}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	reqURL := c.baseURL.ResolveReference(ref).String()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("backend request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Error("backend request failed", "url", reqURL, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrServerOffline, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("backend request error", "status", resp.StatusCode, "body", string(data))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return data, nil
}

// call performs a request and decodes its envelope, failing on a non-200 code
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body interface{}) (*envelope, error) {
	data, err := c.doRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Error("JSON parse error", "path", path, "error", err, "bodyLen", len(data))
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if env.Code != codeOK {
		return nil, &CodeError{Code: env.Code, Msg: env.Msg}
	}
	return &env, nil
}

// decodeData unmarshals the envelope's data into dest. Missing data leaves dest untouched.
func decodeData(env *envelope, dest interface{}) error {
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

// ListItems returns one page of the catalog
func (c *Client) ListItems(ctx context.Context, page int, query string) ([]domain.Item, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if query != "" {
		q.Set("q", query)
	}

	env, err := c.call(ctx, http.MethodGet, "/api/list", q, nil)
	if err != nil {
		return nil, err
	}
	var dtos []itemDTO
	if err := decodeData(env, &dtos); err != nil {
		return nil, err
	}
	return mapItems(dtos, c.baseURL), nil
}

// SeasonSchedule returns the weekly day buckets in server order
func (c *Client) SeasonSchedule(ctx context.Context, year int, season string) ([][]domain.Item, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(year))
	q.Set("season", season)

	env, err := c.call(ctx, http.MethodGet, "/api/season_schedule", q, nil)
	if err != nil {
		return nil, err
	}
	var days [][]itemDTO
	if err := decodeData(env, &days); err != nil {
		return nil, err
	}
	return mapSchedule(days, c.baseURL), nil
}

// CoverByTitle looks up a poster. This endpoint has no envelope code.
func (c *Client) CoverByTitle(ctx context.Context, title string) (string, error) {
	q := url.Values{}
	q.Set("title", title)

	data, err := c.doRequest(ctx, http.MethodGet, "/api/get_cover_lazy", q, nil)
	if err != nil {
		return "", err
	}
	var dto coverDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if dto.URL == nil {
		return "", nil
	}
	return resolveRef(c.baseURL, *dto.URL), nil
}

// FavoriteIDs returns the ids of every favorited show
func (c *Client) FavoriteIDs(ctx context.Context) ([]string, error) {
	env, err := c.call(ctx, http.MethodGet, "/api/favorites/list", nil, nil)
	if err != nil {
		return nil, err
	}
	var raw []domain.FlexString
	if err := decodeData(env, &raw); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, string(id))
	}
	return ids, nil
}

// FavoritesWithDetails returns favorited shows, most recently added first
func (c *Client) FavoritesWithDetails(ctx context.Context) ([]domain.Item, error) {
	env, err := c.call(ctx, http.MethodGet, "/api/favorites/list_with_details", nil, nil)
	if err != nil {
		return nil, err
	}
	var dtos []itemDTO
	if err := decodeData(env, &dtos); err != nil {
		return nil, err
	}
	return mapItems(dtos, c.baseURL), nil
}

func (c *Client) AddFavorite(ctx context.Context, animeID string) error {
	_, err := c.call(ctx, http.MethodPost, "/api/favorites/add", nil, animeRequest{AnimeID: animeID})
	return err
}

func (c *Client) RemoveFavorite(ctx context.Context, animeID string) error {
	_, err := c.call(ctx, http.MethodPost, "/api/favorites/remove", nil, animeRequest{AnimeID: animeID})
	return err
}

// PlaybackHistory returns every playback record, newest first
func (c *Client) PlaybackHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	env, err := c.call(ctx, http.MethodGet, "/api/playback/list", nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []historyDTO
	if err := decodeData(env, &rows); err != nil {
		return nil, err
	}
	return mapHistory(rows, c.baseURL), nil
}

// PlaybackRecord returns the saved progress for animeID, or domain.ErrNotFound
func (c *Client) PlaybackRecord(ctx context.Context, animeID string) (*domain.PlaybackRecord, error) {
	env, err := c.call(ctx, http.MethodGet, "/api/playback/get/"+animeID, nil, nil)
	if err != nil {
		return nil, err
	}
	var dto recordDTO
	if err := decodeData(env, &dto); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dto.EpisodeTitle) == "" {
		return nil, domain.ErrNotFound
	}
	return &domain.PlaybackRecord{
		AnimeID:      animeID,
		EpisodeTitle: dto.EpisodeTitle,
		Position:     int(dto.PlaybackPosition),
		Timestamp:    parseTimestamp(dto.Timestamp),
	}, nil
}

// SavePlayback stores progress for one show
func (c *Client) SavePlayback(ctx context.Context, rec domain.PlaybackRecord) error {
	_, err := c.call(ctx, http.MethodPost, "/api/playback/save", nil, saveRequest{
		AnimeID:          rec.AnimeID,
		EpisodeTitle:     rec.EpisodeTitle,
		PlaybackPosition: rec.Position,
	})
	return err
}

// ClearPlayback removes the record for animeID. Clearing a missing record succeeds.
func (c *Client) ClearPlayback(ctx context.Context, animeID string) error {
	_, err := c.call(ctx, http.MethodPost, "/api/playback/clear", nil, animeRequest{AnimeID: animeID})
	return err
}

// Episodes returns the episode list, newest first
func (c *Client) Episodes(ctx context.Context, animeID string) ([]domain.Episode, error) {
	q := url.Values{}
	q.Set("id", animeID)

	env, err := c.call(ctx, http.MethodGet, "/api/episodes", q, nil)
	if err != nil {
		return nil, err
	}
	var dtos []episodeDTO
	if err := decodeData(env, &dtos); err != nil {
		return nil, err
	}
	return mapEpisodes(dtos), nil
}

// ResolvePlayURL returns a playable address, preferring the episode token
func (c *Client) ResolvePlayURL(ctx context.Context, animeID string, ep domain.Episode) (string, error) {
	q := url.Values{}
	if ep.Token != "" {
		q.Set("token", ep.Token)
	} else {
		q.Set("id", animeID)
		q.Set("ep", strconv.Itoa(ep.Index))
	}

	env, err := c.call(ctx, http.MethodGet, "/api/play_info", q, nil)
	if err != nil {
		var codeErr *CodeError
		if errors.As(err, &codeErr) {
			return "", fmt.Errorf("%w: %w", domain.ErrPlayback, codeErr)
		}
		return "", err
	}
	if env.URL == "" {
		return "", fmt.Errorf("%w: empty play address", domain.ErrPlayback)
	}
	return resolveRef(c.baseURL, env.URL), nil
}

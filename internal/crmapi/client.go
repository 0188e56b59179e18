// Package crmapi is the HTTP client for the upstream CRM booking feed.
package crmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client is a simple HTTP client for the CRM booking API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client with baseURL and API key.
func NewClient(baseURL, apiKey string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(20), 30),
		logger:     logger,
	}
}

// SetRateLimit overrides the default request rate limit for feed calls.
func (c *Client) SetRateLimit(perSecond float64, burst int) {
	if perSecond > 0 && burst > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// SetTimeout overrides the default HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
// Availability is never cached: the engine fails closed on it and a stale
// window list could let a double-booking through the client-side gate.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// GetAvailability fetches the raw availability envelope for a resource/date.
// viewerOffsetMinutes is the viewer's UTC offset in minutes east of UTC.
func (c *Client) GetAvailability(ctx context.Context, resourceID, date string, viewerOffsetMinutes int) (*AvailabilityResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/availability/%s?date=%s&tz_offset=%d",
		c.baseURL, url.PathEscape(resourceID), url.QueryEscape(date), viewerOffsetMinutes)

	var resp AvailabilityResponse
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBookings lists booking records matching the query. The feed may wrap the
// list in several envelope shapes or return a bare array.
func (c *Client) GetBookings(ctx context.Context, q BookingsQuery) ([]RawBooking, error) {
	params := url.Values{}
	if q.ResourceID != "" {
		params.Set("resource_id", q.ResourceID)
	}
	if q.LeadID != "" {
		params.Set("lead_id", q.LeadID)
	}
	if q.Date != "" {
		params.Set("date", q.Date)
	}
	endpoint := fmt.Sprintf("%s/api/v1/bookings?%s", c.baseURL, params.Encode())

	cacheKey := ""
	if q.ResourceID != "" && q.Date != "" && q.LeadID == "" {
		cacheKey = dayCacheKey(q.ResourceID, q.Date)
		var cached []RawBooking
		if c.readCache(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	body, err := c.doGetRaw(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	bookings, err := decodeBookings(body)
	if err != nil {
		return nil, err
	}
	if cacheKey != "" {
		c.writeCache(ctx, cacheKey, bookings)
	}
	return bookings, nil
}

// CheckAvailability runs the advisory pre-check for one exact range.
func (c *Client) CheckAvailability(ctx context.Context, req CheckRequest) (*CheckResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/availability/check", c.baseURL)
	var resp CheckResponse
	if err := c.doPost(ctx, endpoint, req, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BookSlot commits a booking. idempotencyKey deduplicates retried submissions
// server-side; pass "" to omit it.
func (c *Client) BookSlot(ctx context.Context, req BookRequest, idempotencyKey string) (*RawBooking, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bookings", c.baseURL)
	var resp RawBooking
	if err := c.doPost(ctx, endpoint, req, &resp, idempotencyKey); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelBooking cancels a booking by ID.
func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/bookings/%s", c.baseURL, url.PathEscape(bookingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, nil)
}

// ListResources fetches the read-only resource directory.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	endpoint := fmt.Sprintf("%s/api/v1/resources", c.baseURL)
	cacheKey := "resources"

	var wrap struct {
		Resources []Resource `json:"resources"`
	}
	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Resources, nil
	}
	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Resources, nil
}

// InvalidateDay drops the cached booking list for a (resource, date) pair.
// Called after every mutating operation so the post-mutation refresh sees
// server truth instead of the cache.
func (c *Client) InvalidateDay(ctx context.Context, resourceID, date string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, dayCacheKey(resourceID, date)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("resource_id", resourceID).Str("date", date).
			Msg("failed to invalidate day cache")
	}
}

func dayCacheKey(resourceID, date string) string {
	return fmt.Sprintf("bookings:%s:%s", resourceID, date)
}

// decodeBookings tolerates the feed's envelope variants: a bare array,
// {"bookings": [...]}, {"data": [...]} or {"results": [...]}.
func decodeBookings(body []byte) ([]RawBooking, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var list []RawBooking
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode bookings array: %w", err)
		}
		return list, nil
	}

	var wrap struct {
		Bookings []RawBooking `json:"bookings"`
		Data     []RawBooking `json:"data"`
		Results  []RawBooking `json:"results"`
	}
	if err := json.Unmarshal(body, &wrap); err != nil {
		return nil, fmt.Errorf("decode bookings envelope: %w", err)
	}
	for _, list := range [][]RawBooking{wrap.Bookings, wrap.Data, wrap.Results} {
		if len(list) > 0 {
			return list, nil
		}
	}
	return nil, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doGetRaw(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)

	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any, idempotencyKey string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// apiError extracts the upstream failure message from an error body. The
// message key varies like everything else in this feed.
func apiError(status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = firstNonEmpty(payload.Message, payload.Error, payload.Detail)
	}
	if msg == "" && len(body) > 0 && len(body) < 256 {
		msg = strings.TrimSpace(string(body))
	}
	return &APIError{Status: status, Message: msg}
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

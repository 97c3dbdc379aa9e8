package dslot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarcisiozf/dslot/slots"
)

const retryInterval = 30 * time.Second

var ErrNoHealthyEndpoint = errors.New("no healthy endpoints available")

// StatusError is returned when the server answers with a non 200 status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status code %d: %s", e.Code, e.Message)
}

type Option func(*Client) error

func WithEndpoint(endpoints ...string) Option {
	return func(c *Client) error {
		if len(endpoints) == 0 {
			return fmt.Errorf("no endpoints provided")
		}
		for _, e := range endpoints {
			e = strings.TrimSuffix(e, "/")
			if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
				e = "http://" + e
			}
			c.endpoints = append(c.endpoints, &endpoint{url: e, healthy: true})
		}
		return nil
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		if httpClient == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.httpClient = httpClient
		return nil
	}
}

type SlotResult struct {
	ID        string     `json:"id"`
	Algorithm string     `json:"algorithm"`
	Slots     int        `json:"slots"`
	Slot      slots.Slot `json:"slot"`
	Shard     string     `json:"shard,omitempty"`
}

type BatchSummary struct {
	Total       int     `json:"total"`
	Assigned    int     `json:"assigned"`
	Missing     int     `json:"missing"`
	UsedSlots   int     `json:"used_slots"`
	UnusedSlots []int   `json:"unused_slots"`
	Min         int     `json:"min"`
	Max         int     `json:"max"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stddev"`
}

type BatchResult struct {
	Algorithm   string             `json:"algorithm"`
	Slots       int                `json:"slots"`
	Assignments []slots.Assignment `json:"assignments"`
	Summary     BatchSummary       `json:"summary"`
	Saved       int                `json:"saved"`
}

type ServerInfo struct {
	RedisSlots  int          `json:"redis_slots"`
	FleetSlots  int          `json:"fleet_slots"`
	Algorithms  []string     `json:"algorithms"`
	Bands       []slots.Band `json:"bands"`
	Persistence bool         `json:"persistence"`
	Zookeeper   bool         `json:"zookeeper"`
}

type endpoint struct {
	url     string
	healthy bool
	retryIn time.Time
}

// Client talks to one or more dslot servers, skipping endpoints that failed
// recently.
type Client struct {
	mutex      sync.Mutex
	endpoints  []*endpoint
	httpClient *http.Client
}

func NewClient(options ...Option) (*Client, error) {
	client := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range options {
		if err := opt(client); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if len(client.endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints provided")
	}
	return client, nil
}

// Slot asks the server for the slot of id. n <= 0 uses the server default.
func (c *Client) Slot(ctx context.Context, algorithm, id string, n int) (SlotResult, error) {
	var result SlotResult
	path := "/slots/" + url.PathEscape(algorithm) + "/" + url.PathEscape(id)
	if n > 0 {
		path += "?slots=" + strconv.Itoa(n)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &result)
	return result, err
}

func (c *Client) Shard(ctx context.Context, slot int) (string, error) {
	var result struct {
		Shard string `json:"shard"`
	}
	err := c.do(ctx, http.MethodGet, "/shards/"+strconv.Itoa(slot), nil, &result)
	return result.Shard, err
}

func (c *Client) Batch(ctx context.Context, algorithm string, n int, ids []string) (*BatchResult, error) {
	query := url.Values{}
	query.Set("algorithm", algorithm)
	if n > 0 {
		query.Set("slots", strconv.Itoa(n))
	}
	var result BatchResult
	body := strings.Join(ids, "\n")
	if err := c.do(ctx, http.MethodPost, "/batch?"+query.Encode(), &body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Info(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := c.do(ctx, http.MethodGet, "/info", nil, &info)
	return info, err
}

// do tries the healthy endpoints in random order until one answers.
func (c *Client) do(ctx context.Context, method, path string, body *string, out any) error {
	var lastErr error
	for ep := range c.candidates() {
		var reader io.Reader
		if body != nil {
			reader = strings.NewReader(*body)
		}
		req, err := http.NewRequestWithContext(ctx, method, ep.url+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "text/plain")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.markUnhealthy(ep)
			lastErr = err
			continue
		}
		err = decodeResponse(resp, out)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.Code >= http.StatusInternalServerError {
				c.markUnhealthy(ep)
				lastErr = err
				continue
			}
		}
		c.markHealthy(ep)
		return err
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrNoHealthyEndpoint, lastErr)
	}
	return ErrNoHealthyEndpoint
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) candidates() iter.Seq[*endpoint] {
	c.mutex.Lock()
	now := time.Now()
	healthy := make([]*endpoint, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		if ep.healthy || !ep.retryIn.After(now) {
			healthy = append(healthy, ep)
		}
	}
	c.mutex.Unlock()

	return func(yield func(*endpoint) bool) {
		if len(healthy) == 0 {
			return
		}
		start := rand.Intn(len(healthy))
		for i := range healthy {
			if !yield(healthy[(start+i)%len(healthy)]) {
				return
			}
		}
	}
}

func (c *Client) markHealthy(ep *endpoint) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ep.healthy = true
}

func (c *Client) markUnhealthy(ep *endpoint) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ep.healthy = false
	ep.retryIn = time.Now().Add(retryInterval)
}

// Endpoints reports each configured endpoint with its health.
func (c *Client) Endpoints() map[string]bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make(map[string]bool, len(c.endpoints))
	for _, ep := range c.endpoints {
		out[ep.url] = ep.healthy
	}
	return out
}

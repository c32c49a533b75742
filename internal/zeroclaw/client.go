// Package zeroclaw speaks the agent process's HTTP control protocol:
// health checks, the pairing handshake, and the authenticated webhook used
// to proxy chat messages.
package zeroclaw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"zeroone.host/internal/config"
	"zeroone.host/internal/core/logger"
	"zeroone.host/internal/core/ports"
)

const (
	// gatewayPort is the fixed port the agent listens on inside its
	// container.
	gatewayPort = 42617

	defaultTimeout = 10 * time.Second
	// Message generation can be slow; the webhook call gets a long leash.
	webhookTimeout = 60 * time.Second

	pairMaxAttempts = 10
	pairMaxDelay    = 5 * time.Second
)

// Resolver decides, once at startup, how agent gateways are addressed: by
// container name on the shared network, or via loopback and the published
// host port.
type Resolver struct {
	topology config.Topology
}

func NewResolver(topology config.Topology) *Resolver {
	return &Resolver{topology: topology}
}

// Resolve returns the endpoint for an agent given its slug and published
// host port.
func (r *Resolver) Resolve(slug string, hostPort int) ports.Address {
	if r.topology == config.TopologyContainer {
		return ports.Address{Host: "zeroclaw-" + slug, Port: gatewayPort}
	}
	return ports.Address{Host: "127.0.0.1", Port: hostPort}
}

// Client implements ports.GatewayClient over plain HTTP.
type Client struct {
	http    *http.Client
	webhook *http.Client
	breaker *gobreaker.CircuitBreaker
	sleep   func(time.Duration) // swapped out in tests
}

var _ ports.GatewayClient = (*Client)(nil)

func NewClient() *Client {
	settings := gobreaker.Settings{
		Name:        "zeroclaw-webhook",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("webhook circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		webhook: &http.Client{Timeout: webhookTimeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		sleep:   time.Sleep,
	}
}

func url(addr ports.Address, path string) string {
	return fmt.Sprintf("http://%s:%d%s", addr.Host, addr.Port, path)
}

// CheckHealth returns true on any 2xx from GET /health. Network errors and
// other statuses mean unhealthy; callers poll this in a loop, so it never
// returns an error.
func (c *Client) CheckHealth(ctx context.Context, addr ports.Address) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url(addr, "/health"), nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Pair exchanges the 6-digit pairing code for a bearer token. The agent
// prints the code before its listener is bound, so early attempts can fail;
// retry with a linearly increasing, capped delay and surface only the last
// error.
func (c *Client) Pair(ctx context.Context, addr ports.Address, code string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= pairMaxAttempts; attempt++ {
		token, err := c.pairOnce(ctx, addr, code)
		if err == nil {
			return token, nil
		}
		lastErr = err

		if attempt < pairMaxAttempts {
			delay := time.Duration(attempt) * time.Second
			if delay > pairMaxDelay {
				delay = pairMaxDelay
			}
			logger.Debug("pairing attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
				c.sleep(delay)
			}
		}
	}

	return "", fmt.Errorf("pairing failed after %d attempts: %w", pairMaxAttempts, lastErr)
}

func (c *Client) pairOnce(ctx context.Context, addr ports.Address, code string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url(addr, "/pair"), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Pairing-Code", code)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("pairing rejected (%d): %s", resp.StatusCode, body)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding pair response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("pair response missing token")
	}
	return out.Token, nil
}

// SendMessage proxies a chat message through POST /webhook with bearer
// auth. Non-2xx responses surface the response body. The call runs behind a
// circuit breaker so a hung agent doesn't pile up blocked requests.
func (c *Client) SendMessage(ctx context.Context, addr ports.Address, token, message string) (map[string]any, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		return c.sendOnce(ctx, addr, token, message)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("agent webhook unavailable: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func (c *Client) sendOnce(ctx context.Context, addr ports.Address, token, message string) (map[string]any, error) {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url(addr, "/webhook"), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.webhook.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("webhook failed (%d): %s", resp.StatusCode, body)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding webhook response: %w", err)
	}
	return out, nil
}

// Package api is the device side of the doorbell backend protocol.
package api

import (
	"context"
	"time"

	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/urls"
)

// LastCallLayout formats a ring time when the backend sends no label.
const LastCallLayout = "Jan 02 15:04"

// RingResult is the parsed ring acknowledgement. Both fields are optional.
type RingResult struct {
	ServerTime time.Time
	LastCall   string
}

type ringResponse struct {
	Timestamp *int64 `json:"timestamp"`
	LastCall  string `json:"last_call"`
}

type statusResponse struct {
	Open bool `json:"open"`
}

// Endpoints are the backend paths used by the controller.
type Endpoints struct {
	BaseURL    string
	RingPath   string
	StatusPath string
}

// Client calls the backend through the board's HTTP boundary.
type Client struct {
	http      hal.HTTP
	ringURL   string
	statusURL string
}

func NewClient(client hal.HTTP, ep Endpoints) *Client {
	if ep.BaseURL == "" {
		ep.BaseURL = urls.DefaultBaseURL
	}
	if ep.RingPath == "" {
		ep.RingPath = urls.RingPath
	}
	if ep.StatusPath == "" {
		ep.StatusPath = urls.StatusPath
	}
	return &Client{
		http:      client,
		ringURL:   urls.Join(ep.BaseURL, ep.RingPath),
		statusURL: urls.Join(ep.BaseURL, ep.StatusPath),
	}
}

// Ring reports a confirmed ring. A 2xx with an unparseable body still
// counts as delivered and yields an empty result.
func (c *Client) Ring(ctx context.Context) (*RingResult, error) {
	resp, err := c.http.Post(ctx, c.ringURL, nil)
	if err != nil {
		return nil, err
	}

	var body ringResponse
	if err := resp.JSON(&body); err != nil {
		return &RingResult{}, nil
	}

	result := &RingResult{LastCall: body.LastCall}
	if body.Timestamp != nil && *body.Timestamp > 0 {
		result.ServerTime = time.Unix(*body.Timestamp, 0)
		if result.LastCall == "" {
			result.LastCall = result.ServerTime.Format(LastCallLayout)
		}
	}
	return result, nil
}

// Status asks whether the door has been commanded open.
func (c *Client) Status(ctx context.Context) (bool, error) {
	resp, err := c.http.Post(ctx, c.statusURL, nil)
	if err != nil {
		return false, err
	}

	var body statusResponse
	if err := resp.JSON(&body); err != nil {
		return false, err
	}
	return body.Open, nil
}

// RingURL and StatusURL expose the resolved endpoints.
func (c *Client) RingURL() string   { return c.ringURL }
func (c *Client) StatusURL() string { return c.statusURL }

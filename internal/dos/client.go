package dos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPort is the HTTP control-plane port of DOS devices
	DefaultPort = 80

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Second

	// maxBodySize bounds how much of a response is read
	maxBodySize = 1 << 20
)

// Client performs typed DOS API calls against one device address.
// A Client is safe for concurrent use.
type Client struct {
	// BaseURL is the base URL for the device (e.g., "http://192.168.1.20:80")
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// NewClient creates a client for a device host (IP or host name) and port
func NewClient(host string, port int) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return NewClientWithURL("http://" + net.JoinHostPort(host, strconv.Itoa(port)))
}

// NewClientWithURL creates a client with a full base URL
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// get performs a GET and returns the body of a 200 response
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	status, body, err := c.getRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, NewHTTPError(status, path)
	}
	return body, nil
}

// getRaw performs a GET and returns the status code and body whatever the status
func (c *Client) getRaw(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return 0, nil, &APIError{Type: ErrTypeNetwork, Message: "failed to create request", Endpoint: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, ClassifyNetworkError(err, path)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, ClassifyNetworkError(err, path)
	}
	return resp.StatusCode, body, nil
}

// post performs a POST with an optional JSON payload; only 200 is success
func (c *Client) post(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &APIError{Type: ErrTypeValidation, Message: "body was malformed", Endpoint: path, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return &APIError{Type: ErrTypeNetwork, Message: "failed to create request", Endpoint: path, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ClassifyNetworkError(err, path)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode != http.StatusOK {
		// Devices explain refused commands with an error document
		if errBody, ok := decodeErrorBody(respBody); ok {
			apiErr := NewDeviceError(path, errBody)
			apiErr.StatusCode = resp.StatusCode
			return apiErr
		}
		return NewHTTPError(resp.StatusCode, path)
	}
	return nil
}

// DeviceInfo fetches and validates the device information document.
// It performs exactly one request and never retries.
func (c *Client) DeviceInfo(ctx context.Context) (DeviceInformation, error) {
	body, err := c.get(ctx, PathDeviceInfo)
	if err != nil {
		return DeviceInformation{}, err
	}
	return DecodeDeviceInformation(body)
}

// Mute mutes the current source of the group
func (c *Client) Mute(ctx context.Context) error {
	return c.post(ctx, PathMute, nil)
}

// Unmute unmutes the current source of the group
func (c *Client) Unmute(ctx context.Context) error {
	return c.post(ctx, PathUnmute, nil)
}

// Play resumes playback
func (c *Client) Play(ctx context.Context) error {
	return c.post(ctx, PathPlay, nil)
}

// Pause pauses playback
func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, PathPause, nil)
}

// Next skips to the next track
func (c *Client) Next(ctx context.Context) error {
	return c.post(ctx, PathNext, nil)
}

// Previous goes back to the previous track
func (c *Client) Previous(ctx context.Context) error {
	return c.post(ctx, PathPrevious, nil)
}

// VolumeUp raises the volume by one device-defined step
func (c *Client) VolumeUp(ctx context.Context) error {
	return c.post(ctx, PathVolumeUp, nil)
}

// VolumeDown lowers the volume by one device-defined step
func (c *Client) VolumeDown(ctx context.Context) error {
	return c.post(ctx, PathVolumeDown, nil)
}

// PowerOff turns the system off
func (c *Client) PowerOff(ctx context.Context) error {
	return c.post(ctx, PathPowerOff, nil)
}

// ClampVolume limits a volume level to 0..100
func ClampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}

// SetVolume sets the volume, clamped to 0..100
func (c *Client) SetVolume(ctx context.Context, volume int) error {
	return c.post(ctx, PathVolume, map[string]int{"volume": ClampVolume(volume)})
}

// SetNightMode turns night mode on or off
func (c *Client) SetNightMode(ctx context.Context, enabled bool) error {
	mode := "off"
	if enabled {
		mode = "on"
	}
	return c.post(ctx, PathNightMode, map[string]string{"nightMode": mode})
}

// SelectSource starts playback on the given source
func (c *Client) SelectSource(ctx context.Context, source Source) error {
	if source.SourceID == "" {
		return &APIError{Type: ErrTypeValidation, Message: "source has no sourceId"}
	}
	return c.post(ctx, SelectSourcePath(source.SourceID), nil)
}

// Volume returns the current volume level
func (c *Client) Volume(ctx context.Context) (int, error) {
	body, err := c.get(ctx, PathVolume)
	if err != nil {
		return 0, err
	}
	return DecodeVolume(body)
}

// NightMode reports whether night mode is enabled
func (c *Client) NightMode(ctx context.Context) (bool, error) {
	body, err := c.get(ctx, PathNightMode)
	if err != nil {
		return false, err
	}
	return DecodeNightMode(body)
}

// Sources lists the sources available to the group
func (c *Client) Sources(ctx context.Context) ([]Source, error) {
	body, err := c.get(ctx, PathSources)
	if err != nil {
		return nil, err
	}
	return DecodeSources(body)
}

// State returns the playback state of the group. It returns nil without an
// error when the device answers with an error document, which it does when no
// source is active.
func (c *Client) State(ctx context.Context) (*GroupState, error) {
	status, body, err := c.getRaw(ctx, PathCurrentSource)
	if err != nil {
		return nil, err
	}
	state, errBody, err := DecodeCurrentSource(body)
	if err != nil {
		if status != http.StatusOK {
			return nil, NewHTTPError(status, PathCurrentSource)
		}
		return nil, err
	}
	if errBody != nil {
		return nil, nil
	}
	return state, nil
}

// String returns a human-readable description of the client
func (c *Client) String() string {
	return fmt.Sprintf("DOS client for %s", c.BaseURL)
}

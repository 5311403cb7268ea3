package wiim

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout = 10 * time.Second

	// Older firmwares expose the HTTPS API on 4443 instead of 443.
	fallbackPort = "4443"
)

// Client talks to a single speaker over its LinkPlay HTTP command surface.
//
// Each client owns an exclusive request slot: at most one request is in
// flight against the device at any time, and a second request queues behind
// it. Requests to different devices (different clients) run in parallel.
type Client struct {
	host       string
	httpClient *http.Client

	mu sync.Mutex // request slot
	// baseURLs are the candidate endpoints, preferred first. When the host
	// carries no explicit port the fallback port is a second candidate and
	// the answering endpoint is promoted to the front.
	baseURLs []string
}

// NewClient creates a client for the device at host (IP or host[:port]).
func NewClient(host string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}

	// Speakers ship a self-signed LinkPlay certificate.
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	baseURLs := []string{"https://" + host}
	if !strings.Contains(host, ":") {
		baseURLs = append(baseURLs, "https://"+host+":"+fallbackPort)
	}

	return &Client{
		host:     host,
		baseURLs: baseURLs,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Host returns the device's network address.
func (c *Client) Host() string {
	return c.host
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// call performs one GET against the command endpoint and returns the raw
// body. It holds the request slot for the duration of the request. A
// connection failure on the preferred endpoint falls through to the next
// candidate; the endpoint that answers is remembered.
func (c *Client) call(ctx context.Context, command string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for i, base := range c.baseURLs {
		body, err := c.get(ctx, base, command)
		if err == nil {
			if i > 0 {
				c.baseURLs[0], c.baseURLs[i] = c.baseURLs[i], c.baseURLs[0]
				log.Debug().Str("host", c.host).Str("endpoint", c.baseURLs[0]).Msg("Switched device endpoint")
			}
			return body, nil
		}
		lastErr = err
		// Only connection failures warrant trying another port. The device
		// answered in every other case.
		if !errors.Is(err, ErrNetwork) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, base, command string) ([]byte, error) {
	url := fmt.Sprintf("%s/httpapi.asp?command=%s", base, command)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	log.Debug().Str("host", c.host).Str("command", command).Msg("Device request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d from %q", ErrHTTPStatus, resp.StatusCode, command)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return body, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeoutErr) && timeoutErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// callOK performs a command whose only valid answer is the literal body
// "OK". Anything else from a 2xx response is a rejected command.
func (c *Client) callOK(ctx context.Context, command string) error {
	body, err := c.call(ctx, command)
	if err != nil {
		return err
	}
	if reply := strings.TrimSpace(string(body)); reply != "OK" {
		return fmt.Errorf("%w: %q answered %q", ErrCommandRejected, command, reply)
	}
	return nil
}

// Status fetches the full device status: playback state from
// getPlayerStatusEx (getPlayerStatus on older firmwares) merged with
// identity and role hints from getStatusEx.
func (c *Client) Status(ctx context.Context) (*StatusSnapshot, error) {
	playerBody, err := c.call(ctx, cmdPlayerStatus)
	if err != nil && errors.Is(err, ErrHTTPStatus) {
		// Older firmwares only expose the non-Ex variant.
		playerBody, err = c.call(ctx, cmdPlayerStatusLegacy)
	}
	if err != nil {
		return nil, err
	}

	deviceBody, err := c.call(ctx, cmdDeviceStatus)
	if err != nil {
		return nil, err
	}

	return parseStatus(playerBody, deviceBody)
}

// SlaveList fetches the device's group membership report. An empty list is
// a successful result, not an error.
func (c *Client) SlaveList(ctx context.Context) (*SlaveList, error) {
	body, err := c.call(ctx, cmdSlaveList)
	if err != nil {
		return nil, err
	}
	return parseSlaveList(body)
}

// Transport controls.

func (c *Client) Play(ctx context.Context) error {
	return c.callOK(ctx, cmdPlay)
}

func (c *Client) Pause(ctx context.Context) error {
	return c.callOK(ctx, cmdPause)
}

func (c *Client) Stop(ctx context.Context) error {
	return c.callOK(ctx, cmdStop)
}

// SetVolume sets the device volume from a canonical 0.0-1.0 level. Values
// outside the range are clamped.
func (c *Client) SetVolume(ctx context.Context, level float64) error {
	return c.callOK(ctx, volumeCommand(DeviceVolume(level)))
}

// SetMute sets the device mute state.
func (c *Client) SetMute(ctx context.Context, mute bool) error {
	return c.callOK(ctx, muteCommand(mute))
}

// PlayPreset triggers one of the six hardware preset keys.
func (c *Client) PlayPreset(ctx context.Context, preset int) error {
	if preset < 1 || preset > 6 {
		return fmt.Errorf("preset must be between 1 and 6, got %d", preset)
	}
	return c.callOK(ctx, presetCommand(preset))
}

// Multiroom controls. These mutate remote device state only; the local
// view catches up on the next poll.

func (c *Client) CreateGroup(ctx context.Context) error {
	return c.callOK(ctx, cmdGroupCreate)
}

func (c *Client) JoinGroup(ctx context.Context, masterHost string) error {
	return c.callOK(ctx, joinGroupCommand(masterHost))
}

func (c *Client) LeaveGroup(ctx context.Context) error {
	return c.callOK(ctx, cmdGroupExit)
}

func (c *Client) DisbandGroup(ctx context.Context) error {
	return c.callOK(ctx, cmdGroupDelete)
}

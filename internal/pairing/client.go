package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/provision"
)

var (
	// ErrWiFiFailed means the device could not join the network.
	ErrWiFiFailed = errors.New("device could not join the network")
	// ErrSaveFailed means the device joined but could not store the credentials.
	ErrSaveFailed = errors.New("device could not save credentials")
)

// RejectedError is an error reply from the device.
type RejectedError struct {
	UUID    string
	Message string
}

func (e *RejectedError) Error() string {
	return "device rejected request: " + e.Message
}

// Credentials are what a pairing peer hands to the device.
type Credentials struct {
	SSID     string
	Password string
	APIKey   string
}

// Validate checks every value against the device's buffer limits.
func (c Credentials) Validate() error {
	for _, v := range []struct {
		field provision.Field
		value string
	}{
		{provision.FieldSSID, c.SSID},
		{provision.FieldPassword, c.Password},
		{provision.FieldAPIKey, c.APIKey},
	} {
		if limit := provision.MaxLen(v.field); len(v.value) > limit {
			return fmt.Errorf("%s is %d bytes, limit is %d", v.field, len(v.value), limit)
		}
	}
	return nil
}

// DeviceInfo is the readable part of the pairing service.
type DeviceInfo struct {
	ID       string
	Firmware string
}

// Client drives a device's pairing bridge the way a phone app would.
type Client struct {
	ws *websocket.Conn

	// ChunkSize is the largest write sent in one message.
	ChunkSize int
	// Timeout bounds each exchange when ctx carries no deadline.
	Timeout time.Duration
}

// Dial connects to target, either a ws:// URL or host:port.
func Dial(ctx context.Context, target string) (*Client, error) {
	url := target
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + target + DefaultPath
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	ws.SetReadLimit(maxMessageSize)

	return &Client{
		ws:        ws,
		ChunkSize: DefaultChunkSize,
		Timeout:   30 * time.Second,
	}, nil
}

func (c *Client) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

// ReadDeviceInfo reads the device id and firmware version.
func (c *Client) ReadDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	id, err := c.read(ctx, provision.DeviceIDChar)
	if err != nil {
		return nil, err
	}
	fw, err := c.read(ctx, provision.FirmwareChar)
	if err != nil {
		return nil, err
	}
	return &DeviceInfo{ID: id, Firmware: fw}, nil
}

// Provision writes creds in chunks, sends the connect command and waits
// for the outcome. It returns the device's address on the new network when
// the device reports one.
func (c *Client) Provision(ctx context.Context, creds Credentials) (string, error) {
	if creds.SSID == "" {
		return "", errors.New("ssid is required")
	}
	if err := creds.Validate(); err != nil {
		return "", err
	}
	writes := []struct {
		field provision.Field
		value string
	}{
		{provision.FieldSSID, creds.SSID},
		{provision.FieldPassword, creds.Password},
		{provision.FieldAPIKey, creds.APIKey},
	}
	for _, w := range writes {
		if err := c.writeField(w.field, []byte(w.value)); err != nil {
			return "", err
		}
	}

	// The command goes out in one message; a split command is not recognised.
	cmd, ok := provision.CharacteristicFor(provision.FieldCommand)
	if !ok {
		return "", errors.New("no command characteristic")
	}
	if err := c.send(writeMessage(cmd.UUID, []byte(provision.CommandConnect))); err != nil {
		return "", err
	}

	for {
		msg, err := c.next(ctx)
		if err != nil {
			return "", err
		}
		switch msg.Op {
		case OpError:
			return "", &RejectedError{UUID: msg.UUID, Message: msg.Error}
		case OpNotify:
			status := string(msg.Data)
			logging.Debug("Pairing status", zap.String("status", status))
			switch {
			case status == provision.StatusConnecting:
				continue
			case status == provision.StatusConnected:
				return "", nil
			case strings.HasPrefix(status, provision.StatusConnected+":"):
				return strings.TrimPrefix(status, provision.StatusConnected+":"), nil
			case status == provision.StatusSaveFailed:
				return "", ErrSaveFailed
			case status == provision.StatusFailed:
				return "", ErrWiFiFailed
			default:
				return "", fmt.Errorf("unexpected status %q", status)
			}
		}
	}
}

// writeField sends data to the characteristic feeding f. Empty values are
// not written.
func (c *Client) writeField(f provision.Field, data []byte) error {
	char, ok := provision.CharacteristicFor(f)
	if !ok {
		return fmt.Errorf("no characteristic for %s", f)
	}
	return c.writeChunks(char.UUID, data)
}

func (c *Client) writeChunks(id uuid.UUID, data []byte) error {
	size := c.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		if err := c.send(writeMessage(id, data[start:end])); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) read(ctx context.Context, id uuid.UUID) (string, error) {
	if err := c.send(readMessage(id)); err != nil {
		return "", err
	}
	for {
		msg, err := c.next(ctx)
		if err != nil {
			return "", err
		}
		switch {
		case msg.Op == OpError:
			return "", &RejectedError{UUID: msg.UUID, Message: msg.Error}
		case msg.Op == OpValue && msg.UUID == id.String():
			return string(msg.Data), nil
		}
	}
}

func (c *Client) send(msg Message) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Op, err)
	}
	return nil
}

func (c *Client) next(ctx context.Context) (Message, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.Timeout)
	}
	_ = c.ws.SetReadDeadline(deadline)

	var msg Message
	if err := c.ws.ReadJSON(&msg); err != nil {
		if ctx.Err() != nil {
			return msg, ctx.Err()
		}
		return msg, fmt.Errorf("failed to read from device: %w", err)
	}
	return msg, nil
}

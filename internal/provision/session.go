package provision

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/logging"
)

// Field is a writable credential attribute.
type Field int

const (
	FieldNone Field = iota
	FieldSSID
	FieldPassword
	FieldAPIKey
	FieldCommand
)

func (f Field) String() string {
	switch f {
	case FieldSSID:
		return "ssid"
	case FieldPassword:
		return "password"
	case FieldAPIKey:
		return "api_key"
	case FieldCommand:
		return "command"
	default:
		return "none"
	}
}

// MaxLen is the buffer ceiling the transport enforces for f.
func MaxLen(f Field) int {
	switch f {
	case FieldSSID, FieldPassword:
		return 64
	case FieldAPIKey:
		return 256
	case FieldCommand:
		return 16
	default:
		return 0
	}
}

// State of the pairing session.
type State int

const (
	StateAdvertising State = iota
	StatePaired
	StateCollecting
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateAdvertising:
		return "ADVERTISING"
	case StatePaired:
		return "PAIRED"
	case StateCollecting:
		return "COLLECTING"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// CommandConnect is the only meaningful value of the command attribute.
const CommandConnect = "connect"

// Status notifications sent to peers.
const (
	StatusConnecting = "connecting"
	StatusConnected  = "connected"
	StatusFailed     = "failed"
	StatusSaveFailed = "save_failed"
)

// DefaultTick is the poll interval of Wait.
const DefaultTick = 200 * time.Millisecond

// Channel is the short-range transport that delivers pairing events.
// Start binds the transport to the session; events are then delivered by
// calling OnConnect, OnDisconnect and OnWrite from the transport's own
// goroutines.
type Channel interface {
	Start(s *Session) error
	Advertise(name string) error
	Notify(peer string, msg string)
	// Stop must not return while a callback into the session is running.
	Stop() error
}

// Config holds the device details exposed while pairing.
type Config struct {
	DeviceID        string
	FirmwareVersion string
	ConnectTimeout  time.Duration
}

// AdvertisingName returns the advertised name for a device id.
func AdvertisingName(deviceID string) string {
	suffix := deviceID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return "Picobell-" + suffix
}

// Session collects credentials from pairing peers. Its state is written by
// transport callbacks and read by the control loop, so all of it sits
// behind mu. Connect attempts are serialised by connectMu.
type Session struct {
	wifi  hal.WiFi
	store hal.CredentialStore
	cfg   Config

	mu          sync.Mutex
	channel     Channel
	state       State
	buffers     map[Field][]byte
	stale       map[Field]bool
	peers       map[string]struct{}
	provisioned bool
	lastStatus  string

	connectMu sync.Mutex
}

func NewSession(wifi hal.WiFi, store hal.CredentialStore, cfg Config) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 20 * time.Second
	}
	return &Session{
		wifi:    wifi,
		store:   store,
		cfg:     cfg,
		buffers: make(map[Field][]byte),
		stale:   make(map[Field]bool),
		peers:   make(map[string]struct{}),
	}
}

// Open starts the channel and begins advertising.
func (s *Session) Open(ch Channel) error {
	s.mu.Lock()
	s.channel = ch
	s.state = StateAdvertising
	s.mu.Unlock()

	if err := ch.Start(s); err != nil {
		return err
	}
	return ch.Advertise(s.Name())
}

// Close stops the channel. Channel.Stop returns only after in-flight
// callbacks have returned, so Provisioned is final once Close returns.
func (s *Session) Close() error {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Stop()
}

// Name is the advertised name.
func (s *Session) Name() string {
	return AdvertisingName(s.cfg.DeviceID)
}

func (s *Session) DeviceID() string {
	return s.cfg.DeviceID
}

func (s *Session) FirmwareVersion() string {
	return s.cfg.FirmwareVersion
}

// OnConnect registers a peer.
func (s *Session) OnConnect(peer string) {
	s.mu.Lock()
	s.peers[peer] = struct{}{}
	if s.state == StateAdvertising {
		s.state = StatePaired
	}
	s.mu.Unlock()

	logging.LogPairingEvent(peer, "connected")
}

// OnDisconnect removes a peer and restarts advertising. Collected buffers
// survive so a peer can reconnect and finish.
func (s *Session) OnDisconnect(peer string) {
	s.mu.Lock()
	delete(s.peers, peer)
	if len(s.peers) == 0 && s.state != StateComplete {
		s.state = StateAdvertising
	}
	ch := s.channel
	s.mu.Unlock()

	logging.LogPairingEvent(peer, "disconnected")
	if ch == nil {
		return
	}
	if err := ch.Advertise(s.Name()); err != nil {
		logging.Warn("Failed to restart advertising", zap.Error(err))
	}
}

// OnWrite handles a write to f. Credential writes append to the field's
// buffer; after a failed connect the first write to a field replaces it.
func (s *Session) OnWrite(peer string, f Field, data []byte) {
	logging.LogRawBytes("Pairing write "+f.String(), data)

	if f == FieldCommand {
		cmd := strings.TrimSpace(strings.Trim(string(data), "\x00"))
		if cmd != CommandConnect {
			logging.LogPairingEvent(peer, "unknown_command", zap.String("command", cmd))
			return
		}
		s.connect(peer)
		return
	}
	if MaxLen(f) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateComplete {
		return
	}
	if s.stale[f] {
		s.buffers[f] = nil
		s.stale[f] = false
	}
	s.buffers[f] = append(s.buffers[f], data...)
	s.state = StateCollecting
}

// BufferedLen is the length the next write to f is appended to.
func (s *Session) BufferedLen(f Field) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale[f] {
		return 0
	}
	return len(s.buffers[f])
}

// Value returns the accumulated value of f.
func (s *Session) Value(f Field) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buffers[f])
}

func (s *Session) Provisioned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provisioned
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peers returns the number of connected peers.
func (s *Session) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// LastStatus returns the last status notification sent.
func (s *Session) LastStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

func (s *Session) credentials() hal.Credentials {
	return hal.Credentials{
		SSID:     string(s.buffers[FieldSSID]),
		Password: string(s.buffers[FieldPassword]),
		APIKey:   string(s.buffers[FieldAPIKey]),
	}
}

func (s *Session) connect(peer string) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.provisioned {
		s.mu.Unlock()
		return
	}
	creds := s.credentials()
	s.state = StateCollecting
	s.mu.Unlock()

	logging.LogPairingEvent(peer, "connect_requested", zap.String("ssid", creds.SSID))
	s.notifyAll(StatusConnecting)

	if creds.SSID == "" || !s.wifi.Connect(creds.SSID, creds.Password, s.cfg.ConnectTimeout) {
		s.fail(StatusFailed)
		return
	}

	if err := s.store.Save(creds); err != nil {
		logging.Error("Failed to save credentials", zap.Error(err))
		s.fail(StatusSaveFailed)
		return
	}

	status := StatusConnected
	if a, ok := s.wifi.(hal.Addresser); ok && a.Address() != "" {
		status = StatusConnected + ":" + a.Address()
	}

	s.mu.Lock()
	s.provisioned = true
	s.state = StateComplete
	s.mu.Unlock()

	logging.LogPairingEvent(peer, "provisioned", zap.String("ssid", creds.SSID))
	s.notifyAll(status)
}

func (s *Session) fail(status string) {
	s.mu.Lock()
	for _, f := range []Field{FieldSSID, FieldPassword, FieldAPIKey} {
		s.stale[f] = true
	}
	s.mu.Unlock()
	s.notifyAll(status)
}

func (s *Session) notifyAll(msg string) {
	s.mu.Lock()
	s.lastStatus = msg
	ch := s.channel
	peers := make([]string, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	if ch == nil {
		return
	}
	for _, p := range peers {
		ch.Notify(p, msg)
	}
}

// Wait polls Provisioned every tick until it is set, the timeout elapses on
// clock, or ctx is done. each, when not nil, runs once per tick.
func (s *Session) Wait(ctx context.Context, clock hal.Clock, timeout, tick time.Duration, each func()) bool {
	if tick <= 0 {
		tick = DefaultTick
	}
	start := clock.Now()
	for {
		if s.Provisioned() {
			return true
		}
		if ctx.Err() != nil || hal.Since(clock, start) >= timeout {
			return false
		}
		if each != nil {
			each()
		}
		clock.Sleep(tick)
	}
}

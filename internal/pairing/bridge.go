package pairing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/provision"
)

// Advertiser announces the bridge on the local network.
type Advertiser interface {
	Advertise(name string, port int, txt []string) error
	Shutdown()
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// Listen is the TCP address of the bridge, e.g. ":8765".
	Listen string
	// Path defaults to DefaultPath.
	Path string
	// Advertiser is optional; without one the bridge is reachable only by
	// address.
	Advertiser Advertiser
}

type peerConn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (p *peerConn) send(msg Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return p.ws.WriteJSON(msg)
}

// Bridge exposes a pairing session over a websocket. It implements
// provision.Channel and can be started again after Stop.
type Bridge struct {
	cfg      BridgeConfig
	upgrader websocket.Upgrader

	mu       sync.Mutex
	session  *provision.Session
	listener net.Listener
	server   *http.Server
	conns    map[string]*peerConn
	stopped  bool
	wg       sync.WaitGroup
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8765"
	}
	return &Bridge{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*peerConn),
	}
}

// Start binds the listener and serves s.
func (b *Bridge) Start(s *provision.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener != nil {
		return errors.New("pairing bridge already started")
	}

	ln, err := net.Listen("tcp", b.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.cfg.Listen, err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(b.cfg.Path, b.handlePair)

	b.session = s
	b.listener = ln
	b.stopped = false
	b.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := b.server
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Pairing bridge stopped", zap.Error(err))
		}
	}()

	logging.Info("Pairing bridge listening", zap.String("addr", ln.Addr().String()), zap.String("path", b.cfg.Path))
	return nil
}

// Addr is the bound address, or "" when not started.
func (b *Bridge) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Advertise (re)announces the bridge under name. It is a no-op once the
// bridge is stopped.
func (b *Bridge) Advertise(name string) error {
	b.mu.Lock()
	if b.stopped || b.listener == nil {
		b.mu.Unlock()
		return nil
	}
	port := b.listener.Addr().(*net.TCPAddr).Port
	txt := []string{"path=" + b.cfg.Path}
	if b.session != nil {
		txt = append([]string{
			"id=" + b.session.DeviceID(),
			"fw=" + b.session.FirmwareVersion(),
		}, txt...)
	}
	b.mu.Unlock()

	if b.cfg.Advertiser == nil {
		logging.Debug("No advertiser configured", zap.String("name", name), zap.Int("port", port))
		return nil
	}
	return b.cfg.Advertiser.Advertise(name, port, txt)
}

// Notify sends a status notification to one peer.
func (b *Bridge) Notify(peer string, msg string) {
	b.mu.Lock()
	pc, ok := b.conns[peer]
	b.mu.Unlock()
	if !ok {
		return
	}
	if err := pc.send(Message{Op: OpNotify, UUID: provision.StatusChar.String(), Data: []byte(msg)}); err != nil {
		logging.Debug("Notify failed", zap.String("peer", peer), zap.Error(err))
	}
}

// Stop closes every peer, stops serving and withdraws the advertisement.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.listener == nil {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	server := b.server
	conns := make([]*peerConn, 0, len(b.conns))
	for _, pc := range b.conns {
		conns = append(conns, pc)
	}
	b.mu.Unlock()

	for _, pc := range conns {
		_ = pc.ws.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := server.Shutdown(ctx)

	b.wg.Wait()
	if b.cfg.Advertiser != nil {
		b.cfg.Advertiser.Shutdown()
	}

	b.mu.Lock()
	b.listener = nil
	b.server = nil
	b.session = nil
	b.mu.Unlock()

	logging.Info("Pairing bridge stopped")
	return err
}

func (b *Bridge) handlePair(c *gin.Context) {
	ws, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn("Pairing upgrade failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(maxMessageSize)

	pc := &peerConn{id: uuid.NewString(), ws: ws}

	b.mu.Lock()
	if b.stopped || b.session == nil {
		b.mu.Unlock()
		_ = ws.Close()
		return
	}
	session := b.session
	b.conns[pc.id] = pc
	b.wg.Add(1)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, pc.id)
		b.mu.Unlock()
		_ = ws.Close()
		session.OnDisconnect(pc.id)
		b.wg.Done()
	}()

	logging.Debug("Pairing peer connected", zap.String("peer", pc.id), zap.String("remote_addr", c.Request.RemoteAddr))
	session.OnConnect(pc.id)

	for {
		_ = ws.SetReadDeadline(time.Now().Add(idleTimeout))
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!strings.Contains(err.Error(), "use of closed network connection") {
				logging.Debug("Pairing peer read ended", zap.String("peer", pc.id), zap.Error(err))
			}
			return
		}
		if reply, ok := b.handle(session, pc.id, msg); ok {
			if err := pc.send(reply); err != nil {
				logging.Debug("Reply failed", zap.String("peer", pc.id), zap.Error(err))
				return
			}
		}
	}
}

// handle applies one request. It returns a reply when the request needs
// one.
func (b *Bridge) handle(s *provision.Session, peer string, msg Message) (Message, bool) {
	id, err := uuid.Parse(msg.UUID)
	if err != nil {
		return errorReply(msg.UUID, "invalid uuid"), true
	}
	char, ok := provision.Lookup(id)
	if !ok {
		return errorReply(msg.UUID, "unknown characteristic"), true
	}

	switch msg.Op {
	case OpWrite:
		if char.Props&provision.PropWrite == 0 {
			return errorReply(msg.UUID, char.Name+" is not writable"), true
		}
		limit := provision.MaxLen(char.Field)
		if char.Field == provision.FieldCommand {
			if len(msg.Data) > limit {
				return errorReply(msg.UUID, "command too long"), true
			}
		} else if s.BufferedLen(char.Field)+len(msg.Data) > limit {
			logging.LogPairingEvent(peer, "write_rejected", zap.String("field", char.Name))
			return errorReply(msg.UUID, fmt.Sprintf("%s exceeds %d bytes", char.Name, limit)), true
		}
		s.OnWrite(peer, char.Field, msg.Data)
		return Message{}, false

	case OpRead:
		if char.Props&provision.PropRead == 0 {
			return errorReply(msg.UUID, char.Name+" is not readable"), true
		}
		var value string
		switch char.UUID {
		case provision.DeviceIDChar:
			value = s.DeviceID()
		case provision.FirmwareChar:
			value = s.FirmwareVersion()
		}
		return Message{Op: OpValue, UUID: msg.UUID, Data: []byte(value)}, true

	default:
		return errorReply(msg.UUID, "unknown op "+msg.Op), true
	}
}

func errorReply(id, text string) Message {
	return Message{Op: OpError, UUID: id, Error: text}
}

// Package haltest provides in-memory fakes of the hardware boundary.
// The clock is virtual: Sleep advances it instantly, so control-loop tests
// never wait in real time.
package haltest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/jonasfh/picobell/internal/hal"
)

// Epoch is the start time of every fake clock created by NewBoard.
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// Clock is a virtual clock.
type Clock struct {
	mu        sync.Mutex
	now       time.Time
	slept     time.Duration
	lowPower  int
	synced    []time.Time
	onAdvance func(now time.Time)
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	c.Advance(d)
}

func (c *Clock) LowPowerSleep(d time.Duration) {
	c.mu.Lock()
	c.lowPower++
	c.mu.Unlock()
	c.Advance(d)
}

// Advance moves the clock forward and runs the OnAdvance hook.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	now := c.now
	hook := c.onAdvance
	c.mu.Unlock()

	if hook != nil {
		hook(now)
	}
}

// OnAdvance registers a hook called after every advance.
func (c *Clock) OnAdvance(fn func(now time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAdvance = fn
}

func (c *Clock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced = append(c.synced, t)
}

// Slept returns the total time spent sleeping.
func (c *Clock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// LowPowerSleeps returns how many low-power sleeps were taken.
func (c *Clock) LowPowerSleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lowPower
}

// Synced returns the times passed to SetTime.
func (c *Clock) Synced() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.synced...)
}

// Write is one recorded output change.
type Write struct {
	Pin   hal.Pin
	Value bool
	At    time.Time
}

// GPIO returns queued samples per pin, then the pin's steady level.
type GPIO struct {
	mu           sync.Mutex
	clock        hal.Clock
	digital      map[hal.Pin][]bool
	digitalLevel map[hal.Pin]bool
	analog       map[hal.Pin][]uint16
	analogLevel  map[hal.Pin]uint16
	reads        map[hal.Pin]int
	writes       []Write
}

// NewGPIO creates a GPIO whose writes are stamped with clock (may be nil).
func NewGPIO(clock hal.Clock) *GPIO {
	return &GPIO{
		clock:        clock,
		digital:      make(map[hal.Pin][]bool),
		digitalLevel: make(map[hal.Pin]bool),
		analog:       make(map[hal.Pin][]uint16),
		analogLevel:  make(map[hal.Pin]uint16),
		reads:        make(map[hal.Pin]int),
	}
}

// QueueDigital appends samples returned by the next reads of pin.
func (g *GPIO) QueueDigital(pin hal.Pin, values ...bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.digital[pin] = append(g.digital[pin], values...)
}

// SetDigital sets the level returned once the queue for pin is empty.
func (g *GPIO) SetDigital(pin hal.Pin, value bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.digitalLevel[pin] = value
}

func (g *GPIO) QueueAnalog(pin hal.Pin, values ...uint16) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.analog[pin] = append(g.analog[pin], values...)
}

func (g *GPIO) SetAnalog(pin hal.Pin, value uint16) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.analogLevel[pin] = value
}

func (g *GPIO) ReadDigital(pin hal.Pin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads[pin]++
	if q := g.digital[pin]; len(q) > 0 {
		g.digital[pin] = q[1:]
		return q[0]
	}
	if v, ok := g.digitalLevel[pin]; ok {
		return v
	}
	return true
}

func (g *GPIO) ReadAnalog(pin hal.Pin) uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads[pin]++
	if q := g.analog[pin]; len(q) > 0 {
		g.analog[pin] = q[1:]
		return q[0]
	}
	if v, ok := g.analogLevel[pin]; ok {
		return v
	}
	return hal.IdleAnalog
}

func (g *GPIO) WriteDigital(pin hal.Pin, value bool) {
	var at time.Time
	if g.clock != nil {
		at = g.clock.Now()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes = append(g.writes, Write{Pin: pin, Value: value, At: at})
}

// Reads returns how many samples were taken from pin.
func (g *GPIO) Reads(pin hal.Pin) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reads[pin]
}

// Writes returns the writes made to pin in order.
func (g *GPIO) Writes(pin hal.Pin) []Write {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Write
	for _, w := range g.writes {
		if w.Pin == pin {
			out = append(out, w)
		}
	}
	return out
}

// Rising counts low-to-high transitions written to pin.
func (g *GPIO) Rising(pin hal.Pin) int {
	n := 0
	prev := false
	for _, w := range g.Writes(pin) {
		if w.Value && !prev {
			n++
		}
		prev = w.Value
	}
	return n
}

// Attempt is one recorded Wi-Fi association.
type Attempt struct {
	SSID     string
	Password string
	Timeout  time.Duration
}

// WiFi answers Connect from a queue of results, then from Succeed.
type WiFi struct {
	mu          sync.Mutex
	Succeed     bool
	results     []bool
	attempts    []Attempt
	connected   bool
	disconnects int
	Mac         string
	Addr        string
}

func NewWiFi(succeed bool) *WiFi {
	return &WiFi{Succeed: succeed, Mac: "28cdc10a1b2c", Addr: "192.168.1.50"}
}

// QueueResults sets the outcome of the next Connect calls.
func (w *WiFi) QueueResults(results ...bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results = append(w.results, results...)
}

func (w *WiFi) Connect(ssid, password string, timeout time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts = append(w.attempts, Attempt{SSID: ssid, Password: password, Timeout: timeout})
	ok := w.Succeed
	if len(w.results) > 0 {
		ok = w.results[0]
		w.results = w.results[1:]
	}
	w.connected = ok
	return ok
}

func (w *WiFi) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	w.disconnects++
}

func (w *WiFi) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *WiFi) MAC() string {
	return w.Mac
}

func (w *WiFi) Address() string {
	return w.Addr
}

// Attempts returns recorded associations.
func (w *WiFi) Attempts() []Attempt {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Attempt(nil), w.attempts...)
}

func (w *WiFi) Disconnects() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disconnects
}

// Request is one recorded HTTP call.
type Request struct {
	Method string
	URL    string
	Body   []byte
	APIKey string
}

// Handler answers a routed request.
type Handler func(req Request) (*hal.Response, error)

// JSON answers with a fixed status and body.
func JSON(status int, body string) Handler {
	return func(Request) (*hal.Response, error) {
		return &hal.Response{StatusCode: status, Body: []byte(body)}, nil
	}
}

// Fail answers with a refused connection.
func Fail() Handler {
	return func(req Request) (*hal.Response, error) {
		err := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
		return nil, hal.ClassifyNetworkError(err, req.URL)
	}
}

// Sequence answers with each handler in turn, repeating the last one.
func Sequence(handlers ...Handler) Handler {
	var mu sync.Mutex
	i := 0
	return func(req Request) (*hal.Response, error) {
		mu.Lock()
		h := handlers[i]
		if i < len(handlers)-1 {
			i++
		}
		mu.Unlock()
		return h(req)
	}
}

// HTTP routes requests by method and URL and records every call.
// Unrouted requests fail as refused connections.
type HTTP struct {
	mu     sync.Mutex
	routes map[string]Handler
	calls  []Request
	apiKey string
}

func NewHTTP() *HTTP {
	return &HTTP{routes: make(map[string]Handler)}
}

func routeKey(method, url string) string {
	return method + " " + url
}

// Handle registers h for method and url.
func (h *HTTP) Handle(method, url string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[routeKey(method, url)] = handler
}

func (h *HTTP) SetAPIKey(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.apiKey = key
}

// APIKey returns the key currently attached to requests.
func (h *HTTP) APIKey() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.apiKey
}

func (h *HTTP) Get(ctx context.Context, url string) (*hal.Response, error) {
	return h.do(ctx, "GET", url, nil)
}

func (h *HTTP) Post(ctx context.Context, url string, body []byte) (*hal.Response, error) {
	return h.do(ctx, "POST", url, body)
}

func (h *HTTP) do(ctx context.Context, method, url string, body []byte) (*hal.Response, error) {
	h.mu.Lock()
	req := Request{Method: method, URL: url, Body: body, APIKey: h.apiKey}
	h.calls = append(h.calls, req)
	handler := h.routes[routeKey(method, url)]
	h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, hal.ClassifyNetworkError(err, url)
	}
	if handler == nil {
		return Fail()(req)
	}

	resp, err := handler(req)
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, hal.NewHTTPError(resp.StatusCode, url)
	}
	return resp, nil
}

// Calls returns every recorded request.
func (h *HTTP) Calls() []Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Request(nil), h.calls...)
}

// Count returns how many requests hit method and url.
func (h *HTTP) Count(method, url string) int {
	n := 0
	for _, c := range h.Calls() {
		if c.Method == method && c.URL == url {
			n++
		}
	}
	return n
}

// Store keeps credentials in memory.
type Store struct {
	mu      sync.Mutex
	creds   *hal.Credentials
	saves   int
	SaveErr error
}

func NewStore(creds *hal.Credentials) *Store {
	return &Store{creds: creds}
}

func (s *Store) Load() (*hal.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, hal.ErrNoCredentials
	}
	c := *s.creds
	return &c, nil
}

func (s *Store) Save(creds hal.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.creds = &creds
	s.saves++
	return nil
}

// Saved returns the stored record, or nil.
func (s *Store) Saved() *hal.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil
	}
	c := *s.creds
	return &c
}

func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Files records firmware writes. Names in FailOn fail.
type Files struct {
	mu     sync.Mutex
	files  map[string][]byte
	order  []string
	FailOn map[string]bool
}

func NewFiles() *Files {
	return &Files{files: make(map[string][]byte), FailOn: make(map[string]bool)}
}

func (f *Files) WriteFile(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailOn[name] {
		return fmt.Errorf("write %s: %w", name, errors.New("flash full"))
	}
	f.files[name] = append([]byte(nil), data...)
	f.order = append(f.order, name)
	return nil
}

// File returns the content written to name.
func (f *Files) File(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	return data, ok
}

// Written returns names in write order.
func (f *Files) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// Resetter counts resets.
type Resetter struct {
	mu    sync.Mutex
	count int
}

func (r *Resetter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
}

func (r *Resetter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Board holds one of each fake.
type Board struct {
	Clock    *Clock
	GPIO     *GPIO
	WiFi     *WiFi
	HTTP     *HTTP
	Store    *Store
	Files    *Files
	Resetter *Resetter
}

// NewBoard creates fakes with Wi-Fi that connects and the given credentials.
func NewBoard(creds *hal.Credentials) *Board {
	clock := NewClock(Epoch)
	return &Board{
		Clock:    clock,
		GPIO:     NewGPIO(clock),
		WiFi:     NewWiFi(true),
		HTTP:     NewHTTP(),
		Store:    NewStore(creds),
		Files:    NewFiles(),
		Resetter: &Resetter{},
	}
}

// HAL returns the boundary view of the fakes.
func (b *Board) HAL() *hal.Board {
	return &hal.Board{
		Clock:    b.Clock,
		GPIO:     b.GPIO,
		WiFi:     b.WiFi,
		HTTP:     b.HTTP,
		Store:    b.Store,
		Files:    b.Files,
		Resetter: b.Resetter,
	}
}


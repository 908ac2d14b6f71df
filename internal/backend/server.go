package backend

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/api"
	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/urls"
)

const (
	maxHeaderBytes    = 1 << 20
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// Config configures the development backend.
type Config struct {
	// APIKeys are the accepted apartment keys. When empty any non-empty key
	// is accepted and gets its own apartment.
	APIKeys []string
	// FirmwareVersion is served on the version route.
	FirmwareVersion string
	// FirmwareDir holds the .py files offered for download.
	FirmwareDir string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type apartment struct {
	pendingOpen bool
	rings       []time.Time
}

// Server is an in-memory stand-in for the apartment backend. Door-open
// commands are queued per apartment and handed to the device on its next
// status poll.
type Server struct {
	cfg        Config
	allowed    map[string]bool
	httpServer *http.Server

	mu         sync.Mutex
	apartments map[string]*apartment
}

func New(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FirmwareVersion == "" {
		cfg.FirmwareVersion = "0.0.0"
	}
	allowed := make(map[string]bool, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			allowed[k] = true
		}
	}
	return &Server{
		cfg:        cfg,
		allowed:    allowed,
		apartments: make(map[string]*apartment),
	}
}

// Routes builds the gin engine with every route registered.
func (s *Server) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET(urls.HealthPath, s.health)

	doorbell := router.Group("/doorbell", s.apartmentAuth)
	{
		doorbell.POST("/ring", s.ring)
		doorbell.POST("/status", s.status)
		doorbell.GET("/status", s.status)
		doorbell.POST("/open", s.open)
	}

	pico := router.Group("/pico")
	{
		pico.GET("/fw_version", s.firmwareVersion)
		pico.GET("/list_py_files", s.listFiles)
		pico.GET("/get_file", s.getFile)
	}
	return router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logging.Info("Backend listening", zap.String("addr", addr))
		errChan <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.Info("Shutting down backend...")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// QueueOpen marks an open command for the apartment with key.
func (s *Server) QueueOpen(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apartmentLocked(key).pendingOpen = true
}

// Pending reports whether an open command waits for key's device.
func (s *Server) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apartments[key]
	return ok && a.pendingOpen
}

// Rings returns the ring times recorded for key.
func (s *Server) Rings(key string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apartments[key]
	if !ok {
		return nil
	}
	return append([]time.Time(nil), a.rings...)
}

func (s *Server) apartmentLocked(key string) *apartment {
	a, ok := s.apartments[key]
	if !ok {
		a = &apartment{}
		s.apartments[key] = a
	}
	return a
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ring(c *gin.Context) {
	key := c.GetString(apiKeyContextKey)
	now := s.cfg.Now()

	s.mu.Lock()
	a := s.apartmentLocked(key)
	a.rings = append(a.rings, now)
	s.mu.Unlock()

	logging.Info("Ring received", zap.String("apartment", maskKey(key)))
	c.JSON(http.StatusOK, gin.H{
		"message":   "Ring event received",
		"timestamp": now.Unix(),
		"last_call": now.Format(api.LastCallLayout),
	})
}

// status hands out a pending open command once.
func (s *Server) status(c *gin.Context) {
	key := c.GetString(apiKeyContextKey)

	s.mu.Lock()
	a := s.apartmentLocked(key)
	open := a.pendingOpen
	a.pendingOpen = false
	s.mu.Unlock()

	if open {
		logging.Info("Open command delivered", zap.String("apartment", maskKey(key)))
	}
	c.JSON(http.StatusOK, gin.H{"open": open})
}

func (s *Server) open(c *gin.Context) {
	key := c.GetString(apiKeyContextKey)
	s.QueueOpen(key)
	logging.Info("Open command queued", zap.String("apartment", maskKey(key)))
	c.JSON(http.StatusOK, gin.H{"message": "Open command sent"})
}

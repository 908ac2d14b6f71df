package backend

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/ota"
	"github.com/jonasfh/picobell/internal/urls"
)

var fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

func (s *Server) firmwareVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fw_version": s.cfg.FirmwareVersion})
}

// listFiles offers every .py file in FirmwareDir. URLs are relative; the
// device resolves them against its base URL.
func (s *Server) listFiles(c *gin.Context) {
	files, err := s.firmwareFiles()
	if err != nil {
		logging.Error("Failed to list firmware", zap.String("dir", s.cfg.FirmwareDir), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list firmware"})
		return
	}
	c.JSON(http.StatusOK, files)
}

func (s *Server) firmwareFiles() ([]ota.File, error) {
	files := []ota.File{}
	if s.cfg.FirmwareDir == "" {
		return files, nil
	}
	entries, err := os.ReadDir(s.cfg.FirmwareDir)
	if errors.Is(err, fs.ErrNotExist) {
		return files, nil
	}
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".py") || !fileNamePattern.MatchString(e.Name()) {
			continue
		}
		files = append(files, ota.File{Name: e.Name(), URL: urls.FileURL(e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *Server) getFile(c *gin.Context) {
	name := c.Query("file")
	if name == "" || !fileNamePattern.MatchString(name) || name == "." || name == ".." {
		c.String(http.StatusBadRequest, "Invalid filename")
		return
	}
	if s.cfg.FirmwareDir == "" {
		c.String(http.StatusNotFound, "File not found")
		return
	}

	data, err := os.ReadFile(filepath.Join(s.cfg.FirmwareDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		c.String(http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		logging.Error("Failed to read firmware file", zap.String("file", name), zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to read file")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

package ota

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/urls"
)

// File is one manifest entry.
type File struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Plan is an update to apply, files in manifest order.
type Plan struct {
	TargetVersion string
	Files         []File
}

// ProgressFunc is called with (i+1, total, false) before file i is fetched
// and with (total, total, true) once every file is written.
type ProgressFunc func(current, total int, done bool)

// Config locates the firmware endpoints.
type Config struct {
	BaseURL     string
	VersionPath string
	FilesPath   string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = urls.DefaultBaseURL
	}
	if c.VersionPath == "" {
		c.VersionPath = urls.FirmwareVersionPath
	}
	if c.FilesPath == "" {
		c.FilesPath = urls.FirmwareFilesPath
	}
	return c
}

// Updater checks for and applies firmware updates.
type Updater struct {
	http  hal.HTTP
	files hal.FileWriter
	cfg   Config
}

func NewUpdater(client hal.HTTP, files hal.FileWriter, cfg Config) *Updater {
	return &Updater{http: client, files: files, cfg: cfg.withDefaults()}
}

type versionDoc struct {
	FirmwareVersion string  `json:"fw_version"`
	Files           *[]File `json:"files"`
}

// CheckForUpdates asks the backend for its firmware version. When it differs
// from current the manifest is resolved into a plan. Failures at any step
// mean no update.
func (u *Updater) CheckForUpdates(ctx context.Context, current string) (*Plan, bool) {
	versionURL := urls.Join(u.cfg.BaseURL, u.cfg.VersionPath)
	resp, err := u.http.Get(ctx, versionURL)
	if err != nil {
		logging.Warn("OTA version check failed", zap.String("error", hal.ShortErrorMessage(err)))
		return nil, false
	}

	var doc versionDoc
	if err := resp.JSON(&doc); err != nil {
		logging.Warn("OTA version document malformed", zap.Error(err))
		return nil, false
	}
	if doc.FirmwareVersion == "" {
		logging.Warn("OTA version document has no fw_version")
		return nil, false
	}
	if doc.FirmwareVersion == current {
		logging.Info("Firmware up to date", zap.String("version", current))
		return nil, false
	}

	var entries []File
	if doc.Files != nil {
		entries = *doc.Files
	} else {
		entries, err = u.fetchManifest(ctx)
		if err != nil {
			logging.Warn("OTA manifest unavailable", zap.Error(err))
			return nil, false
		}
	}

	plan := &Plan{TargetVersion: doc.FirmwareVersion}
	for _, f := range entries {
		if f.Name == "" || f.URL == "" || !hal.ValidFileName(f.Name) {
			logging.Warn("Skipping manifest entry", zap.String("name", f.Name), zap.String("url", f.URL))
			continue
		}
		resolved, err := urls.Resolve(u.cfg.BaseURL, f.URL)
		if err != nil {
			logging.Warn("Skipping manifest entry", zap.String("name", f.Name), zap.Error(err))
			continue
		}
		plan.Files = append(plan.Files, File{Name: f.Name, URL: resolved})
	}
	if len(plan.Files) == 0 {
		logging.Warn("OTA manifest is empty", zap.String("target", doc.FirmwareVersion))
		return nil, false
	}

	logging.Info("Firmware update available",
		zap.String("current", current),
		zap.String("target", plan.TargetVersion),
		zap.Int("files", len(plan.Files)),
	)
	return plan, true
}

func (u *Updater) fetchManifest(ctx context.Context) ([]File, error) {
	resp, err := u.http.Get(ctx, urls.Join(u.cfg.BaseURL, u.cfg.FilesPath))
	if err != nil {
		return nil, err
	}
	var entries []File
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return nil, hal.NewParseError("invalid file manifest", err)
	}
	return entries, nil
}

// Apply downloads and writes each file in order. The first failure aborts
// the plan; files already written stay in place. progress may be nil.
func (u *Updater) Apply(ctx context.Context, plan *Plan, progress ProgressFunc) bool {
	if plan == nil || len(plan.Files) == 0 {
		return false
	}
	if progress == nil {
		progress = func(int, int, bool) {}
	}

	total := len(plan.Files)
	for i, f := range plan.Files {
		progress(i+1, total, false)

		resp, err := u.http.Get(ctx, f.URL)
		if err != nil {
			logging.Error("OTA download failed",
				zap.String("file", f.Name),
				zap.Int("index", i+1),
				zap.Int("total", total),
				zap.Error(err),
			)
			return false
		}
		if err := u.files.WriteFile(f.Name, resp.Body); err != nil {
			logging.Error("OTA write failed", zap.String("file", f.Name), zap.Error(err))
			return false
		}
		logging.Info("OTA file written", zap.String("file", f.Name), zap.Int("bytes", len(resp.Body)))
	}

	progress(total, total, true)
	logging.Info("OTA update complete", zap.String("version", plan.TargetVersion))
	return true
}

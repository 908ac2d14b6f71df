package urls

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the production backend.
const DefaultBaseURL = "https://picobell.no"

// Backend endpoint paths. The firmware joins them onto the base URL; the
// development backend registers its routes under the same paths.
const (
	HealthPath          = "/health"
	RingPath            = "/doorbell/ring"
	StatusPath          = "/doorbell/status"
	OpenPath            = "/doorbell/open"
	FirmwareVersionPath = "/pico/fw_version"
	FirmwareFilesPath   = "/pico/list_py_files"
	FirmwareFilePath    = "/pico/get_file"
)

// Join appends path to base, collapsing duplicate slashes at the seam.
func Join(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Resolve resolves ref against base. Absolute refs are returned unchanged.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	if !strings.HasSuffix(b.Path, "/") {
		b.Path += "/"
	}
	return b.ResolveReference(r).String(), nil
}

// FileURL is the relative download URL of a firmware file, as listed by the backend.
func FileURL(name string) string {
	return FirmwareFilePath + "?file=" + url.QueryEscape(name)
}

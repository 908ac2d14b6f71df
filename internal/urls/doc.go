// Package urls centralizes the backend endpoint paths shared by the
// firmware, the development backend and the tools.
//
// Usage:
//
//	import "github.com/jonasfh/picobell/internal/urls"
//
//	ringURL := urls.Join(baseURL, urls.RingPath)
package urls

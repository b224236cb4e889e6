package divisions

import (
	"log/slog"
	"net/url"
	"strings"
)

// ValidateGallery returns the items worth classifying: URLs are trimmed,
// entries that are not absolute http(s) or data: URLs are dropped, and a
// repeated URL keeps only its first occurrence. OrderIndex is preserved so
// gallery positions still match the listing.
func ValidateGallery(items []GalleryItem) []GalleryItem {
	seen := make(map[string]bool, len(items))
	out := make([]GalleryItem, 0, len(items))
	for _, item := range items {
		item.URL = strings.TrimSpace(item.URL)
		if !isFetchableURL(item.URL) {
			slog.Debug("divisions: skipping gallery item", "url", item.URL, "reason", "unsupported url")
			continue
		}
		if seen[item.URL] {
			slog.Debug("divisions: skipping gallery item", "url", item.URL, "reason", "duplicate")
			continue
		}
		seen[item.URL] = true
		out = append(out, item)
	}
	return out
}

func isFetchableURL(raw string) bool {
	if strings.HasPrefix(raw, "data:") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

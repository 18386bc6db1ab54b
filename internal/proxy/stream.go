package proxy

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	manifestContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"

	// Segments are content-addressed by URL and effectively immutable;
	// manifests must never be cached or live playlists go stale.
	segmentCacheControl  = "public, max-age=86400, immutable"
	manifestCacheControl = "no-store"
)

// setCORSHeaders makes responses consumable by players served from a
// different origin than the proxy.
func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
}

// looksLikeManifestPath reports whether a URL path names an HLS playlist.
func looksLikeManifestPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".m3u8") || strings.HasSuffix(lower, ".m3u")
}

// isManifestResponse checks the upstream content type and the extensions
// of both the requested and the final post-redirect URL. Origins
// frequently misreport the type, and playlists often redirect to
// extensionless signed URLs, so no single signal can be trusted alone.
func isManifestResponse(resp *http.Response, requestedURL, finalURL *url.URL) bool {
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "mpegurl") || strings.Contains(contentType, "m3u8") {
		return true
	}
	if requestedURL != nil && looksLikeManifestPath(requestedURL.Path) {
		return true
	}
	return looksLikeManifestPath(finalURL.Path)
}

// segmentContentTypeFor picks the content type for a passthrough
// response. Origins often label transport-stream segments as generic
// binary, which breaks some players, so .ts paths are forced.
func segmentContentTypeFor(finalURL *url.URL, upstream string) string {
	if strings.HasSuffix(strings.ToLower(finalURL.Path), ".ts") {
		return segmentContentType
	}
	if upstream != "" {
		return upstream
	}
	return "application/octet-stream"
}

// StreamSegment copies a non-manifest upstream response through
// unmodified except for header normalization.
func StreamSegment(w http.ResponseWriter, resp *http.Response, finalURL *url.URL) {
	h := w.Header()
	setCORSHeaders(h)
	h.Set("Content-Type", segmentContentTypeFor(finalURL, resp.Header.Get("Content-Type")))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", segmentCacheControl)

	if v := resp.Header.Get("Content-Length"); v != "" {
		h.Set("Content-Length", v)
	}
	if v := resp.Header.Get("Content-Range"); v != "" {
		h.Set("Content-Range", v)
	}

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// WriteManifest sends rewritten playlist text.
func WriteManifest(w http.ResponseWriter, status int, body []byte) {
	h := w.Header()
	setCORSHeaders(h)
	h.Set("Content-Type", manifestContentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", manifestCacheControl)

	w.WriteHeader(status)
	w.Write(body)
}

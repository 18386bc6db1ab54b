package proxy

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// TokenFactory turns an absolute origin URL into a proxy-relative URL
// carrying a freshly issued capability reference. The rewriter calls it
// once per resolvable reference in a manifest.
type TokenFactory func(absoluteURL string) (string, error)

// RewriteManifest transforms a playlist line by line so every reference
// routes back through the proxy. base must be the effective URL after
// upstream redirects, or relative references resolve to the wrong place.
//
// Per-line failures leave the line unchanged: corrupting a manifest is
// worse than leaving one unresolved reference. Undecodable input is
// returned as-is and served by the passthrough path.
func RewriteManifest(body []byte, base *url.URL, wrap TokenFactory) []byte {
	if !utf8.Valid(body) {
		return body
	}

	lines := strings.Split(string(body), "\n")
	for i, line := range lines {
		lines[i] = rewriteLine(line, base, wrap)
	}
	return []byte(strings.Join(lines, "\n"))
}

func rewriteLine(line string, base *url.URL, wrap TokenFactory) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return line
	}

	if strings.HasPrefix(trimmed, "#") {
		// Key/media tags embed their reference as URI="..."
		if strings.Contains(line, `URI="`) {
			return rewriteTagURI(line, base, wrap)
		}
		return line
	}

	// Media or sub-playlist reference
	resolved, ok := resolveReference(trimmed, base)
	if !ok {
		return line
	}
	proxied, err := wrap(resolved)
	if err != nil {
		return line
	}
	// Replace only the reference itself; surrounding whitespace stays
	start := strings.Index(line, trimmed)
	return line[:start] + proxied + line[start+len(trimmed):]
}

// rewriteTagURI replaces the quoted URI value inside a tag line in place,
// preserving everything around it.
func rewriteTagURI(line string, base *url.URL, wrap TokenFactory) string {
	start := strings.Index(line, `URI="`)
	if start == -1 {
		return line
	}
	start += len(`URI="`)
	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return line
	}

	original := line[start : start+end]
	resolved, ok := resolveReference(original, base)
	if !ok {
		return line
	}
	proxied, err := wrap(resolved)
	if err != nil {
		return line
	}
	return line[:start] + proxied + line[start+end:]
}

// resolveReference turns a manifest reference into an absolute URL:
// absolute URLs pass through, absolute paths resolve against the base's
// scheme+host, everything else resolves relative to the base path.
func resolveReference(ref string, base *url.URL) (string, bool) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if parsed.IsAbs() {
		return ref, true
	}
	if base == nil {
		return "", false
	}
	resolved := base.ResolveReference(parsed)
	if !resolved.IsAbs() {
		return "", false
	}
	return resolved.String(), true
}

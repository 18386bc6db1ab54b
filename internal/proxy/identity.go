package proxy

import "net/url"

// identityProfiles are the client identities tried against blocking
// origins, in fixed order so fallback behavior stays reproducible.
var identityProfiles = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 13; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}

// FetchAttempt pairs a client identity with a referer choice.
// An empty Referer means the header is omitted entirely.
type FetchAttempt struct {
	UserAgent string
	Referer   string
}

// attemptsFor builds the ordered strategy table for a target: every
// identity profile first with an origin-derived referer, then bare.
// Some origins insist on a same-site referer, others reject any.
func attemptsFor(target *url.URL) []FetchAttempt {
	originReferer := target.Scheme + "://" + target.Host + "/"

	attempts := make([]FetchAttempt, 0, len(identityProfiles)*2)
	for _, ua := range identityProfiles {
		attempts = append(attempts, FetchAttempt{UserAgent: ua, Referer: originReferer})
		attempts = append(attempts, FetchAttempt{UserAgent: ua})
	}
	return attempts
}

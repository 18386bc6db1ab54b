package entitlement

import (
	"context"

	"github.com/player4sir/movieapp-sub004/internal/auth"
)

// Resolver decides, per (user, content, episode), whether playback is
// full or truncated to preview. The real paywall service lives outside
// this core; this is its boundary.
type Resolver interface {
	Resolve(ctx context.Context, userID, contentID string, episode int) (auth.Scope, error)
}

// FreePreviewResolver grants full access to the first FreeEpisodes
// episodes of every title and preview access beyond that. It is the
// default wiring until the paywall service is plugged in.
type FreePreviewResolver struct {
	FreeEpisodes int
}

func (r *FreePreviewResolver) Resolve(_ context.Context, _, _ string, episode int) (auth.Scope, error) {
	if episode <= r.FreeEpisodes {
		return auth.ScopeFull, nil
	}
	return auth.ScopePreview, nil
}

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/player4sir/movieapp-sub004/internal/auth"
	"github.com/player4sir/movieapp-sub004/internal/entitlement"
)

type Handler struct {
	issuer        *auth.Issuer
	resolver      entitlement.Resolver
	videoEndpoint string
	tokenTTL      time.Duration
}

func NewHandler(issuer *auth.Issuer, resolver entitlement.Resolver, publicBaseURL string, tokenTTL time.Duration) *Handler {
	return &Handler{
		issuer:        issuer,
		resolver:      resolver,
		videoEndpoint: publicBaseURL + "/api/v1/proxy/video",
		tokenTTL:      tokenTTL,
	}
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles GET /api/v1/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PlaybackRequest is posted by the content-detail endpoint. The origin
// source URLs come from the catalog service; this core does not discover
// them.
type PlaybackRequest struct {
	UserID    string   `json:"user_id"`
	ContentID string   `json:"content_id"`
	Episode   int      `json:"episode"`
	Sources   []string `json:"sources"`
}

// PlaybackSource is one tokenized playback URL.
type PlaybackSource struct {
	URL string `json:"url"`
}

// PlaybackResponse carries the minted playback URLs and the access scope
// that was granted.
type PlaybackResponse struct {
	Scope     auth.Scope       `json:"scope"`
	Sources   []PlaybackSource `json:"sources"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// PlaybackSources handles POST /api/v1/playback/sources. It asks the
// entitlement resolver for the access scope and mints one capability
// token per caller-supplied origin URL.
func (h *Handler) PlaybackSources(w http.ResponseWriter, r *http.Request) {
	var req PlaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ContentID == "" || req.Episode <= 0 {
		respondError(w, http.StatusBadRequest, "content_id and episode required")
		return
	}
	if len(req.Sources) == 0 {
		respondError(w, http.StatusBadRequest, "at least one source required")
		return
	}

	scope, err := h.resolver.Resolve(r.Context(), req.UserID, req.ContentID, req.Episode)
	if err != nil {
		log.Printf("Error resolving entitlement for %s/%d: %v", req.ContentID, req.Episode, err)
		respondError(w, http.StatusInternalServerError, "entitlement resolution failed")
		return
	}

	sources := make([]PlaybackSource, 0, len(req.Sources))
	for _, origin := range req.Sources {
		token, err := h.issuer.Issue(origin, scope, req.UserID, req.ContentID)
		if err != nil {
			// Bad source URLs from the catalog are skipped, not fatal
			log.Printf("Skipping unusable source for %s/%d: %v", req.ContentID, req.Episode, err)
			continue
		}
		sources = append(sources, PlaybackSource{
			URL: h.videoEndpoint + "?token=" + url.QueryEscape(token),
		})
	}

	if len(sources) == 0 {
		respondError(w, http.StatusBadRequest, "no usable sources")
		return
	}

	respondJSON(w, http.StatusOK, PlaybackResponse{
		Scope:     scope,
		Sources:   sources,
		ExpiresAt: time.Now().Add(h.tokenTTL),
	})
}

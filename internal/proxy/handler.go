package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/player4sir/movieapp-sub004/internal/auth"
)

// Manifests are small text files; anything past this limit is not a
// playlist we should be buffering for rewrite.
const maxManifestBytes = 4 << 20

// Handler serves the two proxy entry points: the token-gated video path
// and the raw-URL path for public assets.
type Handler struct {
	fetcher *Fetcher
	issuer  *auth.Issuer
	// entry point URLs rewritten manifest references point at
	videoEndpoint string
	assetEndpoint string
	logger        *slog.Logger
}

func NewHandler(fetcher *Fetcher, issuer *auth.Issuer, publicBaseURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		fetcher:       fetcher,
		issuer:        issuer,
		videoEndpoint: publicBaseURL + "/api/v1/proxy/video",
		assetEndpoint: publicBaseURL + "/api/v1/proxy/asset",
		logger:        logger,
	}
}

// Preflight answers cross-origin preflight requests without touching any
// origin.
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w.Header())
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// HandleVideo is the token-gated entry point. The token is the only
// credential: it binds the origin URL and the access scope, so no
// database lookup happens here.
func (h *Handler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		respondProxyError(w, http.StatusBadRequest, CodeValidationError, "token parameter is required")
		return
	}

	claims, err := h.issuer.Validate(tokenString)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			respondProxyError(w, http.StatusForbidden, CodeTokenExpired, "token expired")
			return
		}
		respondProxyError(w, http.StatusUnauthorized, CodeTokenInvalid, "invalid token")
		return
	}

	wrap := func(absoluteURL string) (string, error) {
		// Re-issue per reference, preserving the original scope
		token, err := h.issuer.Issue(absoluteURL, claims.Scope, claims.SubjectID, claims.ContentID)
		if err != nil {
			return "", err
		}
		return h.videoEndpoint + "?token=" + url.QueryEscape(token), nil
	}

	h.serve(w, r, claims.OriginURL, wrap)
}

// HandleAsset is the raw-URL entry point, used only for content that
// requires no access control.
func (h *Handler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		http.Error(w, ErrMissingURL.Error(), http.StatusBadRequest)
		return
	}
	if u, err := url.Parse(rawURL); err != nil || !u.IsAbs() {
		http.Error(w, "url must be an absolute URL", http.StatusBadRequest)
		return
	}

	wrap := func(absoluteURL string) (string, error) {
		return h.assetEndpoint + "?url=" + url.QueryEscape(absoluteURL), nil
	}

	h.serve(w, r, rawURL, wrap)
}

// serve runs the shared fetch → (rewrite | stream) pipeline.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, target string, wrap TokenFactory) {
	res, err := h.fetcher.Fetch(r.Context(), target, r.Header.Get("Range"))
	if err != nil {
		if errors.Is(err, ErrInvalidURL) {
			http.Error(w, "url must be an absolute URL", http.StatusBadRequest)
			return
		}
		respondProxyError(w, http.StatusBadGateway, CodeUpstreamExhausted, "all upstream attempts failed")
		return
	}
	defer res.Close()

	requested, perr := url.Parse(target)
	if perr != nil {
		requested = res.FinalURL
	}

	if !isManifestResponse(res.Response, requested, res.FinalURL) {
		StreamSegment(w, res.Response, res.FinalURL)
		return
	}

	body, err := io.ReadAll(io.LimitReader(res.Response.Body, maxManifestBytes+1))
	if err != nil {
		respondProxyError(w, http.StatusBadGateway, CodeUpstreamExhausted, "failed to read upstream manifest")
		return
	}
	if len(body) > maxManifestBytes {
		// Too large to be a playlist. Rewriting a truncated manifest
		// would corrupt it, so serve the buffered prefix plus the rest
		// of the body untouched.
		res.Response.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), res.Response.Body))
		StreamSegment(w, res.Response, res.FinalURL)
		return
	}

	rewritten := RewriteManifest(body, res.FinalURL, wrap)
	h.logger.Debug("manifest rewritten",
		"final_url", res.FinalURL.String(),
		"bytes_in", len(body),
		"bytes_out", len(rewritten),
		"via_secondary", res.ViaSecondary,
	)
	WriteManifest(w, res.Response.StatusCode, rewritten)
}

func respondProxyError(w http.ResponseWriter, status int, code, message string) {
	setCORSHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "error": message})
}

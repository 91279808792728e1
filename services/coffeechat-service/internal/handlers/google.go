package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/coffeechat-app/coffeechat/libs/auth"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/meeting"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
)

// GoogleHandler runs the calendar consent flow. The OAuth state parameter is
// a short-lived HS256 token carrying the user id, since Google redirects the
// callback without our Authorization header.
type GoogleHandler struct {
	meet      *meeting.Client
	tokens    *storage.TokenRepository
	jwtSecret string
	logger    *slog.Logger
}

func NewGoogleHandler(meet *meeting.Client, tokens *storage.TokenRepository, jwtSecret string, logger *slog.Logger) *GoogleHandler {
	return &GoogleHandler{
		meet:      meet,
		tokens:    tokens,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Connect returns the consent URL for the caller.
func (h *GoogleHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.meet == nil {
		http.Error(w, "google calendar is not configured", http.StatusServiceUnavailable)
		return
	}

	now := time.Now()
	state, err := auth.SignHS256(auth.Claims{
		Sub: callerID(r),
		Iat: now.Unix(),
		Exp: now.Add(10 * time.Minute).Unix(),
	}, h.jwtSecret)
	if err != nil {
		http.Error(w, "failed to build state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"auth_url": h.meet.AuthCodeURL(state)})
}

// Callback exchanges the authorization code and stores the grant. This route
// is unauthenticated; identity comes from the verified state token.
func (h *GoogleHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.meet == nil {
		http.Error(w, "google calendar is not configured", http.StatusServiceUnavailable)
		return
	}

	code := strings.TrimSpace(r.URL.Query().Get("code"))
	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if code == "" || state == "" {
		http.Error(w, "code and state are required", http.StatusBadRequest)
		return
	}

	claims, err := auth.ParseAndVerifyHS256(state, h.jwtSecret)
	if err != nil || claims.Sub == "" {
		http.Error(w, "invalid state", http.StatusUnauthorized)
		return
	}

	tok, err := h.meet.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("oauth exchange failed", "err", err, "user_id", claims.Sub)
		http.Error(w, "failed to exchange authorization code", http.StatusBadGateway)
		return
	}

	if err := h.tokens.Upsert(r.Context(), storage.GoogleToken{
		UserID:       claims.Sub,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     google.Endpoint.TokenURL,
		Expiry:       tok.Expiry,
	}); err != nil {
		h.logger.Error("token store failed", "err", err, "user_id", claims.Sub)
		http.Error(w, "failed to store token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

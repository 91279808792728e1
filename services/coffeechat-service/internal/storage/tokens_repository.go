package storage

import (
	"context"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/coffeechat-app/coffeechat/libs/db"
)

// TokenRepository holds Google OAuth material captured by the external
// handshake. The core refreshes access tokens but never initiates consent.
type TokenRepository struct {
	pool *db.Pool
}

func NewTokenRepository(pool *db.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

type GoogleToken struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Expiry       time.Time
}

// OAuth2Token converts the stored row into the library's token type.
func (t GoogleToken) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

func (r *TokenRepository) Get(ctx context.Context, userID string) (GoogleToken, error) {
	var t GoogleToken
	var scopes string
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, access_token, refresh_token, token_uri, client_id, client_secret, scopes, expiry
		FROM google_tokens
		WHERE user_id = $1
	`, userID).Scan(&t.UserID, &t.AccessToken, &t.RefreshToken, &t.TokenURI, &t.ClientID, &t.ClientSecret, &scopes, &t.Expiry)
	if err != nil {
		return GoogleToken{}, err
	}
	if scopes != "" {
		t.Scopes = strings.Split(scopes, ",")
	}
	return t, nil
}

// Upsert stores a token pair captured by the OAuth callback. A re-consent
// replaces the previous grant.
func (r *TokenRepository) Upsert(ctx context.Context, t GoogleToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO google_tokens (user_id, access_token, refresh_token, token_uri, client_id, client_secret, scopes, expiry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_uri = EXCLUDED.token_uri,
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			scopes = EXCLUDED.scopes,
			expiry = EXCLUDED.expiry
	`, t.UserID, t.AccessToken, t.RefreshToken, t.TokenURI, t.ClientID, t.ClientSecret, strings.Join(t.Scopes, ","), t.Expiry)
	return err
}

// UpdateAccess persists a refreshed access token so later calls reuse it.
func (r *TokenRepository) UpdateAccess(ctx context.Context, userID, accessToken string, expiry time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE google_tokens
		SET access_token = $2,
			expiry = $3
		WHERE user_id = $1
	`, userID, accessToken, expiry)
	return err
}

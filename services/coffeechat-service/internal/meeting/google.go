// Package meeting talks to Google Calendar on behalf of a connected user:
// minting Meet links for confirmed bookings and reading busy intervals for
// slot generation.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/availability"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
)

var ErrNotConnected = errors.New("google account not connected")

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type Client struct {
	oauth  *oauth2.Config
	tokens *storage.TokenRepository
	logger *slog.Logger
}

func NewClient(cfg Config, tokens *storage.TokenRepository, logger *slog.Logger) *Client {
	if !cfg.Enabled() {
		return nil
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				calendar.CalendarEventsScope,
				calendar.CalendarReadonlyScope,
			},
			Endpoint: google.Endpoint,
		},
		tokens: tokens,
		logger: logger,
	}
}

// AuthCodeURL starts the consent flow for a user.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the callback code for a token pair.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.oauth.Exchange(ctx, code)
}

// service builds a calendar client for userID, refreshing the access token
// through the stored refresh token and persisting the rotated access token.
func (c *Client) service(ctx context.Context, userID string) (*calendar.Service, error) {
	stored, err := c.tokens.Get(ctx, userID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrNotConnected
		}
		return nil, err
	}

	ts := c.oauth.TokenSource(ctx, stored.OAuth2Token())
	fresh, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh google token: %w", err)
	}
	if fresh.AccessToken != stored.AccessToken {
		if err := c.tokens.UpdateAccess(ctx, userID, fresh.AccessToken, fresh.Expiry); err != nil {
			c.logger.Warn("persisting rotated access token failed", "err", err, "user_id", userID)
		}
	}

	return calendar.NewService(ctx, option.WithTokenSource(ts))
}

// CreateMeet inserts a calendar event with an attached Meet conference on the
// owner's primary calendar and returns the event id and join link.
func (c *Client) CreateMeet(ctx context.Context, b model.Booking, summary string) (string, string, error) {
	srv, err := c.service(ctx, b.OwnerID)
	if err != nil {
		return "", "", err
	}

	event := &calendar.Event{
		Summary: summary,
		Start:   &calendar.EventDateTime{DateTime: b.StartUTC.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:     &calendar.EventDateTime{DateTime: b.EndUTC.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		},
	}

	created, err := srv.Events.Insert("primary", event).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", "", fmt.Errorf("insert calendar event: %w", err)
	}

	link := created.HangoutLink
	if link == "" && created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				link = ep.Uri
				break
			}
		}
	}
	return created.Id, link, nil
}

// FetchBusy reads the user's primary calendar between from and to and returns
// the occupied intervals. All-day entries are skipped; generation only cares
// about timed conflicts.
func (c *Client) FetchBusy(ctx context.Context, userID string, from, to time.Time) ([]availability.Interval, error) {
	srv, err := c.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	events, err := srv.Events.List("primary").
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		MaxResults(250).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	var busy []availability.Interval
	for _, item := range events.Items {
		if item.Start == nil || item.End == nil || item.Start.DateTime == "" || item.End.DateTime == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			continue
		}
		busy = append(busy, availability.Interval{Start: start.UTC(), End: end.UTC()})
	}
	return busy, nil
}

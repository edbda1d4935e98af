package calendar

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/workmate/workmate/internal/db"
)

// oauthStub is a placeholder adapter for token-based calendar services.
// Connect materializes the stored OAuth token so that credentials are
// validated for presence; the actual API operations are not wired up yet.
type oauthStub struct {
	service    string
	httpClient *http.Client
}

func newOAuthStub(service string) *oauthStub {
	return &oauthStub{service: service}
}

// Connect builds an OAuth HTTP client from the stored token.
func (a *oauthStub) Connect(ctx context.Context, config db.IntegrationConfig, creds db.IntegrationCredentials) error {
	if creds.AccessToken == "" {
		return fmt.Errorf("%w: %s requires an access token", ErrAuthFailed, a.service)
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	}
	a.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	return nil
}

func (a *oauthStub) TestConnection(ctx context.Context) error {
	if a.httpClient == nil {
		return fmt.Errorf("%w: adapter not connected", ErrConnectionFailed)
	}
	return fmt.Errorf("%w: %s", ErrNotImplemented, a.service)
}

func (a *oauthStub) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotImplemented, a.service)
}

func (a *oauthStub) FetchEvents(ctx context.Context, calendarName string, window Window) ([]RemoteEvent, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotImplemented, a.service)
}

func (a *oauthStub) CreateEvent(ctx context.Context, calendarName string, fields EventFields) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrNotImplemented, a.service)
}

func (a *oauthStub) UpdateEvent(ctx context.Context, externalID string, fields EventFields) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, a.service)
}

func (a *oauthStub) DeleteEvent(ctx context.Context, externalID string) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, a.service)
}

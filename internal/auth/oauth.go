package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleProfile is the subset of the OpenID userinfo response we use.
type GoogleProfile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleOAuth performs the authorization-code handshake with Google.
type GoogleOAuth struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *GoogleOAuth {
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// WithEndpoints points the client at other authorization servers.
func (g *GoogleOAuth) WithEndpoints(authURL, tokenURL, userInfoURL string) *GoogleOAuth {
	cfg := *g.config
	cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	return &GoogleOAuth{config: &cfg, userInfoURL: userInfoURL}
}

func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the authorization code for tokens and fetches the profile.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, *GoogleProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("exchange code: %w", err)
	}

	client := g.config.Client(ctx, token)
	resp, err := client.Get(g.userInfoURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("fetch userinfo: unexpected status %d", resp.StatusCode)
	}

	var profile GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if profile.Subject == "" || profile.Email == "" {
		return nil, nil, fmt.Errorf("userinfo missing subject or email")
	}

	return token, &profile, nil
}

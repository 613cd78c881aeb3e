// Spotify Web API client used by the OAuth handshake and the playlist importer.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songcrate/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyAPIURL   = "https://api.spotify.com"
)

// Scopes requested on every authorization.
var Scopes = []string{
	"playlist-read-private",
	"playlist-read-collaborative",
	"user-library-read",
}

// PlaylistPage is one page of GET /v1/playlists/{id}/tracks.
type PlaylistPage struct {
	Items  []PlaylistItem `json:"items"`
	Total  int            `json:"total"`
	Next   *string        `json:"next"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// PlaylistItem wraps a track; Track is nil for local or unavailable items.
type PlaylistItem struct {
	Track *PlaylistTrack `json:"track"`
}

// PlaylistTrack is the subset of the track object the importer stores.
type PlaylistTrack struct {
	Name       string      `json:"name"`
	URI        string      `json:"uri"`
	Album      Album       `json:"album"`
	DurationMS int         `json:"duration_ms"`
	PreviewURL *string     `json:"preview_url"`
	Artists    []ArtistRef `json:"artists"`
}

type Album struct {
	Name string `json:"name"`
}

type ArtistRef struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// TokenResponse is the body of a successful token endpoint call.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// SpotifyOpts configures a [SpotifyClient].
type SpotifyOpts struct {
	Config     shared.SpotifyConfig
	HTTPClient *http.Client
	Logger     *log.Logger
}

// SpotifyClient talks to the Spotify accounts and Web APIs.
//
// It holds no per-user state: access tokens are passed to each call.
// Every request waits on a shared [rate.Limiter] first.
type SpotifyClient struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewSpotifyClient creates a client from the [credentials.spotify] config section.
func NewSpotifyClient(opts SpotifyOpts) (*SpotifyClient, error) {
	cfg := opts.Config
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &SpotifyClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   withDefault(cfg.AuthURL, spotifyAuthURL),
				TokenURL:  withDefault(cfg.TokenURL, spotifyTokenURL),
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiURL:     strings.TrimRight(withDefault(cfg.APIURL, spotifyAPIURL), "/"),
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     shared.WithLogger(opts.Logger, "service", "spotify"),
	}, nil
}

func withDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// RedirectURI is the configured OAuth callback.
func (c *SpotifyClient) RedirectURI() string {
	return c.oauth.RedirectURL
}

// AuthCodeURL builds the authorize URL with the fixed scopes and the given state.
func (c *SpotifyClient) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for tokens.
func (c *SpotifyClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	return c.postToken(ctx, form)
}

// RefreshToken trades a refresh token for a new access token.
//
// Spotify may omit refresh_token in the response, meaning the old one stays valid.
func (c *SpotifyClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: empty refresh token", shared.ErrInvalidInput)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.postToken(ctx, form)
}

func (c *SpotifyClient) postToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(c.oauth.ClientID), url.QueryEscape(c.oauth.ClientSecret))

	var token TokenResponse
	if err := c.do(ctx, c.httpClient, req, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", shared.ErrAPIRequest)
	}
	return &token, nil
}

// PlaylistPage fetches one page of playlist items.
func (c *SpotifyClient) PlaylistPage(ctx context.Context, accessToken, playlistID string, offset, limit int) (*PlaylistPage, error) {
	q := url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}
	endpoint := fmt.Sprintf("%s/v1/playlists/%s/tracks?%s", c.apiURL, url.PathEscape(playlistID), q.Encode())

	var page PlaylistPage
	if err := c.get(ctx, accessToken, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PlaylistName fetches only the playlist's display name.
func (c *SpotifyClient) PlaylistName(ctx context.Context, accessToken, playlistID string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/playlists/%s?fields=name", c.apiURL, url.PathEscape(playlistID))

	var body struct {
		Name string `json:"name"`
	}
	if err := c.get(ctx, accessToken, endpoint, &body); err != nil {
		return "", err
	}
	return body.Name, nil
}

// get performs a bearer-authenticated GET through an [oauth2.Transport].
func (c *SpotifyClient) get(ctx context.Context, accessToken, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), src)
	return c.do(ctx, client, req, out)
}

func (c *SpotifyClient) do(ctx context.Context, client *http.Client, req *http.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		c.logger.Debug("request failed", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}
	return nil
}

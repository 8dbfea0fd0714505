package federated

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/internal/logging"
)

// GoogleIssuer is the discovery URL used by NewGoogle.
const GoogleIssuer = "https://accounts.google.com"

const defaultStateTTL = 5 * time.Minute

// ErrClientMismatch is returned when the web client id hint differs from the
// configured OAuth client.
var ErrClientMismatch = errors.New("federated: web client id does not match provider client")

// Config holds OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scopes defaults to openid, profile and email.
	Scopes []string
	// StateTTL bounds how long a launched picker stays redeemable.
	StateTTL time.Duration
}

type pendingPick struct {
	verifier string
	expires  time.Time
}

// OIDCProvider implements rideAuth.FederatedSignInProvider. Safe for
// concurrent use.
type OIDCProvider struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	stateTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]pendingPick
	account *rideAuth.FederatedAccount
}

var _ rideAuth.FederatedSignInProvider = (*OIDCProvider)(nil)

// NewGoogle discovers Google's endpoints and keys and returns a provider.
func NewGoogle(ctx context.Context, cfg Config, logger *zap.Logger) (*OIDCProvider, error) {
	return Discover(ctx, GoogleIssuer, cfg, logger)
}

// Discover performs OIDC discovery against issuer.
func Discover(ctx context.Context, issuer string, cfg Config, logger *zap.Logger) (*OIDCProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}
	verifier := p.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return New(cfg, p.Endpoint(), verifier, logger)
}

// New builds a provider from explicit endpoints and an id_token verifier.
func New(cfg Config, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, logger *zap.Logger) (*OIDCProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if verifier == nil {
		return nil, errors.New("federated: id_token verifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}

	return &OIDCProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		verifier: verifier,
		stateTTL: ttl,
		logger:   logger.Named("federated"),
		now:      time.Now,
		pending:  make(map[string]pendingPick),
	}, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.RedirectURL) == "" {
		return errors.New("federated: client id and redirect url are required")
	}
	return nil
}

// BuildPickerIntent starts a fresh account choice. A non-empty hint must equal
// the configured client id.
func (p *OIDCProvider) BuildPickerIntent(_ context.Context, webClientIDHint string) (rideAuth.PickerIntent, error) {
	if webClientIDHint != "" && webClientIDHint != p.oauth.ClientID {
		return rideAuth.PickerIntent{}, ErrClientMismatch
	}

	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()

	p.mu.Lock()
	p.prune()
	p.pending[state] = pendingPick{
		verifier: verifier,
		expires:  p.now().Add(p.stateTTL),
	}
	p.mu.Unlock()

	authURL := p.oauth.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return rideAuth.PickerIntent{URL: authURL, State: state}, nil
}

// ExtractAccountFromResult redeems a picker result: the state must match a
// pending launch, a provider error is surfaced (access_denied as
// ErrFederatedCancelled), and the code is exchanged for a verified id_token.
func (p *OIDCProvider) ExtractAccountFromResult(ctx context.Context, result rideAuth.PickerResult) (rideAuth.FederatedAccount, error) {
	p.mu.Lock()
	pick, ok := p.pending[result.State]
	delete(p.pending, result.State)
	p.mu.Unlock()

	if !ok || result.State == "" || p.now().After(pick.expires) {
		return rideAuth.FederatedAccount{}, rideAuth.ErrFederatedStateMismatch
	}

	if result.Error != "" {
		if result.Error == "access_denied" {
			return rideAuth.FederatedAccount{}, rideAuth.ErrFederatedCancelled
		}
		if result.ErrorDescription != "" {
			return rideAuth.FederatedAccount{}, fmt.Errorf("%s: %s", result.Error, result.ErrorDescription)
		}
		return rideAuth.FederatedAccount{}, errors.New(result.Error)
	}
	if result.Code == "" {
		return rideAuth.FederatedAccount{}, errors.New("authorization code missing")
	}

	token, err := p.oauth.Exchange(ctx, result.Code, oauth2.VerifierOption(pick.verifier))
	if err != nil {
		return rideAuth.FederatedAccount{}, fmt.Errorf("token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return rideAuth.FederatedAccount{}, errors.New("provider did not return id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return rideAuth.FederatedAccount{}, fmt.Errorf("id_token verification failed: %w", err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return rideAuth.FederatedAccount{}, fmt.Errorf("id_token claims parse failed: %w", err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return rideAuth.FederatedAccount{}, errors.New("id_token missing required claims")
	}

	account := rideAuth.FederatedAccount{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}

	p.mu.Lock()
	p.account = &account
	p.mu.Unlock()

	p.logger.Info("oidc account selected",
		zap.String("issuer", idToken.Issuer),
		logging.Email(claims.Email),
		zap.Bool("email_verified", claims.EmailVerified),
	)
	return account, nil
}

// SignOut forgets the chosen account and every pending launch.
func (p *OIDCProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.account = nil
	clear(p.pending)
	return nil
}

// Account returns the account chosen last, if any.
func (p *OIDCProvider) Account() (rideAuth.FederatedAccount, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.account == nil {
		return rideAuth.FederatedAccount{}, false
	}
	return *p.account, true
}

// prune drops expired launches. Callers hold p.mu.
func (p *OIDCProvider) prune() {
	now := p.now()
	for state, pick := range p.pending {
		if now.After(pick.expires) {
			delete(p.pending, state)
		}
	}
}

// ParseCallback extracts a PickerResult from the redirect URL the provider
// sent the browser to.
func ParseCallback(rawURL string) (rideAuth.PickerResult, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rideAuth.PickerResult{}, fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()
	if q.Get("state") == "" {
		return rideAuth.PickerResult{}, errors.New("callback url has no state parameter")
	}
	return rideAuth.PickerResult{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}, nil
}

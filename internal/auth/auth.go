// Package auth implements the interactive OAuth 2.1 authorization-code
// flow with PKCE against the source platform's identity provider, and
// serves cached tokens to the API clients.
//
// Login is interactive: it opens the provider's authorize page in a
// browser and catches the redirect on a loopback HTTP listener. Every
// other command consumes TokenSource, which refreshes silently off the
// cached refresh token and never prompts.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNotLoggedIn means no usable cached token exists.
var ErrNotLoggedIn = errors.New(`not logged in, run "eamsync login" first`)

// Config identifies the provider and the local token cache.
type Config struct {
	Issuer      string
	ClientID    string
	RedirectURL string
	Audience    string
	Scopes      []string
	TokenFile   string
}

// Authenticator runs the login flow and hands out token sources backed by
// the cache file.
type Authenticator struct {
	cfg    Config
	oauth  oauth2.Config
	logger *slog.Logger

	// OpenURL directs the user agent to the provider's authorize page.
	// Defaults to launching the system browser; tests replace it.
	OpenURL func(url string) error
}

// New validates the configuration and builds an authenticator. The
// redirect URL must carry an explicit host and port for the loopback
// listener.
func New(cfg Config, logger *slog.Logger) (*Authenticator, error) {
	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	if redirect.Hostname() == "" || redirect.Port() == "" {
		return nil, errors.New("redirect URL needs an explicit host and port")
	}

	return &Authenticator{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.Issuer + "/authorize",
				TokenURL:  cfg.Issuer + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		logger:  logger,
		OpenURL: openBrowser,
	}, nil
}

const loginSuccessPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>eamsync login</title></head>
<body><h1>Authenticated!</h1><p>You may now close this page.</p></body>
</html>
`

// Login runs the interactive flow: loopback listener, browser to the
// authorize URL with an S256 challenge, code-for-token exchange, token
// persisted to the cache file.
func (a *Authenticator) Login(ctx context.Context) error {
	redirect, err := url.Parse(a.cfg.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("starting redirect listener: %w", err)
	}
	defer ln.Close()

	state, err := randomState()
	if err != nil {
		return err
	}
	verifier := oauth2.GenerateVerifier()

	type outcome struct {
		code string
		err  error
	}
	results := make(chan outcome, 1)

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "bad state in redirect", http.StatusBadRequest)
			results <- outcome{err: errors.New("bad state in OAuth redirect")}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "no code in redirect", http.StatusBadRequest)
			results <- outcome{err: errors.New("no authorization code in OAuth redirect")}
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, loginSuccessPage)
		results <- outcome{code: code}
	})
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	defer srv.Close()

	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if a.cfg.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", a.cfg.Audience))
	}
	authURL := a.oauth.AuthCodeURL(state, opts...)

	a.logger.Info("waiting for login in the browser", "url", authURL)
	if err := a.OpenURL(authURL); err != nil {
		a.logger.Warn("could not open a browser, visit the URL manually",
			"url", authURL, "error", err)
	}

	var res outcome
	select {
	case res = <-results:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		return res.err
	}

	tok, err := a.oauth.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := saveToken(a.cfg.TokenFile, tok); err != nil {
		return err
	}
	a.logger.Info("login complete", "token_file", a.cfg.TokenFile)
	return nil
}

// TokenSource returns an auto-refreshing source seeded from the cache
// file. A refresh rewrites the cache, so the next process starts from the
// fresh token. ErrNotLoggedIn when there is no cached token to start from.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := loadToken(a.cfg.TokenFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return nil, ErrNotLoggedIn
	}

	base := oauth2.ReuseTokenSource(tok, a.oauth.TokenSource(ctx, tok))
	return &persistingSource{path: a.cfg.TokenFile, src: base, last: tok.AccessToken}, nil
}

// Client returns an HTTP client that authenticates every request with the
// cached (auto-refreshing) token.
func (a *Authenticator) Client(ctx context.Context) (*http.Client, error) {
	src, err := a.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, src), nil
}

// persistingSource rewrites the cache file whenever the wrapped source
// hands out a token the file does not have yet.
type persistingSource struct {
	path string
	src  oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := saveToken(p.path, tok); err != nil {
			return nil, fmt.Errorf("persisting refreshed token: %w", err)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// saveToken writes the token cache with owner-only permissions.
func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("token file %s is not valid JSON: %w", path, err)
	}
	return &tok, nil
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

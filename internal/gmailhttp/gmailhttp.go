// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package gmailhttp builds the HTTP client used to talk to the GMail API.

The client authenticates with OAuth 2.0 using the installed
application flow: on first use the user grants access in a browser,
which redirects back to a short lived HTTP server on the loopback
interface.  The resulting token, including its refresh token, is kept
in a TokenStore and rewritten whenever it is refreshed.

If an API key is configured every request also carries it, which
attributes quota to the key's project.
*/
package gmailhttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gologme/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi/transport"

	"github.com/matta/mailtriage/internal/gmail"
	"github.com/matta/mailtriage/internal/tracehttp"
)

// TokenStore persists the OAuth 2.0 token between runs.  LoadToken
// returns nil when nothing was stored yet.
type TokenStore interface {
	LoadToken(ctx context.Context) (*oauth2.Token, error)
	SaveToken(ctx context.Context, tok *oauth2.Token) error
	DeleteToken(ctx context.Context) error
}

// Options configure New.
type Options struct {
	// ClientSecret is the client_secret.json downloaded from the
	// Google Cloud console for an OAuth client of type "Desktop".
	ClientSecret []byte
	Store        TokenStore

	// APIKey is optional.
	APIKey string

	// Trace logs every request and response.
	Trace bool

	// Browser opens the consent page; its failure is not fatal
	// since the URL is also written to Prompt.
	Browser func(ctx context.Context, url string) error
	Prompt  io.Writer

	Logger *log.Logger
}

// New returns a new HTTP client capable of using the GMail API.  It
// runs the consent flow first if the store holds no token, or holds
// one Google no longer honors.
func New(ctx context.Context, opts Options) (*http.Client, error) {
	cfg, err := google.ConfigFromJSON(opts.ClientSecret, gmail.ModifyScope)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse OAuth client secret")
	}

	var base http.RoundTripper = http.DefaultTransport
	if opts.Trace {
		base = tracehttp.Wrap(base, opts.Logger)
	}
	// Token exchange and refresh go through base too.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})

	tok, err := opts.Store.LoadToken(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load OAuth token")
	}
	if tok != nil && !tok.Valid() {
		tok, err = refresh(ctx, cfg, tok, opts.Store, opts.Logger)
		if err != nil {
			return nil, err
		}
	}
	if tok == nil {
		opts.Logger.Infoln("no stored OAuth token; starting consent flow")
		tok, err = authorize(ctx, cfg, opts.Browser, opts.Prompt, opts.Logger)
		if err != nil {
			return nil, errors.Wrap(err, "OAuth consent failed")
		}
		if err := opts.Store.SaveToken(ctx, tok); err != nil {
			return nil, errors.Wrap(err, "unable to save OAuth token")
		}
	}

	src := &persistingSource{
		ctx:    ctx,
		base:   cfg.TokenSource(ctx, tok),
		store:  opts.Store,
		last:   tok.AccessToken,
		logger: opts.Logger,
	}

	if opts.APIKey != "" {
		base = &transport.APIKey{Key: opts.APIKey, Transport: base}
	}
	trans := &oauth2.Transport{
		Source: src,
		Base:   base,
	}
	return &http.Client{Transport: trans}, nil
}

// refresh renews an expired token and saves the result.  A token
// whose grant was revoked, or that cannot be refreshed at all, is
// deleted and nil returned.
func refresh(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, store TokenStore, logger *log.Logger) (*oauth2.Token, error) {
	var fresh *oauth2.Token
	err := errNoRefreshToken
	if tok.RefreshToken != "" {
		fresh, err = cfg.TokenSource(ctx, tok).Token()
	}
	var re *oauth2.RetrieveError
	switch {
	case err == nil:
		if err := store.SaveToken(ctx, fresh); err != nil {
			return nil, errors.Wrap(err, "unable to save OAuth token")
		}
		return fresh, nil
	case err == errNoRefreshToken, errors.As(err, &re) && re.ErrorCode == "invalid_grant":
		logger.Warnf("stored OAuth token is no longer usable: %v", err)
		if err := store.DeleteToken(ctx); err != nil {
			return nil, errors.Wrap(err, "unable to delete OAuth token")
		}
		return nil, nil
	}
	return nil, errors.Wrap(err, "unable to refresh OAuth token")
}

var errNoRefreshToken = errors.New("stored token has no refresh token")

// persistingSource saves every token its base source hands out that
// differs from the last one saved.  Satisfies oauth2.TokenSource.
type persistingSource struct {
	ctx    context.Context
	base   oauth2.TokenSource
	store  TokenStore
	logger *log.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.SaveToken(s.ctx, tok); err != nil {
			// The token in hand is still good.
			s.logger.Warnf("unable to save refreshed OAuth token: %v", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

type callbackResult struct {
	code string
	err  error
}

// authorize runs the installed application flow with a loopback
// redirect and exchanges the resulting code for a token.
func authorize(ctx context.Context, cfg *oauth2.Config, browser func(context.Context, string) error, prompt io.Writer, logger *log.Logger) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Wrap(err, "unable to listen for the OAuth redirect")
	}
	c := *cfg
	c.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr())

	state := uuid.NewString()
	results := make(chan callbackResult, 1)
	srv := &http.Server{Handler: callbackHandler(state, results)}
	go srv.Serve(ln)
	defer srv.Close()

	authURL := c.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintf(prompt, "Grant access to your GMail account by visiting:\n\n%s\n\n", authURL)
	if browser != nil {
		if err := browser(ctx, authURL); err != nil {
			logger.Warnf("unable to open a browser: %v", err)
		}
	}

	var res callbackResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}
	tok, err := c.Exchange(ctx, res.code)
	if err != nil {
		return nil, errors.Wrap(err, "unable to exchange the authorization code")
	}
	logger.Infoln("OAuth consent granted")
	return tok, nil
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	var once sync.Once
	report := func(r callbackResult) {
		once.Do(func() { results <- r })
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			report(callbackResult{err: errors.New("OAuth redirect carried the wrong state")})
		case q.Get("error") != "":
			http.Error(w, "access not granted", http.StatusForbidden)
			report(callbackResult{err: errors.Errorf("OAuth consent refused: %s", q.Get("error"))})
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			report(callbackResult{err: errors.New("OAuth redirect carried no code")})
		default:
			io.WriteString(w, "Access granted. You may close this window and return to the terminal.\n")
			report(callbackResult{code: q.Get("code")})
		}
	})
	return mux
}

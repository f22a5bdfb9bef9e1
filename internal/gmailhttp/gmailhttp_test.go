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

package gmailhttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gologme/log"
	"golang.org/x/oauth2"
)

var discard = log.New(io.Discard, "", 0)

type memStore struct {
	tok     *oauth2.Token
	saves   int
	deletes int
}

func (m *memStore) LoadToken(ctx context.Context) (*oauth2.Token, error) {
	return m.tok, nil
}

func (m *memStore) SaveToken(ctx context.Context, tok *oauth2.Token) error {
	m.tok = tok
	m.saves++
	return nil
}

func (m *memStore) DeleteToken(ctx context.Context) error {
	m.tok = nil
	m.deletes++
	return nil
}

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		ok := r.Form.Get("code") == "the-code"
		if r.Form.Get("grant_type") == "refresh_token" {
			ok = r.Form.Get("refresh_token") == "rt"
		}
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
			return
		}
		io.WriteString(w, `{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeBrowser follows the consent URL straight to the redirect,
// appending the given query.
func fakeBrowser(extra url.Values) func(context.Context, string) error {
	return func(ctx context.Context, authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		v := url.Values{}
		if _, ok := extra["state"]; !ok {
			v.Set("state", q.Get("state"))
		}
		for k, vals := range extra {
			v[k] = vals
		}
		resp, err := http.Get(q.Get("redirect_uri") + "?" + v.Encode())
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

func testSecret(tokenURL string) []byte {
	return []byte(`{"installed":{"client_id":"id","client_secret":"s",` +
		`"auth_uri":"https://accounts.example.com/auth","token_uri":"` + tokenURL + `",` +
		`"redirect_uris":["http://localhost"]}}`)
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokenURL},
		Scopes:       []string{"scope"},
	}
}

func TestAuthorize(t *testing.T) {
	srv := tokenServer(t)
	var prompt bytes.Buffer
	tok, err := authorize(context.Background(), testConfig(srv.URL),
		fakeBrowser(url.Values{"code": {"the-code"}}), &prompt, discard)
	if err != nil {
		t.Fatalf("authorize() = %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" {
		t.Errorf("authorize() = %+v, want access at and refresh rt", tok)
	}
	if !strings.Contains(prompt.String(), "https://accounts.example.com/auth?") {
		t.Errorf("prompt %q lacks the consent URL", prompt.String())
	}
}

func TestAuthorizeFailures(t *testing.T) {
	srv := tokenServer(t)
	cases := []url.Values{
		{"code": {"the-code"}, "state": {"forged"}},
		{"error": {"access_denied"}},
		{},
		{"code": {"wrong-code"}},
	}
	for _, extra := range cases {
		_, err := authorize(context.Background(), testConfig(srv.URL),
			fakeBrowser(extra), io.Discard, discard)
		if err == nil {
			t.Errorf("authorize() with redirect %v = nil error, want failure", extra)
		}
	}
}

func TestAuthorizeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	browser := func(context.Context, string) error {
		cancel()
		return nil
	}
	_, err := authorize(ctx, testConfig("http://127.0.0.1:1/token"), browser, io.Discard, discard)
	if err != context.Canceled {
		t.Errorf("authorize() = %v, want %v", err, context.Canceled)
	}
}

type seqSource struct {
	toks []*oauth2.Token
}

func (s *seqSource) Token() (*oauth2.Token, error) {
	tok := s.toks[0]
	if len(s.toks) > 1 {
		s.toks = s.toks[1:]
	}
	return tok, nil
}

func TestPersistingSource(t *testing.T) {
	store := &memStore{}
	first := &oauth2.Token{AccessToken: "a1"}
	second := &oauth2.Token{AccessToken: "a2"}
	src := &persistingSource{
		ctx:    context.Background(),
		base:   &seqSource{toks: []*oauth2.Token{first, first, second, second}},
		store:  store,
		last:   "a1",
		logger: discard,
	}
	for i := 0; i < 4; i++ {
		if _, err := src.Token(); err != nil {
			t.Fatalf("Token() = %v", err)
		}
	}
	if store.saves != 1 || store.tok != second {
		t.Errorf("saves = %d, stored %v; want 1 save of %v", store.saves, store.tok, second)
	}
}

func TestNewWithStoredToken(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer stored" {
			http.Error(w, "bad auth "+got, http.StatusUnauthorized)
			return
		}
		if got := r.URL.Query().Get("key"); got != "k123" {
			http.Error(w, "bad key "+got, http.StatusForbidden)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer api.Close()

	secret := testSecret("https://oauth2.example.com/token")
	store := &memStore{tok: &oauth2.Token{
		AccessToken: "stored",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}}
	var trace bytes.Buffer
	client, err := New(context.Background(), Options{
		ClientSecret: secret,
		Store:        store,
		APIKey:       "k123",
		Trace:        true,
		Browser: func(context.Context, string) error {
			t.Fatal("consent flow started despite a stored token")
			return nil
		},
		Prompt: io.Discard,
		Logger: log.New(&trace, "", 0),
	})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	resp, err := client.Get(api.URL)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0 for an unchanged token", store.saves)
	}
	if !strings.Contains(trace.String(), "Bearer stored") {
		t.Errorf("trace %q lacks the authorized request", trace.String())
	}
}

func TestNewBadSecret(t *testing.T) {
	_, err := New(context.Background(), Options{ClientSecret: []byte("{}"), Store: &memStore{}, Logger: discard})
	if err == nil {
		t.Error("New() with an empty client secret = nil error, want failure")
	}
}

func TestNewStoredTokenExpired(t *testing.T) {
	srv := tokenServer(t)
	expired := time.Now().Add(-time.Hour)
	cases := []struct {
		name        string
		stored      *oauth2.Token
		wantDeletes int
		wantConsent bool
	}{
		{"refreshed", &oauth2.Token{AccessToken: "old", RefreshToken: "rt", Expiry: expired}, 0, false},
		{"revoked", &oauth2.Token{AccessToken: "old", RefreshToken: "revoked", Expiry: expired}, 1, true},
		{"no refresh token", &oauth2.Token{AccessToken: "old", Expiry: expired}, 1, true},
	}
	for _, tc := range cases {
		store := &memStore{tok: tc.stored}
		consent := false
		browse := fakeBrowser(url.Values{"code": {"the-code"}})
		_, err := New(context.Background(), Options{
			ClientSecret: testSecret(srv.URL),
			Store:        store,
			Browser: func(ctx context.Context, u string) error {
				consent = true
				return browse(ctx, u)
			},
			Prompt: io.Discard,
			Logger: discard,
		})
		if err != nil {
			t.Errorf("%s: New() = %v", tc.name, err)
			continue
		}
		if consent != tc.wantConsent {
			t.Errorf("%s: consent flow ran = %v, want %v", tc.name, consent, tc.wantConsent)
		}
		if store.deletes != tc.wantDeletes {
			t.Errorf("%s: deletes = %d, want %d", tc.name, store.deletes, tc.wantDeletes)
		}
		if store.saves != 1 || store.tok == nil || store.tok.AccessToken != "at" {
			t.Errorf("%s: saves = %d, stored %v; want 1 save of the new token", tc.name, store.saves, store.tok)
		}
	}
}

func TestNewRefreshServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	store := &memStore{tok: &oauth2.Token{AccessToken: "old", RefreshToken: "rt", Expiry: time.Now().Add(-time.Hour)}}
	_, err := New(context.Background(), Options{
		ClientSecret: testSecret(srv.URL),
		Store:        store,
		Prompt:       io.Discard,
		Logger:       discard,
	})
	if err == nil {
		t.Error("New() with an unreachable token server = nil error, want failure")
	}
	if store.deletes != 0 || store.tok == nil {
		t.Errorf("deletes = %d, stored %v; want the token kept", store.deletes, store.tok)
	}
}

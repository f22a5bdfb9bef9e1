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

package tracehttp

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gologme/log"
)

func TestWrap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	client := &http.Client{Transport: Wrap(nil, log.New(&buf, "", 0))}
	resp, err := client.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "pong" {
		t.Errorf("body = %q, want %q", body, "pong")
	}

	out := buf.String()
	for _, want := range []string{"GET /ping", "200 OK", "pong"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace %q lacks %q", out, want)
		}
	}
}

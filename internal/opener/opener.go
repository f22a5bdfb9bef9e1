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

// Package opener hands URLs to the desktop's default handler.
package opener

import (
	"context"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrUnsupportedLink     = errors.New("only http and https links can be opened")
)

// Opener launches the platform's URL handler.
type Opener struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) error
}

// New returns an Opener for the running platform.
func New() *Opener {
	return &Opener{goos: runtime.GOOS, run: run}
}

func run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// command returns the program and arguments that open link on goos.
// On windows the link goes to the URL protocol handler directly; it
// must never pass through cmd.exe, which treats & | < > ^ as syntax.
func command(goos, link string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{link}, nil
	case "darwin":
		return "open", []string{link}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", link}, nil
	}
	return "", nil, errors.Wrapf(ErrUnsupportedPlatform, "cannot open links on %s", goos)
}

// normalize checks that link is an absolute http or https URL and
// returns it re-serialized.
func normalize(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", errors.Wrapf(ErrUnsupportedLink, "%q: %v", link, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", errors.Wrapf(ErrUnsupportedLink, "%q", link)
	}
	if u.Host == "" {
		return "", errors.Wrapf(ErrUnsupportedLink, "%q has no host", link)
	}
	return u.String(), nil
}

// Open opens link and waits for the launcher to exit.
func (o *Opener) Open(ctx context.Context, link string) error {
	link, err := normalize(link)
	if err != nil {
		return err
	}
	name, args, err := command(o.goos, link)
	if err != nil {
		return err
	}
	if err := o.run(ctx, name, args...); err != nil {
		return errors.Wrapf(err, "failed to open %s", link)
	}
	return nil
}

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

// Command mailtriage shows unread GMail messages in the terminal and
// lets the user mark them read or unsubscribe from their senders.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/gologme/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/matta/mailtriage/internal/config"
	"github.com/matta/mailtriage/internal/controller"
	"github.com/matta/mailtriage/internal/credential"
	"github.com/matta/mailtriage/internal/extract"
	"github.com/matta/mailtriage/internal/gmail"
	"github.com/matta/mailtriage/internal/gmailhttp"
	"github.com/matta/mailtriage/internal/logging"
	"github.com/matta/mailtriage/internal/opener"
	"github.com/matta/mailtriage/internal/persist"
	"github.com/matta/mailtriage/internal/render"
	"github.com/matta/mailtriage/internal/sync"
	"github.com/matta/mailtriage/internal/ui"
)

// openTokenStore returns the configured token store and a function
// releasing it.
func openTokenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (gmailhttp.TokenStore, io.Closer, error) {
	switch cfg.Auth.TokenStore {
	case config.StoreKeyring:
		ring, err := credential.Open()
		if err != nil {
			return nil, nil, err
		}
		return credential.NewTokenStore(ring), io.NopCloser(nil), nil
	default:
		db, err := persist.Open(ctx, cfg.Auth.TokenDB, logger)
		if err != nil {
			return nil, nil, errors.Wrap(err, "unable to initialize database")
		}
		return db, db, nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("standard input is not a terminal")
	}

	logger, logFile, err := logging.Open(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return errors.Wrap(err, "unable to initialize logging")
	}
	defer logFile.Close()
	logger.Infof("starting; query %q, batch %d", cfg.Fetch.Query, cfg.Fetch.BatchSize)

	store, closer, err := openTokenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	secret, err := os.ReadFile(cfg.Auth.ClientSecret)
	if err != nil {
		return errors.Wrap(err, "unable to read OAuth client secret")
	}

	op := opener.New()
	client, err := gmailhttp.New(ctx, gmailhttp.Options{
		ClientSecret: secret,
		Store:        store,
		APIKey:       cfg.Auth.APIKey,
		Trace:        cfg.Trace,
		Browser:      op.Open,
		Prompt:       os.Stderr,
		Logger:       logger,
	})
	if err != nil {
		return errors.Wrap(err, "unable to initialize GMail HTTP client")
	}

	s, err := gmail.New(ctx, client, logger)
	if err != nil {
		return errors.Wrap(err, "unable to initialize GMail")
	}
	profile, err := s.GetProfile(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to read GMail profile")
	}
	logger.Infof("signed in as %s; %d unread", profile.EmailAddress, profile.MessagesUnread)

	puller := &sync.Puller{
		Storage:     s,
		Normalizer:  extract.New(render.New(cfg.Render.Width), logger),
		Query:       cfg.Fetch.Query,
		Limit:       cfg.Fetch.BatchSize,
		Concurrency: cfg.Fetch.Concurrency,
		Logger:      logger,
	}
	msgs, err := puller.FetchUnread(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to fetch unread messages")
	}

	ctrl := controller.New(controller.Config{
		Remote:     s,
		Fetcher:    puller,
		Counter:    s,
		Unread:     profile.MessagesUnread,
		Opener:     op,
		Logger:     logger,
		ScrollStep: cfg.UI.ScrollStep,
	}, msgs)

	p := tea.NewProgram(ui.New(ctx, ctrl, *profile, logger),
		tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "terminal interface failed")
	}
	logger.Infoln("exiting")
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "mailtriage",
		Short:         "Triage unread GMail messages from the terminal",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		red := color.New(color.FgRed).SprintfFunc()
		fmt.Fprintln(os.Stderr, red("Failed: %v", err))
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-client/apiclient"
	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/credstore"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const storeFile = "session.db"

// app is everything a command needs to act on the session
type app struct {
	kv     *credstore.SQLiteKV
	api    *authapi.Client
	ctrl   *session.Controller
	client *apiclient.Client
}

func newApp(ctx context.Context) (*app, error) {
	folder := cfg.GetDataFolder()
	if err := os.MkdirAll(folder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[cmd.newApp] data folder")
	}
	kv, err := credstore.OpenSQLite(filepath.Join(folder, storeFile), logger)
	if err != nil {
		return nil, errors.Wrap(err, "[cmd.newApp]")
	}

	hc := &http.Client{Timeout: cfg.GetHTTPTimeout()}
	api := authapi.New(cfg.GetAPIBaseURL(), authapi.WithHTTPClient(hc), authapi.WithLogger(logger))
	store := credstore.New(kv, credstore.WithLogger(logger))
	ctrl := session.New(ctx, api, store, session.WithConfig(cfg), session.WithLogger(logger))

	return &app{
		kv:     kv,
		api:    api,
		ctrl:   ctrl,
		client: apiclient.New(cfg.GetAPIBaseURL(), ctrl, apiclient.WithHTTPClient(hc), apiclient.WithLogger(logger)),
	}, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close session store")
	}
}

// withApp runs fn with a freshly hydrated app
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// requireSession fails when nobody is logged in
func requireSession(a *app) error {
	if !a.ctrl.IsAuthenticated() {
		if msg := a.ctrl.State().LastError; msg != "" {
			return fmt.Errorf("not logged in: %s", msg)
		}
		return fmt.Errorf("not logged in")
	}
	return nil
}

func displayAppname(appname string) {
	if noBanner {
		return
	}
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

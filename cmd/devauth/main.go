package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/devserver"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	seedEmailEnvVar    = "SEED_EMAIL"
	seedPasswordEnvVar = "SEED_PASSWORD"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	if level, err := zerolog.ParseLevel(c.GetLogLevel()); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	displayAppname(c.GetAppName())

	auth := devserver.New(c)
	if err := seedUser(auth); err != nil {
		return err
	}

	server := &http.Server{Addr: c.GetPort(), Handler: auth}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(server) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func seedUser(auth *devserver.Server) error {
	email := config.GetEnv(seedEmailEnvVar, "dev@example.com")
	password := config.GetEnv(seedPasswordEnvVar, "Password1")
	if _, err := auth.AddUser(email, password, "Dev User", authmodel.RoleAdmin); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	log.Info().Str("email", email).Msg("Seeded user")
	return nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

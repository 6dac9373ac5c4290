/*
Package main is the entry point for the chatsync terminal client.

It is responsible for loading configuration, initializing the global logging system,
restoring or establishing the session, starting the chat Manager and running the
command loop on stdin, and gracefully handling operating system interrupt signals
(SIGINT, SIGTERM) so the connection is closed cleanly on exit.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"chatsync/internal/app/api"
	"chatsync/internal/app/chat"
	"chatsync/internal/app/session"
	"chatsync/internal/app/transport"
	"chatsync/internal/configs"
	"chatsync/internal/pkg/logx"
)

func main() {
	// Load configuration from chatsync.yaml and CHAT_* environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("api_url", cfg.APIURL).
		Str("ws_url", cfg.WSURL).
		Dur("reconnect_delay", cfg.ReconnectDelay).
		Msg("Configuration loaded successfully")

	tokenPath := cfg.TokenFile
	if tokenPath == "" {
		if tokenPath, err = session.DefaultTokenPath(); err != nil {
			logx.Fatal(err, "Cannot locate the session file")
		}
	}
	logx.Debug("Session file located", "path", tokenPath)

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newPrinter(os.Stdout)

	var sess *session.Session
	client := api.New(api.Options{
		BaseURL: cfg.APIURL,
		Timeout: cfg.HTTPTimeout,
		Tokens:  func() string { return sess.Token() },
	})
	sess = session.New(client, session.NewFileTokenStore(tokenPath), out)

	if !sess.Restore(ctx) {
		if cfg.Email == "" {
			fmt.Fprintf(os.Stderr, "Not signed in. Set %s_EMAIL and %s_PASSWORD to log in, plus %s_USERNAME to sign up.\n",
				configs.EnvPrefix, configs.EnvPrefix, configs.EnvPrefix)
			os.Exit(1)
		}
		if err := signIn(ctx, sess, cfg); err != nil {
			os.Exit(1)
		}
	}

	conn := transport.NewConnector(cfg.WSURL, transport.Options{ReconnectDelay: cfg.ReconnectDelay})

	manager := chat.NewManager(chat.Deps{
		API:            client,
		Transport:      conn,
		Session:        sess,
		Notifier:       out,
		TypingInterval: cfg.TypingInterval,
		TypingIdle:     cfg.TypingIdle,
	})

	c := newCLI(manager, sess, out)
	sub := manager.Subscribe(c.onChange)
	defer sub.Unsubscribe()

	if err := manager.Start(ctx); err != nil {
		logx.Warn("Initial load incomplete", "error", err.Error())
	}
	c.printConversations()

	if err := runClient(ctx, c, readLines(os.Stdin), manager.Stop); err != nil && !errors.Is(err, context.Canceled) {
		logx.Error(err, "Command loop stopped")
	}

	logx.Info("Client stopped.")
}

// runClient runs the command loop next to a shutdown watcher. Leaving the loop
// or cancelling ctx calls shutdown once.
func runClient(ctx context.Context, c *cli, lines <-chan string, shutdown func()) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return c.run(gCtx, lines)
	})

	g.Go(func() error {
		<-gCtx.Done()
		logx.Info("Shutting down...")
		shutdown()
		return nil
	})

	return g.Wait()
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benaskins/rally/internal/api"
	"github.com/benaskins/rally/internal/config"
	"github.com/benaskins/rally/internal/keychain"
	"github.com/benaskins/rally/internal/relay"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the rally API daemon",
	Long:  "Serve the API key and relay operations over a local Unix socket for UI integrations.",
	RunE:  runDaemon,
}

var (
	apiAddr     string
	memoryStore bool
)

func init() {
	daemonCmd.Flags().StringVar(&apiAddr, "api-addr", "", "Optional TCP address for API (e.g. 127.0.0.1:9090)")
	daemonCmd.Flags().BoolVar(&memoryStore, "memory", false, "Keep the API key in memory instead of the OS credential store")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if apiAddr == "" {
		apiAddr = cfg.APIAddr
	}

	var store keychain.Store = keychain.NewSystemStore()
	if memoryStore {
		store = keychain.NewMemoryStore()
	}

	s, err := openSession("daemon", store)
	if err != nil {
		return err
	}
	defer s.Close()

	slog.Info("rally daemon starting", "memory_store", memoryStore, "audit_log", s.audit.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		if err := config.Watch(ctx, configPath, applyLogLevel); err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()

	sock := socketPath()
	// Remove stale socket
	os.Remove(sock)
	if err := os.MkdirAll(filepath.Dir(sock), 0700); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}

	srv := api.NewServer(s.cred, relay.New(), s.audit)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenUnix(sock)
	}()

	if apiAddr != "" {
		go func() {
			if err := srv.ListenTCP(apiAddr); err != nil {
				slog.Error("TCP API error", "error", err)
			}
		}()
	}

	slog.Info("rally daemon ready")

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			slog.Error("API server error", "error", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	os.Remove(sock)

	slog.Info("rally daemon stopped")
	return nil
}

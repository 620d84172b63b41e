package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func apiClient() *http.Client {
	sock := socketPath()
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sock)
			},
		},
	}
}

func apiGet(path string, v any) error {
	resp, err := apiClient().Get("http://rally" + path)
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w (is rally daemon running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the rally daemon is responding",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var result map[string]string
		if err := apiGet("/v1/health", &result); err != nil {
			return err
		}
		fmt.Printf("daemon: %s (%s)\n", result["status"], socketPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/benaskins/rally/internal/audit"
	"github.com/benaskins/rally/internal/keychain"
	"github.com/benaskins/rally/internal/relay"
	"github.com/spf13/cobra"
)

var requestCmd = &cobra.Command{
	Use:   "request <method> <url-or-path>",
	Short: "Send one authenticated request to the Rally API",
	Long: "Relay a single request with the stored API key as the ZSESSIONID header. " +
		"Relative paths are resolved against base_url from the config. " +
		"The response body is written to stdout and the status to stderr.",
	Example: `  rally request GET /defect?query=(State%20%3D%20Open)
  rally request POST /defect/create --data '{"Defect":{"Name":"Login broken"}}'`,
	Args: cobra.ExactArgs(2),
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringP("data", "d", "", "request body")
	requestCmd.Flags().String("data-file", "", "read the request body from a file")
	requestCmd.Flags().String("key", "", "API key to use instead of the stored one")
	requestCmd.Flags().BoolP("fail", "f", false, "exit non-zero on HTTP status >= 400")
	requestCmd.MarkFlagsMutuallyExclusive("data", "data-file")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	target, err := cfg.ResolveURL(args[1])
	if err != nil {
		return fmt.Errorf("resolving %q: %w", args[1], err)
	}

	body, err := requestBody(cmd)
	if err != nil {
		return err
	}

	s, err := openSession("cli", keychain.NewSystemStore())
	if err != nil {
		return err
	}
	defer s.Close()

	apiKey, _ := cmd.Flags().GetString("key")
	if apiKey == "" {
		val, ok, err := s.cred.Get()
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no API key stored; run 'rally key set' or pass --key")
		}
		apiKey = val
	}

	req := relay.Request{URL: target, Method: args[0], Body: body, APIKey: apiKey}
	resp, err := relay.New().Do(context.Background(), req)

	recordRelay(s.audit, req, resp, err)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "HTTP %d\n", resp.Status)
	fmt.Print(resp.Body)

	if fail, _ := cmd.Flags().GetBool("fail"); fail && resp.Status >= 400 {
		return fmt.Errorf("request failed with HTTP %d", resp.Status)
	}
	return nil
}

func recordRelay(l *audit.Logger, req relay.Request, resp *relay.Response, relayErr error) {
	status := 0
	if resp != nil {
		status = resp.Status
	}
	if err := l.Log(audit.RelayEntry("cli", req.Method, req.URL, status, relayErr)); err != nil {
		slog.Warn("audit log write failed", "error", err)
	}
}

func requestBody(cmd *cobra.Command) (*string, error) {
	if cmd.Flags().Changed("data") {
		data, _ := cmd.Flags().GetString("data")
		return &data, nil
	}
	if path, _ := cmd.Flags().GetString("data-file"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		data := string(b)
		return &data, nil
	}
	return nil, nil
}

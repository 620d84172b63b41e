package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/benaskins/rally/internal/keychain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the Rally API key in the OS credential store",
}

var keySetCmd = &cobra.Command{
	Use:   "set [value]",
	Short: "Store the API key",
	Long: "Store the API key. If value is omitted it is read from --from-command, " +
		"a hidden prompt on a terminal, or stdin (useful for piping).",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromCommand, _ := cmd.Flags().GetString("from-command")

		value, err := readKeyValue(args, fromCommand)
		if err != nil {
			return err
		}

		s, err := openSession("cli", keychain.NewSystemStore())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.cred.Set(value); err != nil {
			return err
		}
		fmt.Println("API key stored")
		return nil
	},
}

var keyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession("cli", keychain.NewSystemStore())
		if err != nil {
			return err
		}
		defer s.Close()

		val, ok, err := s.cred.Get()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "No API key stored")
			return nil
		}
		fmt.Println(val)
		return nil
	},
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether an API key is stored, without printing it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession("cli", keychain.NewSystemStore())
		if err != nil {
			return err
		}
		defer s.Close()

		_, ok, err := s.cred.Get()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("No API key stored")
			return nil
		}

		fmt.Printf("API key stored (%s/%s)\n", keychain.ServiceName, keychain.AccountName)
		if meta := s.cred.Metadata().Get(); meta != nil {
			fmt.Printf("  created: %s\n", meta.CreatedAt.Local().Format("2006-01-02 15:04"))
			fmt.Printf("  updated: %s\n", meta.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var keyDeleteCmd = &cobra.Command{
	Use:     "delete",
	Short:   "Remove the API key",
	Aliases: []string{"rm"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession("cli", keychain.NewSystemStore())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.cred.Delete(); err != nil {
			return err
		}
		fmt.Println("API key deleted")
		return nil
	},
}

func readKeyValue(args []string, fromCommand string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case fromCommand != "":
		return runKeyCommand(fromCommand)
	case term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Print("Enter API key: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		fmt.Println()
		return string(b), nil
	default:
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}
}

// runKeyCommand executes command and returns its stdout as the key, e.g.
// `op read op://Work/Rally/credential`.
func runKeyCommand(command string) (string, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("key command exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("key command: %w", err)
	}
	return strings.TrimRight(string(output), "\r\n"), nil
}

func init() {
	keySetCmd.Flags().String("from-command", "", "shell command whose stdout is the API key")

	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyGetCmd)
	keyCmd.AddCommand(keyStatusCmd)
	keyCmd.AddCommand(keyDeleteCmd)
	rootCmd.AddCommand(keyCmd)
}

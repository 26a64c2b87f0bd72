package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/auth"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Local user directory commands",
	}

	cmd.AddCommand(newUserSignupCmd())
	cmd.AddCommand(newUserLoginCmd())
	cmd.AddCommand(newUserListCmd())
	return cmd
}

// readPassword prompts on a terminal without echo, or reads one line from
// in when it is not a terminal.
func readPassword(cmd *cobra.Command, in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newUserSignupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "signup <username>",
		Short: "Register a new user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAuth(cmd, configPath, args[0], true)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newUserLoginCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Check a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAuth(cmd, configPath, args[0], false)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runUserAuth(cmd *cobra.Command, configPath, username string, signup bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gateway, store, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	password, err := readPassword(cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}
	dir := auth.NewDirectory(gateway, 0)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if signup {
		if err := dir.Signup(ctx, username, password); err != nil {
			return err
		}
		fmt.Fprintf(out, "User %s created\n", username)
		return nil
	}
	if err := dir.Login(ctx, username, password); err != nil {
		return err
	}
	fmt.Fprintf(out, "Credentials for %s are valid\n", username)
	return nil
}

func newUserListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runUserList(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gateway, store, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := gateway.LoadUsers(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(users) == 0 {
		fmt.Fprintln(out, "No users registered.")
		return nil
	}
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%-24s joined %s\n", name, humanize.Time(users[name].CreatedAt))
	}
	return nil
}

// Package login implements the "login" subcommand: runs the SRP exchange
// and 2FA state machine to completion and prints the resulting identity.
package login

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/nab138/isideload/internal/cli/bootstrap"
	"github.com/nab138/isideload/internal/cli/shared"
	"github.com/nab138/isideload/internal/gsaauth"
)

// Command returns the "login" subcommand.
func Command() *ffcli.Command {
	fs := flag.NewFlagSet("login", flag.ExitOnError)

	email := fs.String("email", "", "Apple ID email (required)")
	password := fs.String("password", "", "Apple ID password (prompted if omitted)")
	anisetteURL := fs.String("anisette-url", bootstrap.DefaultAnisetteURL, "Anisette v3 server base URL")
	debug := fs.Bool("debug", false, "Enable verbose GrandSlam request logging")

	return &ffcli.Command{
		Name:       "login",
		ShortUsage: "isideload login --email you@example.com [flags]",
		ShortHelp:  "Authenticate an Apple ID and print its identity.",
		LongHelp: `Authenticate an Apple ID against GrandSlam using SRP, handling any
required two-factor authentication interactively.

Examples:
  isideload login --email you@example.com
  isideload login --email you@example.com --anisette-url https://ani.sidestore.io`,
		FlagSet:   fs,
		UsageFunc: shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			emailValue := strings.TrimSpace(*email)
			if emailValue == "" {
				fmt.Fprintln(os.Stderr, "Error: --email is required")
				return flag.ErrHelp
			}

			passwordValue := *password
			if passwordValue == "" {
				var err error
				passwordValue, err = shared.PromptPassword("Apple ID password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			}

			account, err := bootstrap.NewAccount(ctx, *anisetteURL, emailValue, *debug)
			if err != nil {
				return err
			}

			if err := account.Login(ctx, passwordValue, promptTwoFactorCode); err != nil {
				return err
			}

			first, last, err := account.GetName()
			if err != nil {
				return err
			}
			pet, _ := account.GetPET()

			fmt.Printf("Logged in as %s %s (%s)\n", first, last, emailValue)
			if pet != "" {
				fmt.Println("PET acquired for repair-free app-token requests.")
			}
			return nil
		},
	}
}

func promptTwoFactorCode(ctx context.Context) (string, error) {
	return shared.PromptLine("Enter the 2FA verification code: ")
}

var _ gsaauth.TwoFactorCallback = promptTwoFactorCode

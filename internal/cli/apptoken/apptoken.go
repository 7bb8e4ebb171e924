// Package apptoken implements the "app-token" subcommand: logs in, then
// fetches and decrypts a per-app token.
package apptoken

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/nab138/isideload/internal/cli/bootstrap"
	"github.com/nab138/isideload/internal/cli/shared"
)

// Command returns the "app-token" subcommand.
func Command() *ffcli.Command {
	fs := flag.NewFlagSet("app-token", flag.ExitOnError)

	email := fs.String("email", "", "Apple ID email (required)")
	password := fs.String("password", "", "Apple ID password (prompted if omitted)")
	app := fs.String("app", "", "App name to request a token for, e.g. xcode (required)")
	anisetteURL := fs.String("anisette-url", bootstrap.DefaultAnisetteURL, "Anisette v3 server base URL")
	debug := fs.Bool("debug", false, "Enable verbose GrandSlam request logging")

	return &ffcli.Command{
		Name:       "app-token",
		ShortUsage: "isideload app-token --email you@example.com --app xcode [flags]",
		ShortHelp:  "Log in and fetch a decrypted per-app token.",
		LongHelp: `Authenticates an Apple ID, then requests and decrypts the token for the
named app (the com.apple.gs. prefix is added automatically if missing).

Examples:
  isideload app-token --email you@example.com --app xcode`,
		FlagSet:   fs,
		UsageFunc: shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			emailValue := strings.TrimSpace(*email)
			appValue := strings.TrimSpace(*app)
			if emailValue == "" {
				fmt.Fprintln(os.Stderr, "Error: --email is required")
				return flag.ErrHelp
			}
			if appValue == "" {
				fmt.Fprintln(os.Stderr, "Error: --app is required")
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

			if err := account.Login(ctx, passwordValue, func(ctx context.Context) (string, error) {
				return shared.PromptLine("Enter the 2FA verification code: ")
			}); err != nil {
				return err
			}

			token, err := account.GetAppToken(ctx, appValue)
			if err != nil {
				return err
			}

			fmt.Printf("token:    %s\n", token.Token)
			fmt.Printf("duration: %d\n", token.Duration)
			fmt.Printf("expiry:   %d\n", token.Expiry)
			return nil
		},
	}
}

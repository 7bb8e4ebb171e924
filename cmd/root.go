// Package cmd assembles the isideload root command from its subcommands.
package cmd

import (
	"context"
	"flag"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/nab138/isideload/internal/cli/apptoken"
	"github.com/nab138/isideload/internal/cli/login"
	"github.com/nab138/isideload/internal/cli/provision"
	"github.com/nab138/isideload/internal/cli/shared"
)

// RootCommand builds the top-level isideload command tree.
func RootCommand(version string) *ffcli.Command {
	fs := flag.NewFlagSet("isideload", flag.ExitOnError)

	return &ffcli.Command{
		Name:       "isideload",
		ShortUsage: "isideload <subcommand> [flags]",
		ShortHelp:  "Authenticate an Apple ID against GrandSlam and drive anisette provisioning.",
		LongHelp: `isideload ` + version + `

A client for Apple's GrandSlam (GSA) identity service: SRP login, anisette
device-attestation provisioning, two-factor authentication, and per-app
token acquisition.`,
		FlagSet:   fs,
		UsageFunc: shared.DefaultUsageFunc,
		Subcommands: []*ffcli.Command{
			login.Command(),
			apptoken.Command(),
			provision.Command(),
		},
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
	}
}

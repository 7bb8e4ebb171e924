// Package provision implements the "provision" subcommand: runs anisette
// device provisioning on demand and prints a derived header snapshot,
// independent of any Apple ID login.
package provision

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/nab138/isideload/internal/anisette"
	"github.com/nab138/isideload/internal/cli/bootstrap"
	"github.com/nab138/isideload/internal/cli/shared"
	"github.com/nab138/isideload/internal/grandslam"
)

// Command returns the "provision" subcommand.
func Command() *ffcli.Command {
	fs := flag.NewFlagSet("provision", flag.ExitOnError)

	anisetteURL := fs.String("anisette-url", bootstrap.DefaultAnisetteURL, "Anisette v3 server base URL")
	force := fs.Bool("force", false, "Re-provision even if a device identity is already stored")

	return &ffcli.Command{
		Name:       "provision",
		ShortUsage: "isideload provision [flags]",
		ShortHelp:  "Provision (or re-provision) the local anisette device identity.",
		LongHelp: `Runs the anisette WebSocket provisioning handshake if the local device
identity hasn't been provisioned yet, then prints the derived attestation
headers. Useful for diagnosing anisette server connectivity without an
Apple ID.

Examples:
  isideload provision
  isideload provision --force`,
		FlagSet:   fs,
		UsageFunc: shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			storage, err := anisette.NewDefaultStorage()
			if err != nil {
				return fmt.Errorf("open anisette storage: %w", err)
			}

			lazy := &anisette.LazyURLBag{}
			provider, err := anisette.NewRemoteV3Provider(ctx, *anisetteURL, lazy.Resolve, storage)
			if err != nil {
				return fmt.Errorf("build anisette provider: %w", err)
			}

			info, err := provider.ClientInfo(ctx)
			if err != nil {
				return fmt.Errorf("fetch anisette client info: %w", err)
			}
			gs, err := grandslam.NewClient(grandslam.ClientInfo{ClientInfo: info.ClientInfo, UserAgent: info.UserAgent}, false)
			if err != nil {
				return fmt.Errorf("build grandslam client: %w", err)
			}
			lazy.Set(gs.URLBag)

			if *force || provider.NeedsProvisioning() {
				if err := provider.Provision(ctx); err != nil {
					return fmt.Errorf("provision: %w", err)
				}
				fmt.Println("Device provisioned.")
			} else {
				fmt.Println("Device already provisioned.")
			}

			data, err := provider.HeaderData(ctx)
			if err != nil {
				return fmt.Errorf("fetch headers: %w", err)
			}
			fmt.Printf("X-Apple-I-MD-M:     %s\n", data.MachineID)
			fmt.Printf("X-Apple-I-MD:       %s\n", data.OneTimePassword)
			fmt.Printf("X-Apple-I-MD-RINFO: %s\n", data.RoutingInfo)
			fmt.Printf("X-Mme-Device-Id:    %s\n", data.DeviceUniqueIdentifier)
			return nil
		},
	}
}

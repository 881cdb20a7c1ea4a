package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the phnx-homeserver binary. It
// has no behavior of its own: each of its three domain services is started
// through its own subcommand.
var rootCmd = &cobra.Command{
	Use:   "phnx-homeserver",
	Short: "Federated end-to-end encrypted messaging homeserver",
	Long: `phnx-homeserver runs the three services that make up one federated
homeserver deployment: the Authentication Service (credentials and user
registration), the Queueing Service (per-device message mailboxes), and the
Delivery Service (MLS group state and fan-out).

Each runs as its own process; run "phnx-homeserver serve-as|serve-qs|serve-ds"
to start one.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected at build time
// from the main package.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the entry point called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "phnx-homeserver version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeASCmd())
	rootCmd.AddCommand(newServeQSCmd())
	rootCmd.AddCommand(newServeDSCmd())
}

// Command dialerctl is the operator CLI: schema migrations, number setup, lead seeding,
// token minting and a terminal view of the agent API.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "DIALER"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("api_url", "http://localhost:8080")

	root := &cobra.Command{
		Use:           "dialerctl",
		Short:         "Call-center dialer operations",
		Long:          "Operator commands for the dialer API: database, provider number, leads and the agent queue.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("api-url", "", "Dialer API base URL (env DIALER_API_URL)")
	root.PersistentFlags().String("token", "", "Access token for agent commands (env DIALER_TOKEN)")
	_ = v.BindPFlag("api_url", root.PersistentFlags().Lookup("api-url"))
	_ = v.BindPFlag("token", root.PersistentFlags().Lookup("token"))

	root.AddCommand(
		createMigrateCommand(),
		createSetupNumberCommand(),
		createTokenCommand(),
		createLeadCommands(),
		createWaitingCommand(v),
		createClaimCommand(v),
		createDialCommand(v),
		createStatusCommand(v),
		createHangupCommand(v),
		createAvailabilityCommand(v, "online", true),
		createAvailabilityCommand(v, "offline", false),
	)
	return root
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialer-platform/internal/dialer"
	"dialer-platform/internal/telephony"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const requestTimeout = 15 * time.Second

func agentBackend(v *viper.Viper) (*dialer.HTTPBackend, error) {
	token := v.GetString("token")
	if token == "" {
		return nil, errors.New("an access token is required (--token or DIALER_TOKEN)")
	}
	return dialer.NewHTTPBackend(v.GetString("api_url"), token), nil
}

func withBackend(v *viper.Viper, fn func(ctx context.Context, cmd *cobra.Command, b *dialer.HTTPBackend, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		b, err := agentBackend(v)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		return fn(ctx, cmd, b, args)
	}
}

func createWaitingCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "waiting",
		Short: "List inbound callers waiting for an agent",
		RunE: withBackend(v, func(ctx context.Context, cmd *cobra.Command, b *dialer.HTTPBackend, args []string) error {
			calls, err := b.Waiting(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(calls) == 0 {
				fmt.Fprintln(out, yellow("No callers waiting"))
				return nil
			}
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Call SID", "Caller", "Conference", "Waiting"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			now := time.Now()
			for _, c := range calls {
				table.Append([]string{
					c.CallSID,
					c.CallerNumber,
					c.ConferenceName,
					now.Sub(c.ReceivedAt).Truncate(time.Second).String(),
				})
			}
			table.Render()
			return nil
		}),
	}
}

func createClaimCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <call-sid>",
		Short: "Answer a waiting caller on this agent's browser client",
		Args:  cobra.ExactArgs(1),
		RunE: withBackend(v, func(ctx context.Context, cmd *cobra.Command, b *dialer.HTTPBackend, args []string) error {
			if err := b.Claim(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Claimed %s\n", green("✓"), args[0])
			return nil
		}),
	}
}

func createDialCommand(v *viper.Viper) *cobra.Command {
	var leadID string
	cmd := &cobra.Command{
		Use:   "dial <number>",
		Short: "Bridge this agent's browser client to a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: withBackend(v, func(ctx context.Context, cmd *cobra.Command, b *dialer.HTTPBackend, args []string) error {
			call, err := b.Dial(ctx, args[0], leadID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Dialing %s\n", green("✓"), args[0])
			fmt.Fprintf(out, "  customer leg: %s\n  agent leg:    %s\n  conference:   %s\n",
				call.CustomerCallSID, call.AgentCallSID, call.ConferenceName)
			return nil
		}),
	}
	cmd.Flags().StringVar(&leadID, "lead", "", "Lead ID to mark dialed")
	return cmd
}

func createStatusCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status <call-sid>",
		Short: "Show a customer leg's provider status",
		Args:  cobra.ExactArgs(1),
		RunE: withBackend(v, func(ctx context.Context, cmd *cobra.Command, b *dialer.HTTPBackend, args []string) error {
			st, err := b.CustomerStatus(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%ds)\n", args[0], colorStatus(st.Status), st.Duration)
			return nil
		}),
	}
}

func createHangupCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "hangup <call-sid>",
		Short: "End a call leg",
		Args:  cobra.ExactArgs(1),
		RunE: withBackend(v, func(ctx context.Context, cmd *cobra.Command, b *dialer.HTTPBackend, args []string) error {
			if err := b.EndCall(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Ended %s\n", green("✓"), args[0])
			return nil
		}),
	}
}

func createAvailabilityCommand(v *viper.Viper, use string, online bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: "Mark this agent " + use + " for inbound calls",
		RunE: withBackend(v, func(ctx context.Context, cmd *cobra.Command, b *dialer.HTTPBackend, args []string) error {
			if err := b.SetAvailability(ctx, online); err != nil {
				return err
			}
			state := red(use)
			if online {
				state = green(use)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent is now %s\n", state)
			return nil
		}),
	}
}

func colorStatus(s telephony.CallStatus) string {
	switch {
	case s == telephony.StatusInProgress:
		return green(string(s))
	case s == telephony.StatusCompleted:
		return bold(string(s))
	case s.IsTerminal():
		return red(string(s))
	default:
		return yellow(string(s))
	}
}

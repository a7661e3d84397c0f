package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/config"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/store"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// cliActor is the actor recorded for lead changes made from the CLI.
var cliActor = auth.Subject{UserID: "dialerctl", Role: rbac.RoleAdmin}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db, cfg.Store.Driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func createMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := logger.With(cmd.Context(), logger.New(cfg.App.Env, logger.Options{}))
			db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s schema is up to date\n", green("✓"), cfg.Store.Driver)
			return nil
		},
	}
}

func createSetupNumberCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-number",
		Short: "Point the account phone number's voice URL at this deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.HasTwilioCredentials() {
				return errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required")
			}
			if cfg.Twilio.PhoneNumber == "" {
				return errors.New("TWILIO_PHONE_NUMBER is not configured")
			}
			base := cfg.PublicURL()
			if config.IsLocalURL(base) {
				return errors.New("APP_URL must be a public HTTPS URL, not localhost")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := telephony.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.APIBaseURL)
			voiceURL := strings.TrimRight(base, "/") + httpapi.VoiceWebhookPath
			sid, err := client.ConfigureVoiceURL(ctx, cfg.Twilio.PhoneNumber, voiceURL)
			if err != nil {
				return fmt.Errorf("configure number: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s) voice URL set to %s\n", green("✓"), cfg.Twilio.PhoneNumber, sid, voiceURL)
			return nil
		},
	}
}

func createTokenCommand() *cobra.Command {
	var (
		userID string
		email  string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access/refresh token pair for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rbac.IsKnown(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			pair, err := m.IssuePair(time.Now(), auth.Subject{UserID: userID, Email: email, Role: role})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", bold("access: "), pair.AccessToken)
			fmt.Fprintf(out, "%s %s\n", bold("refresh:"), pair.RefreshToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (token subject)")
	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&role, "role", rbac.RoleAgent, "Role (agent/manager/admin/super_admin)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func createLeadCommands() *cobra.Command {
	leadCmd := &cobra.Command{
		Use:   "lead",
		Short: "Manage leads",
	}
	leadCmd.AddCommand(createLeadAddCommand(), createLeadListCommand())
	return leadCmd
}

func leadService(ctx context.Context) (*leads.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	auditSvc := audit.NewService(audit.NewSQLRepo(db, cfg.Store.Driver))
	svc := leads.NewService(leads.NewSQLRepo(db, cfg.Store.Driver), auditSvc)
	return svc, func() { _ = db.Close() }, nil
}

func createLeadAddCommand() *cobra.Command {
	var l leads.Lead
	var status string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a lead",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := leadService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			l.Status = leads.Status(status)
			created, err := svc.Create(cmd.Context(), l)
			if err != nil {
				return fmt.Errorf("failed to create lead: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Lead '%s' created (%s)\n", green("✓"), created.Name, created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&l.Name, "name", "", "Contact name")
	cmd.Flags().StringVar(&l.Phone, "phone", "", "Phone number (E.164)")
	cmd.Flags().StringVar(&l.Email, "email", "", "Email")
	cmd.Flags().StringVar(&l.Company, "company", "", "Company")
	cmd.Flags().StringVar(&l.AssignedTo, "assign", "", "Owning agent user ID")
	cmd.Flags().IntVar(&l.Score, "score", 0, "Score 0-100")
	cmd.Flags().StringVar(&status, "status", "", "Initial status (default new)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func createLeadListCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leads",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := leadService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			list, err := svc.List(cmd.Context(), cliActor, leads.Status(status))
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Name", "Phone", "Assigned", "Status", "Score", "Last Call"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			for _, l := range list {
				last := "-"
				if l.LastCallDate != nil {
					last = l.LastCallDate.Local().Format("2006-01-02 15:04")
				}
				table.Append([]string{
					l.ID, l.Name, l.Phone, l.AssignedTo, string(l.Status), strconv.Itoa(l.Score), last,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	return cmd
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/relaygate/internal/api/request"
	"github.com/mcoot/relaygate/internal/api/response"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show relay status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status response.Status
			if err := client.Get("/api/v1/status", &status); err != nil {
				return err
			}
			out.Print(status)
			return nil
		},
	}
}

func newMaintenanceCmd() *cobra.Command {
	var disconnect bool

	cmd := &cobra.Command{
		Use:       "maintenance <on|off>",
		Short:     "Toggle maintenance mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}

			var status response.Status
			req := request.MaintenanceRequest{Enabled: enabled, DisconnectAll: disconnect}
			if err := client.Post("/api/v1/maintenance", req, &status); err != nil {
				return err
			}
			out.Print(status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&disconnect, "disconnect", false, "Disconnect every live session when enabling")
	return cmd
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage stored user entries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored user entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp response.UsersResponse
			if err := client.Get("/api/v1/users", &resp); err != nil {
				return err
			}
			out.Print(resp)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <account_id>",
		Short: "Show a user entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			var user response.User
			if err := client.Get(fmt.Sprintf("/api/v1/users/%d", id), &user); err != nil {
				return err
			}
			out.Print(user)
			return nil
		},
	})

	cmd.AddCommand(newUserBanCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "unban <account_id>",
		Short: "Lift a ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			var user response.User
			if err := client.Delete(fmt.Sprintf("/api/v1/users/%d/ban", id), nil, &user); err != nil {
				return err
			}
			out.Print(user)
			return nil
		},
	})

	return cmd
}

func newUserBanCmd() *cobra.Command {
	var (
		reason     string
		duration   time.Duration
		disconnect bool
	)

	cmd := &cobra.Command{
		Use:   "ban <account_id>",
		Short: "Ban an account, permanently unless --for is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}

			req := request.BanRequest{Reason: reason, Disconnect: disconnect}
			if duration > 0 {
				req.Expiry = time.Now().Add(duration).Unix()
			}

			var user response.User
			if err := client.Post(fmt.Sprintf("/api/v1/users/%d/ban", id), req, &user); err != nil {
				return err
			}
			out.Print(user)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to the player")
	cmd.Flags().DurationVar(&duration, "for", 0, "Ban duration; zero bans permanently")
	cmd.Flags().BoolVar(&disconnect, "disconnect", true, "Disconnect the account if it is online")

	return cmd
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and disconnect live sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp response.SessionsResponse
			if err := client.Get("/api/v1/sessions", &resp); err != nil {
				return err
			}
			out.Print(resp)
			return nil
		},
	})

	var message string
	kick := &cobra.Command{
		Use:   "kick <account_id>",
		Short: "Disconnect the session holding an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			if err := client.Delete(fmt.Sprintf("/api/v1/sessions/%d", id), request.KickRequest{Message: message}, nil); err != nil {
				return err
			}
			out.PrintMessage(fmt.Sprintf("Disconnected account %d", id))
			return nil
		},
	}
	kick.Flags().StringVar(&message, "message", "", "Message shown to the player")
	cmd.AddCommand(kick)

	return cmd
}

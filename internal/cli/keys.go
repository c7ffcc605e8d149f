package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/dependencies/clock"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/services/token"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a server key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := cryptobox.GenerateKeyPair()
			if err != nil {
				return err
			}
			out.Print(KeyPairResult{
				PublicKey: cryptobox.EncodeKey(keys.Public),
				SecretKey: cryptobox.EncodeKey(keys.Secret),
			})
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Login token commands",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		secret   string
		userID   int32
		name     string
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue <account_id>",
		Short: "Issue a login token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}

			issuer, err := token.New(token.Config{Secret: secret, Validity: validity}, clock.New())
			if err != nil {
				return err
			}
			tok, err := issuer.Issue(accountID, model.UserID(userID), name)
			if err != nil {
				return err
			}
			out.Print(TokenResult{Token: tok})
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("RELAY_TOKEN_SECRET"), "Token signing secret (env: RELAY_TOKEN_SECRET)")
	cmd.Flags().Int32Var(&userID, "user", 0, "User id (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().DurationVar(&validity, "validity", token.DefaultConfig().Validity, "How long the token is accepted")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func parseAccountID(s string) (model.AccountID, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", s)
	}
	return model.AccountID(id), nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/spf13/cobra"

	"ticket-gate/config"
	"ticket-gate/internal/credential"
)

// registerCredentialCommand adds operator tooling for checking scanned
// payloads offline with the configured secret.
func registerCredentialCommand(app *pocketbase.PocketBase, cfg *config.Config) {
	credentialCmd := &cobra.Command{
		Use:   "credential",
		Short: "Ticket credential tooling",
	}

	credentialCmd.AddCommand(&cobra.Command{
		Use:   "inspect <payload>",
		Short: "Decode and verify a scanned credential payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			codec, err := credential.NewCodec([]byte(cfg.CredentialSecret))
			if err != nil {
				return err
			}
			return inspectCredential(c, codec, args[0], cfg.CredentialMaxAge, time.Now())
		},
	})

	app.RootCmd.AddCommand(credentialCmd)
}

type inspection struct {
	Claims   *credential.Claims `json:"claims"`
	IssuedAt time.Time          `json:"issued_at_time"`
	Expired  bool               `json:"expired"`
}

func inspectCredential(c *cobra.Command, codec *credential.Codec, payload string, maxAge time.Duration, now time.Time) error {
	claims, err := codec.Decode(payload)
	if err != nil {
		return fmt.Errorf("invalid credential: %w", err)
	}

	out, err := json.MarshalIndent(inspection{
		Claims:   claims,
		IssuedAt: claims.IssuedTime().UTC(),
		Expired:  claims.Expired(now, maxAge),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.OutOrStdout(), string(out))
	return nil
}

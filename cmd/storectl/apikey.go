package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/auth"
	"github.com/xenking/authorstore/internal/handler"
	"github.com/xenking/authorstore/internal/storage/postgres"
)

func newAPIKeyCmd(opts *rootOptions) *cobra.Command {
	var (
		id     string
		name   string
		key    string
		pepper string
		scopes []string
	)
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Provision or rotate a back-office API key",
		Long: `Provision or rotate a back-office API key. Only the HMAC of the key is
stored; a generated key is printed once to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return errors.New("--id is required")
			}
			if pepper == "" {
				pepper = os.Getenv("STORE_AUTH_API_KEY_PEPPER")
			}
			if pepper == "" {
				return errors.New("pepper is required: set --pepper or STORE_AUTH_API_KEY_PEPPER")
			}
			generated := key == ""
			if generated {
				var err error
				if key, err = generateKey(); err != nil {
					return err
				}
			}

			return opts.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				info := auth.APIKeyInfo{
					ID:      id,
					Name:    name,
					KeyHash: handler.HashAPIKey([]byte(pepper), key),
					Scopes:  scopes,
				}
				if err := postgres.NewAPIKeyRepository(pool).Upsert(cmd.Context(), info); err != nil {
					return err
				}
				opts.lg.Info("API key stored", zap.String("id", id), zap.Strings("scopes", scopes))
				if generated {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Key id")
	cmd.Flags().StringVar(&name, "name", "", "Human readable key name")
	cmd.Flags().StringVar(&key, "key", "", "Key value; generated when empty")
	cmd.Flags().StringVar(&pepper, "pepper", "", "HMAC pepper (or STORE_AUTH_API_KEY_PEPPER env)")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeOrdersAdmin}, "Granted scopes")
	return cmd
}

func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate key")
	}
	return "sk_store_" + hex.EncodeToString(buf), nil
}

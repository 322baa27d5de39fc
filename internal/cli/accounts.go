package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/djamrezki/instant-payment-service/internal/config"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Provision accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "create IBAN=amount...",
		Short:   "Create accounts with an opening balance",
		Example: `  instantpay accounts create DE89370400440532013000=100.00 GB82WEST12345698765432=0`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds, err := parseSeeds(args)
			if err != nil {
				return err
			}
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.StorageDriver != config.StorageDriverPostgres {
				return fmt.Errorf("accounts create needs STORAGE_DRIVER=%s, use serve --seed with in-memory storage", config.StorageDriverPostgres)
			}

			st, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()
			return st.provisionAll(cmd.Context(), seeds, logger)
		},
	})

	return cmd
}

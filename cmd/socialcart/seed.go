package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-socialcart-backend/internal/catalog"
	"github.com/tbourn/go-socialcart-backend/internal/favorites"
	"github.com/tbourn/go-socialcart-backend/internal/services"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the catalog's seed users and favorites",
	Long: `Creates the users listed in the catalog seed (CATALOG_PATH or the embedded
default) and their initial favorites. Users that already exist are skipped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		store, err := openStore(cfg, db)
		if err != nil {
			return err
		}
		defer store.Close()

		cat, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		n, err := seedUsers(ctx, cat, services.NewUserService(db), favorites.New(store))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked %d seed users\n", n)
		return nil
	},
}

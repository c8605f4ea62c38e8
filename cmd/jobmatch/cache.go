package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pkgredis "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/redis"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the Redis embedding cache",
}

var purgePattern string

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached embeddings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rc.Close()
		n, err := rc.FlushByPattern(ctx, purgePattern)
		if err != nil {
			return fmt.Errorf("purging %q: %w", purgePattern, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys matching %s\n", n, purgePattern)
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().StringVar(&purgePattern, "pattern", "emb:*", "key pattern to delete")
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

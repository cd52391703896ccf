package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/simoptlab/simopt/internal/cache"
)

var cacheDir string

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the on-disk solution cache",
	}

	cmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", ".simopt-cache", "Directory for the on-disk solution cache")

	cmd.AddCommand(newCacheInfoCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the number of cached solutions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := openFileCache()
			if err != nil {
				return err
			}
			fmt.Printf("%d cached solution(s) in %s\n", fc.Len(), cacheDir)
			return nil
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached solutions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := openFileCache()
			if err != nil {
				return err
			}
			n := fc.Len()
			if err := fc.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Printf("Removed %d cached solution(s)\n", n)
			return nil
		},
	}
}

// openFileCache opens the cache for maintenance only. No problem definition
// is attached, so entries cannot be rehydrated; Len and Clear operate on the
// files alone.
func openFileCache() (*cache.FileCache, error) {
	absDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("resolving cache directory: %w", err)
	}
	return cache.NewFileCache(absDir, nil, ""), nil
}

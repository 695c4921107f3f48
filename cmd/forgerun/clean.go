package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"forgerun/internal/cache"
	"forgerun/internal/config"
)

func newCleanCmd() *cobra.Command {
	cleanCmd := &cobra.Command{
		Use:   "clean [path]",
		Short: "Remove the runner cache and saved traces",
		Long:  "Remove the cache directory (failed test list) and the saved execution traces of the project.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runClean,
	}
	cleanCmd.Flags().Bool("keep-traces", false, "only clear the cache")
	return cleanCmd
}

func runClean(cmd *cobra.Command, args []string) error {
	baseDir := "."
	if len(args) > 0 && args[0] != "" {
		baseDir = args[0]
	}
	manifest, err := config.LoadManifest(baseDir)
	if err != nil {
		return err
	}
	keepTraces, err := cmd.Flags().GetBool("keep-traces")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	store, err := cache.Open(underRoot(manifest.Root, manifest.Config.CacheDir))
	if err != nil {
		return err
	}
	if err := store.Clean(); err != nil {
		return fmt.Errorf("failed to clean cache: %w", err)
	}
	_, _ = fmt.Fprintf(out, "removed %s\n", relTo(manifest.Root, store.Dir()))

	if keepTraces {
		return nil
	}
	traceDir := underRoot(manifest.Root, manifest.Config.TraceDir)
	if _, err := os.Stat(traceDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %q: %w", traceDir, err)
	}
	if err := os.RemoveAll(traceDir); err != nil {
		return fmt.Errorf("failed to remove %q: %w", traceDir, err)
	}
	_, _ = fmt.Fprintf(out, "removed %s\n", relTo(manifest.Root, traceDir))
	return nil
}

func relTo(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil {
		return rel
	}
	return p
}

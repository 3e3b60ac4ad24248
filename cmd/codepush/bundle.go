package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/lib"
)

func NewBundleCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "bundle [directory]",
		Short: "Package an app directory into a release archive and manifest.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runBundle(dir, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "bundle.zip", "Path of the release archive to write")

	return cmd
}

func runBundle(dir, output string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("could not resolve absolute path for %s: %w", dir, err)
	}
	if _, err := os.Stat(absDir); os.IsNotExist(err) {
		return fmt.Errorf("target directory does not exist: %s", absDir)
	}

	fmt.Printf("📦 Bundling \"%s\"...\n", absDir)

	archive, manifest, err := lib.BundleDirectory(absDir)
	if err != nil {
		return fmt.Errorf("bundling failed: %w", err)
	}
	if err := os.WriteFile(output, archive, 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	manifestData, err := manifest.Serialize()
	if err != nil {
		return err
	}
	manifestPath := output + ".manifest.json"
	if err := os.WriteFile(manifestPath, manifestData, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	fmt.Println("✅ Bundle complete!")
	fmt.Printf("   - Archive: %s (%d bytes, %d files)\n", output, len(archive), manifest.Len())
	fmt.Printf("   - Manifest: %s\n", manifestPath)
	fmt.Printf("   - Package Hash: %s\n", manifest.PackageHash())
	return nil
}

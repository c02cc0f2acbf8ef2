package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	syncp "github.com/njoerd114/mosquesync/internal/sync"
)

func uploadCmd(opts *globalOpts) *cobra.Command {
	var mimeType string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a carousel image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening image: %w", err)
			}
			defer func() { _ = f.Close() }()

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			img, err := a.engine.UploadImage(ctx, syncp.UploadRequest{Source: f, MimeType: mimeType})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Uploaded %s (position %d)\n  %s\n", img.ID, img.DisplayOrder+1, img.URI())
			return nil
		},
	}
	cmd.Flags().StringVar(&mimeType, "type", "", "image MIME type (sniffed from the content when empty)")
	return cmd
}

func deleteCmd(opts *globalOpts) *cobra.Command {
	var uri string
	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a carousel image by ID or URI",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := syncp.DeleteRequest{URI: uri}
			if len(args) == 1 {
				req.ID = args[0]
			}
			if req.ID == "" && req.URI == "" {
				return fmt.Errorf("an image ID or --uri is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			remaining, err := a.engine.DeleteImage(ctx, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Deleted. %d image(s) remain:\n", len(remaining))
			for _, img := range remaining {
				fmt.Fprintf(out, "  %d. %s\n", img.DisplayOrder+1, img.URI())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&uri, "uri", "", "public URI of the image to delete")
	return cmd
}

package main

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-pipeline/internal/app"
	"github.com/dvloznov/statement-pipeline/internal/objectstore"
)

var (
	uploadBucket string
	uploadPrefix string
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file-or-dir ...]",
	Short: "Upload local statement PDFs to the raw prefix",
	Long: `Uploads PDFs to {bucket}/{prefix}/{year}/{name}, where year comes from the
date in the file name. Without arguments the configured local folder is used.`,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadBucket, "bucket", "", "destination bucket (defaults to the configured bucket)")
	uploadCmd.Flags().StringVar(&uploadPrefix, "prefix", "", "destination prefix (defaults to the raw PDF prefix)")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if uploadBucket == "" {
		uploadBucket = cfg.Storage.Bucket
	}
	if uploadPrefix == "" {
		uploadPrefix = cfg.Prefixes.PDF
	}
	if len(args) == 0 {
		args = []string{cfg.PDF.LocalPath}
	}

	files, err := collectPDFs(args)
	if err != nil {
		return err
	}

	stores, err := app.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()
	store, err := stores.Open(ctx, uploadBucket)
	if err != nil {
		return err
	}

	for _, f := range files {
		key := UploadKey(uploadPrefix, filepath.Base(f))
		log.Info().
			Str("bucket", uploadBucket).
			Str("object", key).
			Str("file", f).
			Msg("Uploading file")
		if err := store.PutFile(ctx, key, f, objectstore.ContentTypePDF); err != nil {
			return fmt.Errorf("upload %s: %w", f, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", f, store.URI(key))
	}
	return nil
}

// UploadKey places name under prefix in its year folder.
func UploadKey(prefix, name string) string {
	return path.Join(strings.Trim(prefix, "/"), objectstore.YearFolder(name), name)
}

// collectPDFs expands directories into the PDFs they contain, recursively.
func collectPDFs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".pdf") {
				out = append(out, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", arg, err)
		}
	}
	return out, nil
}

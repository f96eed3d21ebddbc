/*
Package mediacmd has the command-line counterparts of the dashboard: bulk
uploading image files and deleting assets by id.
*/
package mediacmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	color "github.com/PatchWorkCreations/iriseup-foundation/src/ansicolor"
	"github.com/PatchWorkCreations/iriseup-foundation/src/app"
	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
	"github.com/PatchWorkCreations/iriseup-foundation/src/utils"
	"github.com/PatchWorkCreations/iriseup-foundation/src/website"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	var opts UploadOptions
	var storageType string

	uploadCommand := &cobra.Command{
		Use:   "upload <image path or glob>...",
		Short: "Upload one or more images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ok := parseStorageType(storageType)
			if !ok {
				return oops.New(nil, "unknown storage type %q (want local or remote)", storageType)
			}
			opts.StorageType = st

			svc, closeRecords, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRecords()

			out := plainUnlessTerminal(cmd.OutOrStdout())
			fmt.Fprintf(out, "%sStarting image upload(s)...%s\n", color.Green, color.Reset)
			fmt.Fprintf(out, "Storage type: %s\n", opts.StorageType)
			fmt.Fprintf(out, "Folder: %s\n\n", utils.OrDefault(opts.Folder, config.Config.Media.DefaultFolder))

			summary := UploadFiles(cmd.Context(), svc, args, opts, out)
			if summary.Errors > 0 {
				return oops.New(nil, "%d of %d uploads failed", summary.Errors, summary.Errors+summary.Success)
			}
			return nil
		},
	}
	uploadCommand.Flags().StringVar(&opts.Folder, "folder", "", "Folder to file the images under")
	uploadCommand.Flags().StringVar(&opts.Title, "title", "", "Title for the images (default: each file name without extension)")
	uploadCommand.Flags().StringVar(&storageType, "storage-type", "local", "Storage backend: local or remote")
	uploadCommand.Flags().IntVar(&opts.Jobs, "jobs", 1, "Number of images to process at once")

	deleteCommand := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete media assets and their stored images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := strconv.Atoi(arg)
				if err != nil || id <= 0 {
					return oops.New(err, "invalid media asset id %q", arg)
				}
				ids = append(ids, id)
			}

			svc, closeRecords, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRecords()

			failed := DeleteAssets(cmd.Context(), svc, ids, plainUnlessTerminal(cmd.OutOrStdout()))
			if failed > 0 {
				return oops.New(nil, "%d of %d deletes failed", failed, len(ids))
			}
			return nil
		},
	}

	website.WebsiteCommand.AddCommand(uploadCommand)
	website.WebsiteCommand.AddCommand(deleteCommand)
}

func connect(ctx context.Context) (*media.Service, func(), error) {
	records, err := app.ConnectRecords(ctx, config.Config.Postgres)
	if err != nil {
		return nil, nil, err
	}
	m, err := app.NewMedia(ctx, config.Config, records.Records)
	if err != nil {
		records.Close()
		return nil, nil, err
	}
	return m.Service, records.Close, nil
}

// Output piped to a file or another program gets no escape codes.
func plainUnlessTerminal(out io.Writer) io.Writer {
	if f, ok := out.(*os.File); ok && !color.IsTerminal(f) {
		color.Disable()
	}
	return out
}

// "cloudinary" is accepted for scripts written against the old command.
func parseStorageType(raw string) (models.StorageType, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "cloudinary" {
		return models.StorageRemote, true
	}
	return models.ParseStorageType(raw)
}

type UploadOptions struct {
	Folder      string
	Title       string
	StorageType models.StorageType
	Jobs        int
}

type UploadSummary struct {
	Success int
	Errors  int
}

type uploadResult struct {
	path  string
	asset *models.MediaAsset
	err   error
}

/*
Expands globs, ingests every file, and prints one line per file plus a
summary. A glob that matches nothing is reported but does not count as a
failure. Each file is independent; one failing does not stop the rest.
*/
func UploadFiles(ctx context.Context, svc *media.Service, patterns []string, opts UploadOptions, out io.Writer) UploadSummary {
	var paths []string
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[") {
			paths = append(paths, pattern)
			continue
		}
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			fmt.Fprintf(out, "  %s⚠ No files found matching: %s%s\n", color.Yellow, pattern, color.Reset)
			continue
		}
		paths = append(paths, matches...)
	}

	results := make([]uploadResult, len(paths))
	var g errgroup.Group
	g.SetLimit(max(opts.Jobs, 1))
	for i, path := range paths {
		g.Go(func() error {
			asset, err := uploadFile(ctx, svc, path, opts)
			results[i] = uploadResult{path: path, asset: asset, err: err}
			return nil
		})
	}
	g.Wait()

	var summary UploadSummary
	for _, r := range results {
		if r.err != nil {
			summary.Errors++
			fmt.Fprintf(out, "  %s✗ %s: %v%s\n", color.Red, r.path, r.err, color.Reset)
			continue
		}
		summary.Success++
		fmt.Fprintf(out, "  %s✓%s %s → %s (id %d, %dx%d %s, %s)\n",
			color.Green, color.Reset, r.path, svc.ResolveDisplayURL(r.asset),
			r.asset.ID, r.asset.Width, r.asset.Height, r.asset.Format, formatBytes(r.asset.FileSize))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%sUpload complete!%s\n", color.Green, color.Reset)
	fmt.Fprintf(out, "  Success: %d\n", summary.Success)
	if summary.Errors > 0 {
		fmt.Fprintf(out, "  %sErrors: %d%s\n", color.Yellow, summary.Errors, color.Reset)
	}
	return summary
}

func uploadFile(ctx context.Context, svc *media.Service, path string, opts UploadOptions) (*models.MediaAsset, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, mediaerr.New(mediaerr.Validation, err, "file not found")
	} else if err != nil {
		return nil, mediaerr.New(mediaerr.BackendIO, err, "failed to open file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, mediaerr.New(mediaerr.BackendIO, err, "failed to stat file")
	}
	if info.IsDir() {
		return nil, mediaerr.New(mediaerr.Validation, nil, "%s is a directory", path)
	}

	filename := filepath.Base(path)
	title := utils.OrDefault(opts.Title, strings.TrimSuffix(filename, filepath.Ext(filename)))

	return svc.Ingest(ctx, media.Upload{
		Filename: filename,
		Size:     info.Size(),
		Body:     f,
	}, opts.Folder, opts.StorageType, title)
}

// Deletes each asset in turn and returns how many failed.
func DeleteAssets(ctx context.Context, svc *media.Service, ids []int, out io.Writer) int {
	failed := 0
	for _, id := range ids {
		if err := svc.DeleteByID(ctx, id); err != nil {
			failed++
			fmt.Fprintf(out, "  %s✗ %d: %v%s\n", color.Red, id, err, color.Reset)
			continue
		}
		fmt.Fprintf(out, "  %s✓%s deleted %d\n", color.Green, color.Reset, id)
	}
	return failed
}

var byteUnits = []string{"B", "KB", "MB", "GB"}

func formatBytes(n int) string {
	size := float64(n)
	unit := 0
	for size >= 1024 && unit < len(byteUnits)-1 {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f %s", size, byteUnits[unit])
}

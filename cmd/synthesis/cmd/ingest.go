package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/fetch"
	"github.com/synthesis-kb/synthesis/internal/scanner"
	"github.com/synthesis-kb/synthesis/internal/ui"
	"github.com/synthesis-kb/synthesis/internal/watcher"
	"github.com/synthesis-kb/synthesis/pkg/client"
)

// uploadBatchSize bounds files per ingest request so one oversized
// multipart body doesn't trip the server's request cap.
const uploadBatchSize = 8

func newIngestCmd() *cobra.Command {
	var (
		collection string
		dir        string
		pageURL    string
		watch      bool
		plain      bool
		serverFlag string
		exclude    []string
	)

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest files, directories, or web pages into a collection",
		Long: `Ingest documents into a running Synthesis server.

Sources:
  synthesis ingest guide.md notes.pdf --collection <id>
  synthesis ingest --dir ./docs --collection <id>
  synthesis ingest --url https://example.com/guide --collection <id>

With --dir, the directory is scanned recursively; .gitignore files and
common build directories are respected. Add --watch to keep running and
re-ingest files as they change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if collection == "" {
				return fmt.Errorf("--collection is required")
			}
			sources := 0
			if len(args) > 0 {
				sources++
			}
			if dir != "" {
				sources++
			}
			if pageURL != "" {
				sources++
			}
			if sources != 1 {
				return fmt.Errorf("specify exactly one of file arguments, --dir, or --url")
			}
			if watch && dir == "" {
				return fmt.Errorf("--watch requires --dir")
			}

			api, err := newAPIClient(serverFlag, 5*time.Minute)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			switch {
			case pageURL != "":
				return ingestURL(ctx, cmd, api, collection, pageURL)
			case dir != "":
				if err := ingestDir(ctx, cmd, api, collection, dir, exclude, plain); err != nil {
					return err
				}
				if watch {
					return watchDir(ctx, cmd, api, collection, dir, exclude)
				}
				return nil
			default:
				return ingestFiles(ctx, cmd, api, collection, args)
			}
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Target collection ID")
	cmd.Flags().StringVar(&dir, "dir", "", "Ingest a directory recursively")
	cmd.Flags().StringVar(&pageURL, "url", "", "Fetch and ingest a web page")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep watching --dir for changes")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable the TUI progress display")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Extra gitignore-style exclude patterns")
	addServerFlag(cmd, &serverFlag)

	return cmd
}

// ingestFiles uploads explicit file arguments.
func ingestFiles(ctx context.Context, cmd *cobra.Command, api *client.Client, collection string, paths []string) error {
	uploads := make([]client.Upload, 0, len(paths))
	handles := make([]*os.File, 0, len(paths))
	defer func() {
		for _, f := range handles {
			_ = f.Close()
		}
	}()

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", p, err)
		}
		handles = append(handles, f)
		uploads = append(uploads, client.Upload{
			Name:    filepath.Base(p),
			Content: f,
		})
	}

	docs, err := api.Ingest(ctx, collection, uploads)
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s)\n", d.DocumentID, d.FileName, d.Status)
	}
	return nil
}

// ingestURL fetches a page and submits its body for extraction.
func ingestURL(ctx context.Context, cmd *cobra.Command, api *client.Client, collection, rawURL string) error {
	page, err := fetch.New(slog.Default()).Fetch(ctx, rawURL)
	if err != nil {
		return err
	}

	docs, err := api.Ingest(ctx, collection, []client.Upload{{
		Name:        fileNameForURL(page.URL),
		ContentType: page.ContentType,
		Content:     strings.NewReader(string(page.Body)),
	}})
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s)\n", d.DocumentID, d.FileName, d.Status)
	}
	return nil
}

// fileNameForURL derives an upload name from the final URL. Extraction
// is content-type driven, so the name only needs to be stable.
func fileNameForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "page.html"
	}
	name := path.Base(u.Path)
	if path.Ext(name) == "" {
		name += ".html"
	}
	return name
}

// ingestDir scans a directory and uploads supported files in batches,
// reporting progress through the TUI (or plain output).
func ingestDir(ctx context.Context, cmd *cobra.Command, api *client.Client, collection, dir string, exclude []string, plain bool) error {
	start := time.Now()

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: plain,
		NoColor:    ui.DetectNoColor(),
		Collection: collection,
		Dir:        dir,
	})
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "scanning " + dir})

	results, err := scanner.New().Scan(ctx, scanner.Options{
		Root:             dir,
		ExcludePatterns:  exclude,
		RespectGitignore: true,
	})
	if err != nil {
		return err
	}

	var files []scanner.FileInfo
	errorCount := 0
	for res := range results {
		if res.Err != nil {
			renderer.AddError(ui.ErrorEvent{Err: res.Err, IsWarn: true})
			errorCount++
			continue
		}
		files = append(files, *res.File)
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageScanning,
			Current:     len(files),
			CurrentFile: res.File.Path,
		})
	}

	done := 0
	for batch := range batchFiles(files, uploadBatchSize) {
		uploads, handles, err := openBatch(batch)
		if err != nil {
			renderer.AddError(ui.ErrorEvent{Err: err})
			errorCount++
			continue
		}
		docs, err := api.Ingest(ctx, collection, uploads)
		for _, f := range handles {
			_ = f.Close()
		}
		if err != nil {
			for _, fi := range batch {
				renderer.AddError(ui.ErrorEvent{File: fi.Path, Err: err})
			}
			errorCount += len(batch)
			done += len(batch)
			continue
		}
		done += len(docs)
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageIngesting,
			Current:     done,
			Total:       len(files),
			CurrentFile: batch[len(batch)-1].Path,
		})
	}

	renderer.Complete(ui.CompletionStats{
		Files:    done,
		Duration: time.Since(start),
		Errors:   errorCount,
	})
	return nil
}

// batchFiles yields fixed-size slices of files.
func batchFiles(files []scanner.FileInfo, size int) <-chan []scanner.FileInfo {
	out := make(chan []scanner.FileInfo)
	go func() {
		defer close(out)
		for start := 0; start < len(files); start += size {
			end := start + size
			if end > len(files) {
				end = len(files)
			}
			out <- files[start:end]
		}
	}()
	return out
}

// openBatch opens files for one upload request. Relative paths are the
// upload names so the server records where each document came from.
func openBatch(batch []scanner.FileInfo) ([]client.Upload, []*os.File, error) {
	uploads := make([]client.Upload, 0, len(batch))
	handles := make([]*os.File, 0, len(batch))
	for _, fi := range batch {
		f, err := os.Open(fi.AbsPath)
		if err != nil {
			for _, h := range handles {
				_ = h.Close()
			}
			return nil, nil, fmt.Errorf("failed to open %s: %w", fi.Path, err)
		}
		handles = append(handles, f)
		uploads = append(uploads, client.Upload{Name: fi.Path, Content: f})
	}
	return uploads, handles, nil
}

// watchDir re-ingests files as they change until the context ends.
func watchDir(ctx context.Context, cmd *cobra.Command, api *client.Client, collection, dir string, exclude []string) error {
	w, err := watcher.New(watcher.Options{IgnorePatterns: exclude})
	if err != nil {
		return err
	}
	if err := w.Start(ctx, dir); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s for changes (Ctrl+C to stop)\n", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "watch error: %v\n", err)
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, ev := range batch {
				if err := applyWatchEvent(ctx, api, collection, dir, ev); err != nil {
					fmt.Fprintf(out, "%s %s: %v\n", ev.Operation, ev.Path, err)
					continue
				}
				fmt.Fprintf(out, "%s %s\n", ev.Operation, ev.Path)
			}
		}
	}
}

// applyWatchEvent mirrors one filesystem change into the collection.
// Modified files are re-uploaded; the pipeline replaces the prior
// document's chunks. Deletes remove the matching document.
func applyWatchEvent(ctx context.Context, api *client.Client, collection, dir string, ev watcher.FileEvent) error {
	switch ev.Operation {
	case watcher.OpDelete:
		docs, err := api.ListDocuments(ctx, collection)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if d.FileName == ev.Path {
				return api.DeleteDocument(ctx, d.ID)
			}
		}
		return nil
	default:
		f, err := os.Open(filepath.Join(dir, ev.Path))
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = api.Ingest(ctx, collection, []client.Upload{{Name: ev.Path, Content: f}})
		return err
	}
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docqa/internal/logger"
	"docqa/internal/usecase"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest PDF documents",
	Long: `Ingest one or more PDF files into the document index. Directory
arguments are walked recursively for *.pdf files. Re-uploading unchanged
content is a no-op; a changed file with the same name replaces the old
version.

Examples:
  docqa ingest report.pdf
  docqa ingest ./papers ./contracts/q3.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	files, err := collectPDFs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no PDF files found under %s", strings.Join(args, ", "))
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, GetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	ingest := a.newIngest()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Ingesting"),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	var (
		mu       sync.Mutex
		ingested int
		skipped  int
		failures []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range files {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			var res *usecase.IngestResult
			if err == nil {
				name := filepath.Base(path)
				res, err = ingest.Ingest(gctx, name, data, func(stage string, done, total int) {
					logger.Debug("%s: %s %d/%d", name, stage, done, total)
				})
			}
			mu.Lock()
			switch {
			case err != nil:
				failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			case res.Skipped:
				skipped++
			default:
				ingested++
			}
			bar.Add(1)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	fmt.Printf("\nIngest complete:\n")
	fmt.Printf("  Ingested: %d\n", ingested)
	fmt.Printf("  Skipped:  %d (unchanged)\n", skipped)
	if len(failures) > 0 {
		fmt.Printf("  Failed:   %d\n\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  - %s\n", f)
		}
		return fmt.Errorf("%d of %d files failed", len(failures), len(files))
	}
	return nil
}

// collectPDFs expands file and directory arguments into a sorted,
// deduplicated list of PDF paths.
func collectPDFs(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("path does not exist: %s", arg)
		}
		if !info.IsDir() {
			add(abs)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(abs), "**/*.pdf")
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
		for _, m := range matches {
			add(filepath.Join(abs, m))
		}
	}
	sort.Strings(files)
	return files, nil
}

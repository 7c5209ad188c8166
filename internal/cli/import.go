package cli

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ict-visualizer/backend/internal/config"
	"github.com/ict-visualizer/backend/internal/logger"
	"github.com/ict-visualizer/backend/internal/parser"
	"github.com/ict-visualizer/backend/internal/storage"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Bulk-import board logs into the archive",
	Long: `Walk a directory tree, parse every matching board log, and archive the
results into the DuckDB board archive. Boards already present in the
archive are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().String("config", "", "path to the XML configuration file (default: ICTLogViewer.xml next to the executable)")
	importCmd.Flags().String("patterns", "*.log", "comma-separated file name globs to import")
}

func runImport(cmd *cobra.Command, args []string) error {
	root := args[0]

	configPath, err := configPathFromFlag(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(cfg.Advanced.LogLevel)

	patternsFlag, _ := cmd.Flags().GetString("patterns")
	patterns := splitPatterns(patternsFlag)
	if len(patterns) == 0 {
		patterns = []string{"*.log"}
	}

	// Collect matching files up front so the bar knows the total
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, pattern := range patterns {
			if ok, _ := filepath.Match(pattern, d.Name()); ok {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", root, err)
	}
	if len(files) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no logs matching %v under %s\n", patterns, root)
		return nil
	}

	store, err := storage.NewBoardStoreWithTuning(cfg.Storage.ArchiveDirectory,
		cfg.Advanced.DuckDBMemoryLimit, cfg.Advanced.DuckDBThreads)
	if err != nil {
		return fmt.Errorf("failed to open board archive: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	before, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to query archive: %w", err)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Importing logs"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	registry := parser.GetGlobalRegistry()
	parsed := 0
	failed := 0
	for _, file := range files {
		p, err := registry.FindParser(file)
		if err != nil {
			logger.Warnf("skipping %s: %v", file, err)
			failed++
			_ = bar.Add(1)
			continue
		}
		board, _, err := p.Parse(file)
		if err != nil {
			logger.Warnf("failed to parse %s: %v", file, err)
			failed++
			_ = bar.Add(1)
			continue
		}
		if err := store.ArchiveBoard(board); err != nil {
			logger.Warnf("failed to archive %s: %v", file, err)
			failed++
			_ = bar.Add(1)
			continue
		}
		parsed++
		_ = bar.Add(1)
	}

	after, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to query archive: %w", err)
	}

	added := after - before
	fmt.Fprintf(cmd.OutOrStdout(), "\nParsed %d of %d logs (%d failed)\n", parsed, len(files), failed)
	fmt.Fprintf(cmd.OutOrStdout(), "Archived %d new boards (%d duplicates skipped), archive now holds %d\n",
		added, parsed-added, after)
	return nil
}

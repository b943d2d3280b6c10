package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/modality/internal/cli"
	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/config"
	"github.com/Veraticus/modality/internal/service"
	"github.com/Veraticus/modality/internal/storage"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a chunk dataset directory into a database",
		Long: `Copy a chunk dataset laid out as JSON files into SQLite or PostgreSQL,
replacing whatever dataset the target held. The directory is validated in
full before anything is written.`,
		RunE: runImport,
	}

	cmd.Flags().String("from", "", "dataset directory (required)")
	cmd.Flags().String("target", config.SourceSQLite, "target database (sqlite, postgres)")
	cmd.Flags().String("dsn", "", "PostgreSQL connection string (default: index.dsn)")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func openWriter(ctx context.Context, cfg config.Config, target, dsn string) (service.DatasetWriter, string, func(), error) {
	switch target {
	case config.SourceSQLite:
		store, err := initStorage(ctx, cfg.Database.Path)
		if err != nil {
			return nil, "", nil, err
		}
		return store, cfg.Database.Path, func() { _ = store.Close() }, nil
	case config.SourcePostgres:
		if dsn == "" {
			dsn = cfg.Index.DSN
		}
		src, err := storage.NewPostgresChunkSource(ctx, dsn)
		if err != nil {
			return nil, "", nil, err
		}
		if err := src.Initialize(ctx); err != nil {
			src.Close()
			return nil, "", nil, err
		}
		return src, "postgres", src.Close, nil
	default:
		return nil, "", nil, fmt.Errorf("%w: unknown import target %q", common.ErrInvalidConfig, target)
	}
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	from, _ := cmd.Flags().GetString("from")
	target, _ := cmd.Flags().GetString("target")
	dsn, _ := cmd.Flags().GetString("dsn")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manifest, chunks, err := storage.ReadAll(ctx, storage.NewDirSource(config.ExpandPath(from)))
	if err != nil {
		return err
	}

	writer, location, closeWriter, err := openWriter(ctx, cfg, target, dsn)
	if err != nil {
		return err
	}
	defer closeWriter()

	slog.Info("Importing dataset", "from", from, "target", target, "chunks", len(chunks))
	if err := writer.ImportDataset(ctx, manifest, chunks); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d chunks into %s", len(chunks), location))) //nolint:forbidigo // User-facing output
	return nil
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the configured chunk dataset to a directory",
		Long: `Copy the dataset from the configured index source into a directory of
JSON files that the dir source and import command can read.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			to, _ := cmd.Flags().GetString("to")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			src, location, closeSrc, err := openSource(ctx, cfg)
			defer closeSrc()
			if err != nil {
				return err
			}

			manifest, chunks, err := storage.ReadAll(ctx, src)
			if err != nil {
				return err
			}
			to = config.ExpandPath(to)
			if err := storage.WriteDir(to, manifest, chunks); err != nil {
				return err
			}

			slog.Info("Exported dataset", "from", location, "to", to, "chunks", len(chunks))
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Exported %d chunks to %s", len(chunks), to))) //nolint:forbidigo // User-facing output
			return nil
		},
	}

	cmd.Flags().String("to", "", "target directory (required)")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

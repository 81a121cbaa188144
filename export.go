package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/breez/txsync/catalog"
	"github.com/breez/txsync/config"
	"github.com/breez/txsync/globalize"
	"github.com/breez/txsync/iterator"
	"github.com/breez/txsync/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type exportOptions struct {
	database  string
	table     string
	batchSize int
	column    string
	locale    string
}

func newExportCommand() *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the rows of a catalog table to stdout as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return export(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.database, "database", "", "catalog database name")
	cmd.Flags().StringVar(&opts.table, "table", "", "table to export")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", iterator.DefaultBatchSize, "rows fetched per query")
	cmd.Flags().StringVar(&opts.column, "column", iterator.DefaultColumn, "auto-increment column to order by")
	cmd.Flags().StringVar(&opts.locale, "locale", "", "only export rows of this locale")
	cmd.MarkFlagRequired("database")
	cmd.MarkFlagRequired("table")
	return cmd
}

func export(ctx context.Context, opts exportOptions, out io.Writer) error {
	config, err := config.NewConfig()
	if err != nil {
		return err
	}
	setupLogging(config)

	cat, err := catalog.Load(config.CatalogPath)
	if err != nil {
		return err
	}
	registry := catalog.NewRegistry(cat, nil)
	defer registry.Close()

	db, err := registry.Open(ctx, opts.database)
	if err != nil {
		return err
	}
	dbConfig, err := cat.Database(opts.database)
	if err != nil {
		return err
	}
	target := &catalog.Target{Database: dbConfig, Store: db}
	table, tableConfig, err := target.OpenTable(ctx, opts.table)
	if err != nil {
		return err
	}

	localeColumn := tableConfig.LocaleColumn
	if localeColumn == "" {
		localeColumn = globalize.DefaultLocaleColumn
	}
	count, err := runExport(ctx, table, iterator.Config{
		BatchSize: opts.batchSize,
		Column:    opts.column,
	}, localeColumn, opts.locale, out)
	if err != nil {
		return err
	}
	log.Info().
		Str("database", opts.database).
		Str("table", opts.table).
		Int("rows", count).
		Msg("export finished")
	return nil
}

// runExport writes every row of table as one JSON object per line. When
// locale is set only rows whose localeColumn matches it are written.
func runExport(ctx context.Context, table store.Table, cfg iterator.Config, localeColumn, locale string, out io.Writer) (int, error) {
	it, err := iterator.New(table, cfg)
	if err != nil {
		return 0, err
	}

	rows := it.All(ctx)
	if locale != "" {
		rows = iterator.CompactMap(ctx, it, func(record store.Record) (store.Record, bool, error) {
			v, ok := record[localeColumn]
			if !ok {
				return nil, false, fmt.Errorf("%s has no column %s", table.Name(), localeColumn)
			}
			return record, fmt.Sprint(v) == locale, nil
		})
	}

	encoder := json.NewEncoder(out)
	count := 0
	for record, err := range rows {
		if err != nil {
			return count, err
		}
		if err := encoder.Encode(record); err != nil {
			return count, fmt.Errorf("failed to write row: %w", err)
		}
		count++
	}
	return count, nil
}

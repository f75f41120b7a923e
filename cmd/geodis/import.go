package main

import (
	"context"
	"fmt"

	"geodis/internal/config"
	"geodis/internal/ingest"

	"github.com/spf13/cobra"
)

func newImportCmd(a *app) *cobra.Command {
	var batch int
	var cities bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "bulk load a dataset into Redis",
	}
	cmd.PersistentFlags().IntVar(&batch, "batch", 0, "items per pipeline round trip (default GEODIS_BATCH_SIZE)")
	cmd.PersistentFlags().BoolVar(&cities, "cities", false, "ipranges/mmdb: also store each range's city")

	short := map[string]string{
		"cities":   "GeoNames cities*.txt (tab separated)",
		"zip":      "ZIP code CSV: zip,lat,lon,city,state[,country]",
		"ipranges": "IP2Location style CSV with numeric bounds",
		"mmdb":     "MaxMind GeoLite2-City database",
	}
	for _, kind := range ingest.Kinds {
		cmd.AddCommand(&cobra.Command{
			Use:   kind + " <path|url>",
			Short: short[kind],
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				size := a.cfg.BatchSize
				if batch > 0 {
					size = config.ClampBatch(batch)
				}
				n, skipped, err := runImport(cmd.Context(), a, kind, args[0], size, cities)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.out, "imported %d %s (skipped %d)\n", n, kind, skipped)
				return err
			},
		})
	}
	return cmd
}

// runImport：构造导入器并写入；serve 的每周刷新复用同一路径
func runImport(ctx context.Context, a *app, kind, src string, batch int, cities bool) (int, int, error) {
	imp, closer, err := ingest.Build(ctx, kind, src, cities)
	if err != nil {
		return 0, 0, err
	}
	defer closer.Close()
	sink := ingest.NewSink(a.st, a.idx, batch)
	n, err := ingest.Run(ctx, imp, sink)
	return n, sink.Skipped(), err
}

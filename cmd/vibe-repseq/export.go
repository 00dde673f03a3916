package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/duckdb"
)

func (a *app) newExportCmd() *cobra.Command {
	var sequences bool
	var workers int
	cmd := &cobra.Command{
		Use:   "export <library> <output.duckdb>",
		Short: "Export a library to a DuckDB database",
		Long: `Export the alleles, anchor points and species names of a library to DuckDB.

The library is a file (.json, .json.xz or .rsl) or a name looked up in the
configured search paths. Rows previously exported for the same library and
taxon are replaced.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.newRegistry(cmd.Context())
			if err != nil {
				return err
			}
			libs, err := loadLibraries(reg, args[0])
			if err != nil {
				return err
			}

			store, err := duckdb.Open(args[1])
			if err != nil {
				return err
			}
			defer store.Close()
			store.SetLogger(a.logger)

			var names []string
			for _, lib := range libs {
				if err := store.WriteLibrary(cmd.Context(), lib, duckdb.ExportOptions{Sequences: sequences, Workers: workers}); err != nil {
					return fmt.Errorf("export library %s: %w", lib.Name(), err)
				}
				if !slices.Contains(names, lib.Name()) {
					names = append(names, lib.Name())
				}
				a.logger.Info("exported library", zap.String("name", lib.Name()), zap.Int32s("taxa", lib.TaxonIDs()))
			}

			for _, name := range names {
				counts, err := store.GeneCounts(name)
				if err != nil {
					return err
				}
				for _, st := range counts {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\t%s\t%d genes\t%d alleles\t%d functional\n",
						name, st.TaxonID, st.Chain, st.GeneType, st.Genes, st.Alleles, st.Functional)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sequences, "sequences", false, "Store the full sequence of every allele")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel sequence workers (0 = number of CPUs)")
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/registry"
)

func (a *app) newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <library>",
		Short: "Print library statistics",
		Long: `Print per gene type and per chain gene counts of a library.

The argument is either a library file (.json, .json.xz or .rsl) or a library
name looked up in the configured search paths.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.newRegistry(cmd.Context())
			if err != nil {
				return err
			}
			libs, err := loadLibraries(reg, args[0])
			if err != nil {
				return err
			}
			for _, lib := range libs {
				printStats(cmd.OutOrStdout(), lib)
			}
			return nil
		},
	}
}

// loadLibraries registers a library file, or looks ref up by name when no
// such file exists.
func loadLibraries(reg *registry.Registry, ref string) ([]*library.Library, error) {
	if _, err := os.Stat(ref); err == nil {
		if err := reg.RegisterLibraries(ref); err != nil {
			return nil, err
		}
		return reg.LoadedLibraries(), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat library: %w", err)
	}
	return reg.LoadByName(ref)
}

func printStats(w io.Writer, lib *library.Library) {
	for _, taxon := range lib.TaxonIDs() {
		fmt.Fprintf(w, "LibraryID (libraryName:taxonId): %s:%d\n\n", lib.Name(), taxon)

		byType := make(map[library.GeneType][]library.Stat)
		for _, st := range lib.Stats() {
			if st.TaxonID == taxon {
				byType[st.GeneType] = append(byType[st.GeneType], st)
			}
		}
		for _, gt := range library.GeneTypes {
			stats := byType[gt]
			if len(stats) == 0 {
				continue
			}
			total := 0
			for _, st := range stats {
				total += st.Genes
			}
			fmt.Fprintf(w, "%s (total records %d):\n", gt, total)
			for _, st := range stats {
				fmt.Fprintf(w, "%s: %d genes, %d alleles, %d functional\n",
					st.Chain, st.Genes, st.Alleles, st.Functional)
			}
		}
		fmt.Fprint(w, "\n==============\n\n")
	}
}

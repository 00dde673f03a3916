package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-repseq/internal/convert"
	"github.com/inodb/vibe-repseq/internal/library"
)

type fromPaddedFastaFlags struct {
	geneType           string
	chain              string
	taxonID            int32
	nameIndex          int
	functionalityIndex int
	functionality      string
	padding            string
	points             map[string]string
	ignoreDuplicates   bool
	force              bool
}

func (a *app) newFromPaddedFastaCmd() *cobra.Command {
	var f fromPaddedFastaFlags
	cmd := &cobra.Command{
		Use:   "from-padded-fasta <input_padded.fasta> <output.fasta> <output.json>",
		Short: "Convert a padded (IMGT-like) FASTA file into a library",
		Long: `Convert a padded FASTA file into an unpadded FASTA file and a JSON library.

The JSON library addresses the output FASTA file by a path relative to
itself, so both files are needed to use the library, or it can be compiled
with 'vibe-repseq compile --embed-sequences'.`,
		Example: `  vibe-repseq from-padded-fasta imgt_v.fasta v.fasta v.json -g V -c TRB -t 9606 -n 1 -j 3 \
    -P FR1Begin=0 -P CDR3Begin=309 -P VEnd=-1`,
		Args: exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return &usageError{err}
			}
			if !f.force {
				for _, out := range args[1:] {
					if _, err := os.Stat(out); err == nil {
						return fmt.Errorf("output file %s already exists (use --force to overwrite)", out)
					} else if !errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("stat output: %w", err)
					}
				}
			}

			c := convert.New(opts)
			c.SetLogger(a.logger)
			stats, err := c.ConvertFiles(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Converted %d records into %d genes (%d skipped with wildcards, %d duplicates)\n",
				stats.Records, stats.Genes, stats.Wildcards, stats.Duplicates)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.geneType, "gene-type", "g", "", "Gene type (V/D/J/C)")
	fl.StringVarP(&f.chain, "chain", "c", "", "Chain (TRA, TRB, TRG, TRD, IGH, IGK, IGL)")
	fl.Int32VarP(&f.taxonID, "taxon-id", "t", 0, "Taxon id")
	fl.IntVarP(&f.nameIndex, "name-index", "n", 0, "Gene name index (0-based) in the FASTA description line, e.g. 1 for IMGT files")
	fl.IntVarP(&f.functionalityIndex, "functionality-index", "j", -1, "Functionality mark index (0-based) in the FASTA description line, e.g. 3 for IMGT files")
	fl.StringVar(&f.functionality, "functionality-regexp", convert.DefaultFunctionality, "Functionality regexp, matched against the whole field")
	fl.StringVarP(&f.padding, "padding-character", "p", ".", "Padding character")
	fl.StringToStringVarP(&f.points, "point", "P", nil, "Anchor point position in the padded sequence, e.g. -P FR1Begin=0. Negative values count from the unpadded end: -1 is the last letter")
	fl.BoolVarP(&f.ignoreDuplicates, "ignore-duplicates", "i", false, "Ignore duplicate genes")
	fl.BoolVarP(&f.force, "force", "f", false, "Overwrite existing output files")
	for _, name := range []string{"gene-type", "chain", "taxon-id", "name-index"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (f *fromPaddedFastaFlags) options() (convert.Options, error) {
	gt, err := library.ParseGeneType(f.geneType)
	if err != nil {
		return convert.Options{}, err
	}
	chain, err := library.ParseChain(f.chain)
	if err != nil {
		return convert.Options{}, err
	}
	if len(f.padding) != 1 {
		return convert.Options{}, fmt.Errorf("padding character must be a single byte, got %q", f.padding)
	}
	re, err := regexp.Compile(f.functionality)
	if err != nil {
		return convert.Options{}, fmt.Errorf("invalid functionality regexp: %w", err)
	}
	points, err := convert.ParsePoints(f.points)
	if err != nil {
		return convert.Options{}, err
	}
	if f.nameIndex < 0 {
		return convert.Options{}, fmt.Errorf("negative name index %d", f.nameIndex)
	}
	return convert.Options{
		GeneType:           gt,
		Chain:              chain,
		TaxonID:            f.taxonID,
		NameIndex:          f.nameIndex,
		FunctionalityIndex: f.functionalityIndex,
		Functionality:      re,
		Padding:            f.padding[0],
		Points:             points,
		IgnoreDuplicates:   f.ignoreDuplicates,
	}, nil
}


package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/output"
	"github.com/inodb/vibe-repseq/internal/seq"
)

type listFlags struct {
	geneType  string
	chain     string
	sequences bool
	workers   int
}

func (a *app) newListCmd() *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "list <library>",
		Short: "List the alleles of a library as tab-delimited text",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, err := f.filter()
			if err != nil {
				return &usageError{err}
			}
			reg, err := a.newRegistry(cmd.Context())
			if err != nil {
				return err
			}
			libs, err := loadLibraries(reg, args[0])
			if err != nil {
				return err
			}

			tw := output.NewTabWriter(cmd.OutOrStdout(), f.sequences)
			if err := tw.WriteHeader(); err != nil {
				return err
			}
			for _, lib := range libs {
				if err := a.listLibrary(cmd.Context(), tw, lib, keep, f); err != nil {
					return err
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&f.geneType, "gene-type", "g", "", "Only list genes of this type (V/D/J/C)")
	cmd.Flags().StringVarP(&f.chain, "chain", "c", "", "Only list this chain")
	cmd.Flags().BoolVar(&f.sequences, "sequences", false, "Append the sequence of every allele")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Parallel sequence workers (0 = number of CPUs)")
	return cmd
}

type alleleFilter func(library.SpeciesAndChain, library.Allele) bool

func (f *listFlags) filter() (alleleFilter, error) {
	var gt *library.GeneType
	if f.geneType != "" {
		g, err := library.ParseGeneType(f.geneType)
		if err != nil {
			return nil, err
		}
		gt = &g
	}
	var chain library.Chain
	if f.chain != "" {
		c, err := library.ParseChain(f.chain)
		if err != nil {
			return nil, err
		}
		chain = c
	}
	return func(sac library.SpeciesAndChain, a library.Allele) bool {
		if gt != nil && a.Gene().Type() != *gt {
			return false
		}
		return chain == "" || sac.Chain == chain
	}, nil
}

func (a *app) listLibrary(ctx context.Context, tw *output.TabWriter, lib *library.Library, keep alleleFilter, f listFlags) error {
	var loci []library.SpeciesAndChain
	var alleles []library.Allele
	for _, locus := range lib.Loci() {
		for _, al := range locus.AllAlleles() {
			if keep(locus.SpeciesAndChain(), al) {
				loci = append(loci, locus.SpeciesAndChain())
				alleles = append(alleles, al)
			}
		}
	}

	if !f.sequences {
		for i, al := range alleles {
			if err := tw.Write(loci[i], al, seq.Sequence{}); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := lib.ParallelSequences(ctx, library.SequenceJobs(ctx, alleles), f.workers)
	return library.OrderedCollect(results, func(r library.SequenceResult) error {
		if r.Err != nil {
			a.logger.Warn("allele sequence unavailable", zap.String("allele", r.Allele.Name()), zap.Error(r.Err))
		}
		if err := tw.Write(loci[r.Seq], r.Allele, r.Sequence); err != nil {
			cancel()
			return err
		}
		return nil
	})
}

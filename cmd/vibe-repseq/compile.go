package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/container"
	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/registry"
)

func (a *app) newCompileCmd() *cobra.Command {
	var noCompress, force, embed bool
	cmd := &cobra.Command{
		Use:   "compile <input.json> <output.rsl>",
		Short: "Compile a JSON library into a binary container",
		Long: `Compile a JSON library into a binary container.

The output is skipped when it was compiled from the input as it is now,
unless --force is given. With --embed-sequences every reference allele
sequence is resolved and stored in the container, so it can be used
without the FASTA files the JSON library points to.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]
			fp, err := container.StatFile(in)
			if err != nil {
				return fmt.Errorf("stat input: %w", err)
			}
			cc := container.NewCompiledCache(out)
			if !force && cc.Valid(fp) {
				a.logger.Info("compiled library is up to date", zap.String("path", out))
				fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date\n", out)
				return nil
			}

			resolver, err := a.newResolver(cmd.Context())
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(in)
			if err != nil {
				return fmt.Errorf("resolve input path: %w", err)
			}
			records, err := registry.ReadLibraryFile(abs)
			if err != nil {
				return err
			}
			lib, err := library.Build(container.LibraryName(in), filepath.Dir(abs), records, resolver)
			if err != nil {
				return fmt.Errorf("build library: %w", err)
			}
			lib.SetLogger(a.logger)
			if embed {
				if lib, err = lib.WithEmbeddedSequences(cmd.Context()); err != nil {
					return err
				}
			}

			if err := cc.Write(lib, fp, container.EncodeOptions{Compress: !noCompress}); err != nil {
				return err
			}
			a.logger.Info("compiled library",
				zap.String("input", in),
				zap.String("output", out),
				zap.Int("fragments", len(lib.FragmentAccessions())))
			fmt.Fprintf(cmd.OutOrStdout(), "Compiled %s into %s\n", in, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "Store sequence fragments 2-bit packed instead of deflated")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Recompile even if the output is up to date")
	cmd.Flags().BoolVar(&embed, "embed-sequences", false, "Resolve and embed every reference allele sequence")
	return cmd
}

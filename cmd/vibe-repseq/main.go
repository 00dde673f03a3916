// Package main provides the vibe-repseq command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// usageError marks errors caused by invalid command-line input.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// app carries the state shared by all subcommands.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	cfgFile string
	verbose bool

	logger  *zap.Logger
	metrics *prometheus.Registry
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, logger: zap.NewNop()}
	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := root.ExecuteContext(ctx)
	a.logMetrics()
	_ = a.logger.Sync()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if isUsageError(err) {
		return ExitUsage
	}
	return ExitError
}

// isUsageError reports whether err comes from invalid command-line input.
// Cobra reports missing required flags and unknown commands as plain errors.
func isUsageError(err error) bool {
	var ue *usageError
	if errors.As(err, &ue) {
		return true
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "required flag") || strings.HasPrefix(msg, "unknown command")
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vibe-repseq",
		Short: "Immune receptor gene segment reference libraries",
		Long: `vibe-repseq manages reference libraries of V, D, J and C gene segments
and their allelic variants: conversion from padded FASTA, compilation into
binary containers, statistics and export to DuckDB.`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(a.cfgFile); err != nil {
				return err
			}
			return a.initLogger()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Config file (default: ~/.vibe-repseq.yaml)")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "Verbose (debug) logging")

	root.AddCommand(a.newStatCmd())
	root.AddCommand(a.newFromPaddedFastaCmd())
	root.AddCommand(a.newCompileCmd())
	root.AddCommand(a.newExportCmd())
	root.AddCommand(a.newListCmd())
	root.AddCommand(a.newConfigCmd())
	return root
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

func (a *app) initLogger() error {
	var cfg zap.Config
	if a.verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		level, err := zapcore.ParseLevel(settings().LogLevel)
		if err != nil {
			return &usageError{fmt.Errorf("invalid log.level: %w", err)}
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.logger = logger
	return nil
}

// logMetrics reports the resolver counters at debug level.
func (a *app) logMetrics() {
	if a.metrics == nil {
		return
	}
	families, err := a.metrics.Gather()
	if err != nil {
		a.logger.Debug("gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("metric", mf.GetName()), zap.Float64("value", m.GetCounter().GetValue())}
			for _, lp := range m.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			a.logger.Debug("resolver metric", fields...)
		}
	}
}

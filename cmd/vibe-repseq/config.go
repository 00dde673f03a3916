package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/inodb/vibe-repseq/internal/registry"
	"github.com/inodb/vibe-repseq/internal/seqbase"
)

const configName = ".vibe-repseq"

// config holds the resolved settings used by the commands.
type config struct {
	SearchPaths []string
	CompiledDir string
	CacheDir    string
	HTTPTimeout time.Duration
	S3          seqbase.S3Config
	LogLevel    string
}

func initConfig(cfgFile string) error {
	viper.Reset()
	viper.SetDefault("library.search_paths", []string{"."})
	viper.SetDefault("resolver.http_timeout", "60s")
	viper.SetDefault("log.level", "warn")

	viper.SetEnvPrefix("VIBE_REPSEQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if cfgFile != "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func settings() config {
	return config{
		SearchPaths: viper.GetStringSlice("library.search_paths"),
		CompiledDir: viper.GetString("library.compiled_dir"),
		CacheDir:    viper.GetString("resolver.cache_dir"),
		HTTPTimeout: viper.GetDuration("resolver.http_timeout"),
		S3: seqbase.S3Config{
			Region:          viper.GetString("resolver.s3.region"),
			Endpoint:        viper.GetString("resolver.s3.endpoint"),
			AccessKeyID:     viper.GetString("resolver.s3.access_key_id"),
			SecretAccessKey: viper.GetString("resolver.s3.secret_access_key"),
			PathStyle:       viper.GetBool("resolver.s3.path_style"),
		},
		LogLevel: viper.GetString("log.level"),
	}
}

// newResolver builds the sequence resolver chain from the configuration and
// installs it as the process default.
func (a *app) newResolver(ctx context.Context) (seqbase.Resolver, error) {
	cfg := settings()
	a.metrics = prometheus.NewRegistry()
	chain := seqbase.ChainConfig{
		CacheDir:    cfg.CacheDir,
		HTTPTimeout: cfg.HTTPTimeout,
		Metrics:     seqbase.NewMetrics(a.metrics),
		Logger:      a.logger,
	}
	if cfg.S3.Region != "" || cfg.S3.Endpoint != "" {
		client, err := seqbase.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		chain.S3 = client
	}
	r := seqbase.NewDefaultChain(chain)
	seqbase.SetDefault(r)
	return r, nil
}

// newRegistry creates a registry searching the configured library folders.
func (a *app) newRegistry(ctx context.Context) (*registry.Registry, error) {
	resolver, err := a.newResolver(ctx)
	if err != nil {
		return nil, err
	}
	cfg := settings()
	reg := registry.New(resolver)
	reg.SetLogger(a.logger)
	for _, dir := range cfg.SearchPaths {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve search path: %w", err)
		}
		fr := registry.NewFolderResolver(abs)
		fr.SetLogger(a.logger)
		if cfg.CompiledDir != "" {
			fr.SetCompiledDir(cfg.CompiledDir)
		}
		reg.AddLibraryResolver(fr)
	}
	a.logger.Debug("library search paths", zap.Strings("paths", cfg.SearchPaths))
	return reg, nil
}

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vibe-repseq configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.vibe-repseq.yaml.",
		Example: `  vibe-repseq config                                   # show all config
  vibe-repseq config set library.compiled_dir ~/.cache/rsl  # cache compiled libraries
  vibe-repseq config get library.compiled_dir              # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd.OutOrStdout(), args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd.OutOrStdout(), args[0])
		},
	})
	return cmd
}

func runConfigShow(w io.Writer) error {
	all := viper.AllSettings()
	if len(all) == 0 {
		fmt.Fprintln(w, "# No configuration set. Config file: ~/.vibe-repseq.yaml")
		return nil
	}

	out, err := yaml.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(w, string(out))
	return nil
}

func runConfigSet(w io.Writer, key, value string) error {
	// Parse boolean-like values
	switch value {
	case "true", "yes", "on":
		viper.Set(key, true)
	case "false", "no", "off":
		viper.Set(key, false)
	default:
		viper.Set(key, value)
	}

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, configName+".yaml")
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(w io.Writer, key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(w, val)
	return nil
}

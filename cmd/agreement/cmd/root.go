// Package cmd implements the agreement command line interface.
package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/banshee-data/masi-agreement/internal/config"
	"github.com/banshee-data/masi-agreement/internal/fsutil"
	"github.com/banshee-data/masi-agreement/internal/logging"
	"github.com/banshee-data/masi-agreement/internal/ratings"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries the state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	fs      fsutil.FileSystem

	cfg *config.ExperimentConfig
	log *zap.SugaredLogger
}

// Execute runs the root command with the process arguments.
func Execute() error {
	ctx, stop := signalContext()
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Each call has its own viper
// instance so commands can be run repeatedly in tests.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), fs: fsutil.OSFileSystem{}}

	root := &cobra.Command{
		Use:   "agreement",
		Short: "Inter-annotator agreement on set-valued labels",
		Long: `agreement measures inter-annotator agreement on set-valued annotations
using MASI-weighted Krippendorff's alpha and Fleiss' kappa, and tests the
observed values against a permutation null distribution.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "JSON config file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")

	root.AddCommand(
		newRunCommand(a),
		newMatrixCommand(a),
		newMasiCommand(a),
		newRunsCommand(a),
		newMigrateCommand(a),
		newServeCommand(a),
		newVersionCommand(),
	)
	return root
}

// bindFlags maps the flags of the running command onto config keys; a
// flag named "confidence-level" sets the key "confidence_level". Only the
// running command is bound since several commands share flag names.
func (a *app) bindFlags(fs *pflag.FlagSet) {
	keys := make(map[string]bool, len(config.Keys))
	for _, k := range config.Keys {
		keys[k] = true
	}
	fs.VisitAll(func(f *pflag.Flag) {
		if key := strings.ReplaceAll(f.Name, "-", "_"); keys[key] {
			_ = a.v.BindPFlag(key, f)
		}
	})
}

func (a *app) init(cmd *cobra.Command) error {
	a.bindFlags(cmd.Flags())
	if a.cfgFile != "" {
		fileCfg, err := config.LoadFile(a.cfgFile)
		if err != nil {
			return errors.Wrapf(err, "config %s", a.cfgFile)
		}
		if err := a.v.MergeConfigMap(fileCfg.Settings()); err != nil {
			return errors.Wrap(err, "merge config file")
		}
	}
	a.v.SetEnvPrefix(config.EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	a.log = log.With("command", cmd.Name())
	return nil
}

// loadTable reads a ratings CSV from path, or stdin when path is "-".
func (a *app) loadTable(path string, opts ratings.CSVOptions) (*ratings.Table, error) {
	var r io.ReadCloser
	if path == "-" {
		r = io.NopCloser(os.Stdin)
	} else {
		f, err := a.fs.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open ratings %s", path)
		}
		r = f
	}
	defer r.Close()

	t, err := ratings.LoadCSV(r, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "load ratings %s", path)
	}
	return t, nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/leafscan/internal/config"
	"github.com/MeKo-Tech/leafscan/internal/logger"
	"github.com/MeKo-Tech/leafscan/internal/version"
)

// app carries the state shared by one command tree: its viper instance,
// the loaded configuration and the log file closer.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	closer  io.Closer
}

// NewRootCommand builds the leafscan command tree. Every call returns an
// independent tree with its own configuration state.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "leafscan",
		Short: "Extract structured products from grocery leaflets",
		Long: `leafscan reads grocery store leaflets (JPEG, PNG or PDF), runs OCR over
them and groups the recognized text into products with names, prices,
unit prices and special offers.

This tool provides:
- Single and batch extraction with JSON, CSV or text output
- Parsing of recorded OCR detections without an engine
- Directory watching for newly dropped leaflets
- An HTTP and websocket API with optional Redis-backed job queue

Examples:
  leafscan extract leaflet.jpg
  leafscan extract leaflet.pdf --format csv --save
  leafscan parse detections.json
  leafscan batch ./leaflets --recursive --workers 4
  leafscan serve --port 8000`,
		Version:           version.Get().String(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is search in ., $HOME/.leafscan, $XDG_CONFIG_HOME/leafscan, /etc/leafscan)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")

	bindFlag(pf, "log-level", "log.level")
	bindFlag(pf, "log-format", "log.format")

	rootCmd.AddCommand(
		newExtractCmd(a),
		newParseCmd(a),
		newBatchCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newWorkerCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

const configKeyAnnotation = "leafscan_config_key"

// bindFlag marks flag name as overriding configuration key.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, configKeyAnnotation, []string{key})
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// setup loads and validates the configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	return a.load(cmd, true)
}

func (a *app) load(cmd *cobra.Command, validate bool) error {
	// Only the running command's flags are bound, so commands sharing a
	// config key do not shadow each other.
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		for _, key := range f.Annotations[configKeyAnnotation] {
			_ = a.v.BindPFlag(key, f)
		}
	})

	loader := config.NewLoaderWithViper(a.v)
	var (
		cfg *config.Config
		err error
	)
	if validate {
		cfg, err = loader.Load(a.cfgFile)
	} else {
		cfg, err = loader.LoadWithoutValidation(a.cfgFile)
	}
	if err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}

	closer, err := logger.Setup(cfg.Log)
	if err != nil && !validate {
		closer, err = logger.Setup(logger.DefaultConfig())
	}
	if err != nil {
		return err
	}
	a.cfg, a.closer = cfg, closer

	if used := loader.ConfigFileUsed(); used != "" {
		log.Debug().Str("file", used).Msg("Loaded configuration")
	}
	return nil
}

func (a *app) teardown() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

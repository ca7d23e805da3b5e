package main

import (
	"io"
	"os"
	"strings"

	"github.com/hupe1980/vxbroker/config"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type app struct {
	configPath string
	cfg        config.Config
	logger     logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "vxsim",
		Short:         "Exercise the voice session broker against a simulated engine",
		Long:          "vxsim runs scripted login, channel, text, archive and device scenarios through the broker using the in-process engine simulator, optionally bridged over a CBOR stream or served to a remote broker.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to vxbroker.toml (default: ./vxbroker.toml or ~/.vxbroker/vxbroker.toml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(a),
		newDemoCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}

// load reads the configuration and builds the logger. Log output goes to
// the command's stderr so stdout stays machine readable.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(viper.New(), a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg, cmd.ErrOrStderr())
	return nil
}

func newLogger(cfg config.Config, w io.Writer) logging.Logger {
	if w == nil {
		w = os.Stderr
	}
	switch cfg.Log.Format {
	case "text":
		lc := logging.DefaultLoggerConfig()
		lc.Level = cfg.LogLevel()
		lc.Format = "text"
		lc.Output = w
		lc.AddSource = false
		lc.Component = "vxsim"
		return logging.NewLogger(lc)
	case "console":
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel().String()))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(level).With().Timestamp().Str("service", "vxsim").Logger()
	return logging.NewZerologAdapter(zl)
}

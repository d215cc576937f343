package main

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

var warningSinkOnce sync.Once

// installWarningSink routes library warnings (small sample sets,
// stalled hyperparameter searches) to stderr as structured zerolog
// events instead of the plain default handler.
func installWarningSink() {
	warningSinkOnce.Do(func() {
		warnLog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
		errors.SetZerologWarnFunc(func(w error) {
			event := warnLog.Warn()
			if m, ok := w.(zerolog.LogObjectMarshaler); ok {
				event = event.EmbedObject(m)
			}
			event.Msg(w.Error())
		})
	})
}

func rootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "rsgis",
		Short:         "Remote sensing tools: classification, band maths and data access",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default rsgis.yaml in the working directory)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Int("threads", 0, "Worker count for parallel operations (0 = all CPUs)")
	rootCmd.PersistentFlags().String("tmp-dir", "", "Directory for temporary files")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.SetConfigName("rsgis")
			viper.SetConfigType("yaml")
			viper.AddConfigPath(".")
		}
		viper.SetEnvPrefix("RSGIS")
		viper.AutomaticEnv()
		if err := viper.ReadInConfig(); err != nil {
			// Running without a config file is fine.
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return err
			}
		}

		level, err := log.ToLogLevel(viper.GetString("log-level"))
		if err != nil {
			return err
		}
		log.SetLevel(log.Level(level))
		installWarningSink()
		return nil
	}

	rootCmd.AddCommand(
		classifyCommand(),
		calcIndicesCommand(),
		rasteriseCommand(),
		downloadCommand(),
	)
	return rootCmd
}

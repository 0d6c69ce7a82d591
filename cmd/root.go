package cmd

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joelsson/mqttcore/internal/logging"
)

// CfgFile is the path to an explicit config file, overriding the default
// search path, set via the --config persistent flag.
var CfgFile string

// LogLevel is the logrus level name applied before any subcommand runs.
var LogLevel string

// RootCmd is the mqttcore command line entry point.
var RootCmd = &cobra.Command{
	Use:   "mqttcore",
	Short: "mqttcore is a MQTT 3.1.1 client for publishing, subscribing, and inspecting ack latency",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetLevelFromName(LogLevel)
	},
}

// Execute runs RootCmd, exiting the process with status 1 on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringVar(&CfgFile, "config", "", "config file (default is $HOME/.mqttcore.yaml)")
	flags.StringVar(&LogLevel, "loglevel", "warn", "log level: trace, debug, info, warn, error, fatal, panic")
}

// initConfig reads in config file and ENV variables if set, following the
// same search path convention as the rest of this repository's tooling:
// an explicit --config flag, else $HOME/.mqttcore.yaml.
func initConfig() {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".mqttcore")
	}

	viper.SetEnvPrefix("MQTTCORE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

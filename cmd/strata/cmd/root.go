// Package cmd implements the strata command line interface.
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type flagsT struct {
	root struct {
		store     string
		workspace string
		logLevel  string
		force     bool
	}
	context struct {
		project string
		mode    string
		scope   string
	}
	layer struct {
		kind string
	}
	commit struct {
		message string
		author  string
	}
	refs struct {
		pattern string
	}
}

var strataFlags flagsT

var config *Config

// used to patch over calls to os.Exit() during test
var logFatalln = log.Fatalln
var osExit = os.Exit

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata manages layered configuration",
	Long: `Strata manages configuration as a stack of versioned layers.

Layers are merged in a fixed precedence order (global, mode, scope,
project) into the documents a workspace actually runs with. Every layer
has a git-like history of content-addressed snapshots, and changes move
through a staging index and an atomic multi-layer commit.
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&strataFlags.root.store, "store", "", "Path to the shared layer store")
	flags.StringVar(&strataFlags.root.workspace, "workspace", ".", "Path to the workspace root")
	flags.StringVar(&strataFlags.root.logLevel, "loglevel", "info", "Log level (debug, info, error, none)")
	flags.BoolVar(&strataFlags.root.force, "force", false, "Skip the workspace attachment check")
	flags.StringVar(&strataFlags.context.project, "project", "", "Project in context")
	flags.StringVar(&strataFlags.context.mode, "mode", "", "Mode in context (optional)")
	flags.StringVar(&strataFlags.context.scope, "scope", "", "Scope in context (optional)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if os.Getenv("STRATA_CONFIG") != "" {
		viper.SetConfigFile(os.Getenv("STRATA_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.strata")
		viper.AddConfigPath("/etc/strata")
		viper.SetConfigName("strata")
	}

	viper.SetEnvPrefix("STRATA")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}
	var err error
	config, err = newConfig()
	if err != nil {
		logFatalln(err)
	}
	config.setContextParams(&strataFlags)
}

func wrapFatalln(msg string, err error) {
	if err == nil {
		logFatalln(msg)
		return
	}
	logFatalln(fmt.Sprintf("%s: %v", msg, err))
}

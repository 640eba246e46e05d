package cmd

import (
	"github.com/spf13/viper"
)

// Config is the strata CLI configuration, read from strata.yaml or
// STRATA_* environment variables. Explicit flags win over the file.
type Config struct {
	// Store is the path to the shared layer store
	Store string `json:"store" yaml:"store"`

	// Workspace is the path to the workspace root
	Workspace string `json:"workspace" yaml:"workspace"`

	// Project, Mode and Scope set the default context
	Project string `json:"project" yaml:"project"`
	Mode    string `json:"mode" yaml:"mode"`
	Scope   string `json:"scope" yaml:"scope"`

	// Author is recorded on committed snapshots
	Author string `json:"author" yaml:"author"`

	// LogLevel selects logging verbosity
	LogLevel string `json:"loglevel" yaml:"loglevel"`
}

func newConfig() (*Config, error) {
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// setContextParams fills flags left unset from the configuration file
func (c *Config) setContextParams(flags *flagsT) {
	if flags.root.store == "" {
		flags.root.store = c.Store
	}
	if flags.root.workspace == "." && c.Workspace != "" {
		flags.root.workspace = c.Workspace
	}
	if flags.context.project == "" {
		flags.context.project = c.Project
	}
	if flags.context.mode == "" {
		flags.context.mode = c.Mode
	}
	if flags.context.scope == "" {
		flags.context.scope = c.Scope
	}
	if flags.commit.author == "" {
		flags.commit.author = c.Author
	}
	if c.LogLevel != "" && flags.root.logLevel == "info" {
		flags.root.logLevel = c.LogLevel
	}
}

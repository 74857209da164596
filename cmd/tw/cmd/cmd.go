package cmd

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	optionNameAPIAddr           = "api-addr"
	optionNameDBPath            = "db-path"
	optionNameVerbosity         = "verbosity"
	optionNamePollInterval      = "poll-interval"
	optionNameOutboxSize        = "outbox-size"
	optionNameFixtures          = "fixtures"
	optionNameTimeTravelEnabled = "time-travel-enabled"
	optionNameInitialTime       = "initial-time"
	optionNameScaleFactor       = "scale-factor"
	optionNameEnableScheduling  = "enable-scheduling"
	optionNameServer            = "server"
	optionNameScenariosDir      = "scenarios-dir"
	optionNameJSON              = "json"
)

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root    *cobra.Command
	config  *viper.Viper
	cfgFile string
	homeDir string
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "tw",
			Short:         "Timewarp virtual time server",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
	}

	for _, o := range opts {
		o(c)
	}

	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()

	if err := c.initServeCmd(); err != nil {
		return nil, err
	}
	if err := c.initTimeCmd(); err != nil {
		return nil, err
	}
	if err := c.initScheduleCmd(); err != nil {
		return nil, err
	}
	if err := c.initMutationCmd(); err != nil {
		return nil, err
	}
	c.initVersionCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.timewarp.yaml)")
}

func (c *command) initConfig() (err error) {
	config := viper.New()
	configName := ".timewarp"
	if c.cfgFile != "" {
		config.SetConfigFile(c.cfgFile)
	} else {
		config.AddConfigPath(c.homeDir)
		config.SetConfigName(configName)
	}

	config.SetEnvPrefix("timewarp")
	config.AutomaticEnv()
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if c.homeDir != "" && c.cfgFile == "" {
		c.cfgFile = filepath.Join(c.homeDir, configName+".yaml")
	}

	if err := config.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return err
		}
	}
	c.config = config
	return nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

// setClientFlags registers the flags shared by commands that talk to a
// running server.
func (c *command) setClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String(optionNameServer, "http://localhost:9080", "timewarp server URL")
	cmd.PersistentFlags().Bool(optionNameJSON, false, "JSON output")
}

// bindFlags makes the command's flags visible through viper before it runs.
func (c *command) bindFlags(cmd *cobra.Command) error {
	if err := c.config.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return c.config.BindPFlags(cmd.InheritedFlags())
}

// clientCmd builds a leaf command that calls the admin API of a running
// server.
func (c *command) clientCmd(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, cl *client, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.bindFlags(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, newClient(c.config.GetString(optionNameServer)), args)
		},
	}
}

// output prints v as JSON when --json is set and calls text otherwise.
func (c *command) output(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	if c.config.GetBool(optionNameJSON) {
		return printJSON(cmd.OutOrStdout(), v)
	}
	text(cmd.OutOrStdout())
	return nil
}

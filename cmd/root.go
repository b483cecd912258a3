package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcore "github.com/projecteru2/warren/cmd/core"
	cmdothers "github.com/projecteru2/warren/cmd/others"
	cmdvm "github.com/projecteru2/warren/cmd/vm"
	cmdws "github.com/projecteru2/warren/cmd/workspace"
	"github.com/projecteru2/warren/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warren",
		Short: "Warren - branch-scoped workspaces in a shared sandbox VM",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(commandContext(cmd))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("root-dir", "", "root data directory")

	_ = viper.BindPFlag("root_dir", cmd.PersistentFlags().Lookup("root-dir"))

	viper.SetEnvPrefix("WARREN")
	viper.AutomaticEnv()

	confProvider := func() *config.Config { return conf }

	base := cmdcore.BaseHandler{ConfProvider: confProvider}
	for _, c := range cmdws.Commands(cmdws.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}
	for _, c := range cmdvm.Commands(cmdvm.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}
	for _, c := range cmdothers.Commands(cmdothers.Handler{ConfProvider: confProvider}) {
		cmd.AddCommand(c)
	}

	return cmd
}()

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	_ = viper.ReadInConfig() // optional; missing file is OK

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if conf.PoolSize <= 0 {
		conf.PoolSize = runtime.NumCPU()
	}

	return log.SetupLog(ctx, &conf.Log, "")
}

// commandContext returns the command's context, falling back to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

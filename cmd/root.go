package main

import (
	"fmt"

	"buddy-match/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const app = "buddy-match"

var (
	cfgFile  string
	logJSON  bool
	logLevel string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "buddy-match pairs travel buddies by compatibility and schedules matching runs",
		SilenceUsage: true,
	}
)

// Execute 执行根命令。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_FILE or config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&logJSON, "json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

// setup 读取配置并按命令行覆盖项构造日志器。
func setup(cmd *cobra.Command) (AppConfig, *zap.Logger, error) {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return AppConfig{}, nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("json") {
		cfg.Log.JSON = logJSON
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	l, err := logger.New(cfg.Log.JSON, cfg.Log.Level)
	if err != nil {
		return AppConfig{}, nil, fmt.Errorf("creating a logger: %w", err)
	}
	return cfg, l, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"quantsignal/internal/app"
	"quantsignal/internal/config"
	"quantsignal/internal/logger"
)

var (
	configPath string
	cfg        *config.Config
	logFile    *os.File
)

var rootCmd = &cobra.Command{
	Use:   "quantsignal",
	Short: "Daily-bar strategy backtesting and live signal monitoring",
	Long: `quantsignal keeps a local archive of daily bars, backtests JSON strategy
documents against it and watches live quotes for strategy signals.

Example usage:
  quantsignal data --stocks BTCUSDT,ETHUSDT --days 365
  quantsignal backtest --stock BTCUSDT --chart out/btc.html
  quantsignal monitor --interval 60s --policy edge
  quantsignal serve`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadOrDefault(config.ResolvePath(configPath))
		if err != nil {
			return fmt.Errorf("读取配置失败: %w", err)
		}
		cfg = loaded
		f, err := setupLogOutput(cfg.App.LogPath)
		if err != nil {
			return fmt.Errorf("初始化日志文件失败: %w", err)
		}
		logFile = f
		logger.SetFormat(cfg.App.LogFormat)
		logger.SetLevel(cfg.App.LogLevel)
		logger.Infof("✓ 配置加载成功（环境=%s）", cfg.App.Env)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp builds the application for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := app.NewAppBuilder(cfg, app.WithConsole(cmd.OutOrStdout())).Build(ctx)
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("关闭资源失败: %v", err)
		}
	}()
	return fn(ctx, a)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stderr, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

// Package main は表示なしで全カメラを動かし、HTTPで録画を操作するコマンドの実装です
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"depthrig/internal/app"
	"depthrig/internal/config"
	"depthrig/internal/control"
	"depthrig/internal/fleet"
	"depthrig/internal/logging"
	"depthrig/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = pflag.StringP("config", "c", "", "設定ファイルのパス (デフォルト: $DEPTHRIG_CONFIG)")
		host       = pflag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = pflag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		calibDir   = pflag.String("calib-dir", "", "起動後にキャリブレーションを書き出すディレクトリ")
		logLevel   = pflag.String("log-level", "", "ログレベル (error, warn, info, debug)")
		help       = pflag.BoolP("help", "h", false, "ヘルプを表示")
	)
	pflag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("depthrig server")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		pflag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *calibDir != "" {
		cfg.Loop.CalibDir = *calibDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logging.Configure(os.Stderr, cfg.Log.Level)
	gin.SetMode(gin.ReleaseMode)

	if err := run(cfg); err != nil {
		log.Fatalf("実行中にエラーが発生しました: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 録画操作はHTTPから届く
	bus := control.NewBus(8)
	fl, err := fleet.Build(cfg, fleet.Deps{Input: bus})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := server.New(cfg, fl, bus)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
		cancel()
	}()

	runner := app.NewRunner(fl, app.Options{
		Rate:     cfg.Loop.Rate,
		CalibDir: cfg.Loop.CalibDir,
	})
	runErr := runner.Run(ctx)

	cancel()
	return errors.Join(runErr, <-serverDone)
}

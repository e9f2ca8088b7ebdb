// Package main は端末表示付きで全カメラを動かすコマンドの実装です
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"depthrig/internal/app"
	"depthrig/internal/config"
	"depthrig/internal/control"
	"depthrig/internal/fleet"
	"depthrig/internal/logging"
	"depthrig/internal/tui"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = pflag.StringP("config", "c", "", "設定ファイルのパス (デフォルト: $DEPTHRIG_CONFIG)")
		calibDir   = pflag.String("calib-dir", "", "起動後にキャリブレーションを書き出すディレクトリ")
		logLevel   = pflag.String("log-level", "", "ログレベル (error, warn, info, debug)")
		logFile    = pflag.String("log-file", "depthrig.log", "ログの出力先。端末は表示に使うためファイルに書く")
		help       = pflag.BoolP("help", "h", false, "ヘルプを表示")
	)
	pflag.Parse()

	if *help {
		fmt.Println("depthrig")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  depthrig [オプション]")
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
	if *calibDir != "" {
		cfg.Loop.CalibDir = *calibDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	out, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("ログファイルを開けませんでした: %v", err)
	}
	defer out.Close()
	logging.Configure(out, cfg.Log.Level)

	if err := run(cfg); err != nil {
		log.Fatalf("実行中にエラーが発生しました: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := control.NewBus(8)
	surface := tui.NewSurface(bus)

	fl, err := fleet.Build(cfg, fleet.Deps{Surface: surface, Input: bus})
	if err != nil {
		return err
	}

	// 表示が終了したらループも止める
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	surfaceDone := make(chan error, 1)
	go func() {
		surfaceDone <- surface.Run(ctx)
		cancel()
	}()

	runner := app.NewRunner(fl, app.Options{
		Rate:     cfg.Loop.Rate,
		CalibDir: cfg.Loop.CalibDir,
	})
	runErr := runner.Run(ctx)

	cancel()
	return errors.Join(runErr, <-surfaceDone)
}

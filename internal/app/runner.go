// Package app はフリートを一定周期で更新するメインループを提供する
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"depthrig/internal/fleet"
	"depthrig/internal/logging"
	"depthrig/internal/overlay"
)

// Fleet はメインループから操作するフリートの機能
type Fleet interface {
	Launch(ctx context.Context) error
	Update(overlaysByDevice map[string][]overlay.Overlay) fleet.Batch
	Alive() bool
	Shutdown() error
	SaveCalibration(dir string) error
}

// OverlayProvider は次の更新で描画するオーバーレイを返す
type OverlayProvider func() map[string][]overlay.Overlay

// Options はRunnerの設定
type Options struct {
	Rate     int               // 更新周期 (Hz)
	CalibDir string            // 空でなければ起動後にキャリブレーションを書き出す
	Overlays OverlayProvider   // nilならオーバーレイなし
	OnBatch  func(fleet.Batch) // 更新ごとに呼ばれる
	Logger   logging.Logger
}

// Runner はフリートの起動、周期更新、停止をまとめて行う
type Runner struct {
	fleet  Fleet
	opts   Options
	logger logging.Logger
}

// NewRunner は新しいRunnerを作成する
func NewRunner(f Fleet, opts Options) *Runner {
	if opts.Rate <= 0 {
		opts.Rate = 30
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("app")
	}
	return &Runner{fleet: f, opts: opts, logger: logger}
}

// Run はフリートを起動し、ctxのキャンセルかフリートの終了まで更新を続ける
// 終了時は必ずフリートをShutdownする
func (r *Runner) Run(ctx context.Context) (err error) {
	if err := r.fleet.Launch(ctx); err != nil {
		return err
	}
	r.logger.Info("全カメラを起動しました")

	defer func() {
		r.logger.Info("全カメラを停止しています...")
		if shutdownErr := r.fleet.Shutdown(); shutdownErr != nil {
			r.logger.Errorf("停止処理でエラーが発生しました: %v", shutdownErr)
			err = errors.Join(err, shutdownErr)
		}
	}()

	if r.opts.CalibDir != "" {
		if err := r.fleet.SaveCalibration(r.opts.CalibDir); err != nil {
			return err
		}
		r.logger.Infof("キャリブレーションを書き出しました: %s", r.opts.CalibDir)
	}

	ticker := time.NewTicker(time.Second / time.Duration(r.opts.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("終了要求を受け取りました")
			return nil
		case <-ticker.C:
		}

		if err := r.step(); err != nil {
			return err
		}
		if !r.fleet.Alive() {
			r.logger.Info("表示が閉じられたため終了します")
			return nil
		}
	}
}

// step は1回分の更新。パニックはエラーに変換する
func (r *Runner) step() (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("更新中にパニックが発生しました: %v", p)
			err = fmt.Errorf("更新中にパニックが発生: %v", p)
		}
	}()

	var overlays map[string][]overlay.Overlay
	if r.opts.Overlays != nil {
		overlays = r.opts.Overlays()
	}
	batch := r.fleet.Update(overlays)
	if r.opts.OnBatch != nil {
		r.opts.OnBatch(batch)
	}
	return nil
}

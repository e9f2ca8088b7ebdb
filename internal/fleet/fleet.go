// Package fleet は複数台のカメラを設定順にまとめて起動・更新・停止する
package fleet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"depthrig/internal/calib"
	"depthrig/internal/control"
	"depthrig/internal/frame"
	"depthrig/internal/logging"
	"depthrig/internal/overlay"
)

// Batch はデバイスIDごとのフレーム。カラーとデプスが揃ったデバイスだけを含む
type Batch map[string]frame.State

// Fleet は設定順のControllerをまとめる
// Launch / Update / Shutdown は単一のゴルーチンから呼ぶ。Status はどこからでも呼べる
type Fleet struct {
	controllers []*Controller
	index       map[string]*Controller
	input       control.Input
	manualStart bool
	logger      logging.Logger
	now         func() time.Time

	liveness Liveness

	// 公開用のスナップショット
	mu     sync.RWMutex
	status Status
}

// New は新しいFleetを作成する
// manualStart が true の場合、input の開始・停止操作を全コントローラーに同時に適用する
func New(controllers []*Controller, input control.Input, manualStart bool) (*Fleet, error) {
	index := make(map[string]*Controller, len(controllers))
	for _, c := range controllers {
		if _, exists := index[c.ID()]; exists {
			return nil, fmt.Errorf("デバイス %s が重複しています", c.ID())
		}
		index[c.ID()] = c
	}

	f := &Fleet{
		controllers: controllers,
		index:       index,
		input:       input,
		manualStart: manualStart,
		logger:      logging.NewLogger("fleet"),
		now:         time.Now,
		liveness:    LivenessIdle,
	}
	f.publish()
	return f, nil
}

// SetLogger はロガーを差し替える
func (f *Fleet) SetLogger(logger logging.Logger) {
	f.logger = logger
}

// Launch は設定順に全コントローラーを起動する
// 失敗した場合は起動済みのコントローラーを停止してエラーを返す
func (f *Fleet) Launch(ctx context.Context) error {
	if f.liveness != LivenessIdle {
		return errors.New("フリートは起動済みか停止済みです")
	}

	for i, c := range f.controllers {
		if err := c.Launch(ctx); err != nil {
			for _, launched := range f.controllers[:i] {
				if serr := launched.Shutdown(); serr != nil {
					f.logger.Warnf("カメラ %s の停止に失敗: %v", launched.ID(), serr)
				}
			}
			f.liveness = LivenessStopped
			f.publish()
			return fmt.Errorf("カメラ %s の起動に失敗: %w", c.ID(), err)
		}
	}

	f.liveness = LivenessRunning
	f.publish()
	f.logger.Info("[System] All cameras launched!")
	return nil
}

// Update は共通の録画操作を適用してから全コントローラーを更新する
func (f *Fleet) Update(overlaysByDevice map[string][]overlay.Overlay) Batch {
	f.applyInput()

	batch := make(Batch, len(f.controllers))
	for _, c := range f.controllers {
		c.Update(overlaysByDevice[c.ID()])

		if !c.Alive() && f.liveness == LivenessRunning {
			f.liveness = LivenessStopped
			f.logger.Infof("カメラ %s が停止したためフリートを終了します", c.ID())
		}

		if c.Ready() {
			batch[c.ID()] = c.State()
		}
	}

	f.publish()
	return batch
}

// applyInput は開始・停止操作を全コントローラーに同時に適用する
func (f *Fleet) applyInput() {
	if f.input == nil {
		return
	}
	cmd, ok := f.input.Poll()
	if !ok {
		return
	}

	switch cmd {
	case control.CommandStartRecording:
		f.SetRecording(true)
	case control.CommandStopRecording:
		f.SetRecording(false)
	}
}

// SetRecording は全コントローラーの録画中フラグを切り替える
// フリート側では状態を持たず、毎回全台へ適用する
func (f *Fleet) SetRecording(start bool) {
	for _, c := range f.controllers {
		c.ControlRecording(start)
	}
}

// Alive は全コントローラーが生存しているかを返す
func (f *Fleet) Alive() bool {
	return f.liveness == LivenessRunning
}

// ManualStart は共通の手動開始モードかを返す
func (f *Fleet) ManualStart() bool {
	return f.manualStart
}

// Controllers は設定順のコントローラー一覧を返す
func (f *Fleet) Controllers() []*Controller {
	return f.controllers
}

// Controller はIDでコントローラーを探す
func (f *Fleet) Controller(id string) (*Controller, bool) {
	c, ok := f.index[id]
	return c, ok
}

// Shutdown は全コントローラーを停止する。途中で失敗しても残りを停止する
func (f *Fleet) Shutdown() error {
	var errs []error
	for _, c := range f.controllers {
		if err := c.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("カメラ %s の停止に失敗: %w", c.ID(), err))
		}
	}

	f.liveness = LivenessStopped
	f.publish()
	f.logger.Info("[System] Shutdown complete.")
	return errors.Join(errs...)
}

// Status は直近の更新時点の状態を返す
func (f *Fleet) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()

	status := f.status
	status.Devices = append([]DeviceStatus(nil), f.status.Devices...)
	return status
}

// publish は状態のスナップショットを更新する
func (f *Fleet) publish() {
	devices := make([]DeviceStatus, 0, len(f.controllers))
	recording := false
	for _, c := range f.controllers {
		s := c.Status()
		recording = recording || s.Recording
		devices = append(devices, s)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = Status{
		Liveness:    f.liveness,
		Alive:       f.liveness == LivenessRunning,
		ManualStart: f.manualStart,
		Recording:   recording,
		Devices:     devices,
		UpdatedAt:   f.now(),
	}
}

// ErrUnknownDevice は指定したIDのデバイスがない場合のエラー
var ErrUnknownDevice = errors.New("指定されたカメラが見つかりません")

// Calibration は起動時に取得した内部パラメータ行列とベースラインを返す
// 読み取り専用のためどのゴルーチンから呼んでもよい
func (f *Fleet) Calibration(id string) (calib.Matrix, float64, error) {
	c, ok := f.index[id]
	if !ok {
		return calib.Matrix{}, 0, ErrUnknownDevice
	}
	intr, err := c.Source().Intrinsics()
	if err != nil {
		return calib.Matrix{}, 0, err
	}
	baseline, err := c.Source().Baseline()
	if err != nil {
		return calib.Matrix{}, 0, err
	}
	return intr.Matrix(), baseline, nil
}

// SaveCalibration は全デバイスのキャリブレーションを dir/calib_<id>.txt に書き出す
func (f *Fleet) SaveCalibration(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("キャリブレーション出力先の作成に失敗: %w", err)
	}

	var errs []error
	for _, c := range f.controllers {
		k, baseline, err := f.Calibration(c.ID())
		if err != nil {
			errs = append(errs, fmt.Errorf("カメラ %s: %w", c.ID(), err))
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("calib_%s.txt", c.ID()))
		if err := calib.Save(path, k, baseline); err != nil {
			errs = append(errs, err)
			continue
		}
		f.logger.Infof("キャリブレーションを保存しました: %s", path)
	}
	return errors.Join(errs...)
}

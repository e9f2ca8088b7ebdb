package fleet

import (
	"context"
	"errors"
	"fmt"

	"depthrig/internal/camera"
	"depthrig/internal/control"
	"depthrig/internal/frame"
	"depthrig/internal/logging"
	"depthrig/internal/overlay"
)

// Liveness はコントローラーとフリートの生存状態
type Liveness string

const (
	LivenessIdle    Liveness = "idle"    // 構築直後
	LivenessRunning Liveness = "running" // Launch済み
	LivenessStopped Liveness = "stopped" // 表示終了またはShutdown済み（終端）
)

// Source はフレームの取得元
type Source interface {
	ID() string
	Launch(ctx context.Context) error
	CurrentState() frame.State
	Running() bool
	Intrinsics() (camera.Intrinsics, error)
	Baseline() (float64, error)
	Shutdown() error
}

// Viewer はフレームの表示先
type Viewer interface {
	Update(state frame.State, overlays []overlay.Overlay) bool
	Alive() bool
}

// Recorder はフレームの録画先
type Recorder interface {
	Update(state frame.State, overlays []overlay.Overlay) error
	Stop() error
	Dir() string
	Frames() int
}

// Options はコントローラーの任意の構成要素
type Options struct {
	Viewer    Viewer        // nilなら表示しない
	Recorder  Recorder      // nilなら録画しない
	AutoStart bool          // 最初の有効なフレームで録画を開始する
	Input     control.Input // 手動開始・停止の操作（nilなら受け付けない）
	Logger    logging.Logger
}

// Controller は1台分のソース・表示・録画をまとめる
// Update / ControlRecording / Shutdown は単一のゴルーチンから呼ばれる前提
type Controller struct {
	id       string
	source   Source
	viewer   Viewer
	recorder Recorder
	input    control.Input
	logger   logging.Logger

	autoStart   bool
	autoStarted bool
	recording   bool
	liveness    Liveness
	state       frame.State
}

// NewController は新しいControllerを作成する
func NewController(source Source, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("fleet")
	}
	return &Controller{
		id:        source.ID(),
		source:    source,
		viewer:    opts.Viewer,
		recorder:  opts.Recorder,
		input:     opts.Input,
		logger:    logger,
		autoStart: opts.AutoStart,
		liveness:  LivenessIdle,
	}
}

// ID はデバイスの識別子を返す
func (c *Controller) ID() string {
	return c.id
}

// Launch はソースを起動する
func (c *Controller) Launch(ctx context.Context) error {
	if c.liveness != LivenessIdle {
		return fmt.Errorf("カメラ %s は起動済みか停止済みです", c.id)
	}
	if err := c.source.Launch(ctx); err != nil {
		return err
	}
	c.liveness = LivenessRunning
	return nil
}

// Update は最新フレームを取り込み、録画と表示へ渡す
func (c *Controller) Update(overlays []overlay.Overlay) {
	if c.liveness == LivenessStopped {
		return
	}

	c.state = c.state.Merge(c.source.CurrentState())
	if !c.state.Ready() {
		return
	}

	if c.recorder != nil {
		c.updateRecording(overlays)
	}

	if c.viewer != nil {
		if !c.viewer.Update(c.state, overlays) {
			c.liveness = LivenessStopped
		}
	}
}

func (c *Controller) updateRecording(overlays []overlay.Overlay) {
	if !c.recording {
		switch {
		case c.autoStart && !c.autoStarted:
			c.autoStarted = true
			c.setRecording(true)
		case c.poll(control.CommandStartRecording):
			c.setRecording(true)
		}
	}

	if !c.recording {
		return
	}

	if err := c.recorder.Update(c.state, overlays); err != nil {
		c.logger.Warnf("[Recorder %s] 書き込みに失敗: %v", camera.Suffix(c.id), err)
	}
	if c.poll(control.CommandStopRecording) {
		c.setRecording(false)
	}
}

// poll は入力から want を1件取り出せたかを返す。それ以外の操作は捨てる
func (c *Controller) poll(want control.Command) bool {
	if c.input == nil {
		return false
	}
	cmd, ok := c.input.Poll()
	return ok && cmd == want
}

// ControlRecording は録画中フラグを外部から切り替える
// 録画が構成されていなくてもフラグは切り替わる。停止しても録画ファイルは閉じず、Shutdownで閉じる
// 外部から操作した後は自動開始しない
func (c *Controller) ControlRecording(start bool) {
	c.autoStarted = true
	c.setRecording(start)
}

func (c *Controller) setRecording(start bool) {
	if c.recording == start {
		return
	}
	c.recording = start
	if c.recorder == nil {
		return
	}
	if start {
		c.logger.Infof("[Recorder %s] Recording started !!!", camera.Suffix(c.id))
	} else {
		c.logger.Infof("[Recorder %s] Recording stopped !!!", camera.Suffix(c.id))
	}
}

// State はマージ済みのフレームのコピーを返す
func (c *Controller) State() frame.State {
	return c.state.Clone()
}

// Ready はカラーとデプスが揃っているかを返す
func (c *Controller) Ready() bool {
	return c.state.Ready()
}

// Recording は録画中フラグを返す
func (c *Controller) Recording() bool {
	return c.recording
}

// HasRecorder は録画が構成されているかを返す
func (c *Controller) HasRecorder() bool {
	return c.recorder != nil
}

// Liveness は生存状態を返す
func (c *Controller) Liveness() Liveness {
	return c.liveness
}

// Alive は停止していないかを返す
// キャプチャループの停止は反映しない。Status の Capturing で確認する
func (c *Controller) Alive() bool {
	return c.liveness != LivenessStopped
}

// Source はフレームの取得元を返す
func (c *Controller) Source() Source {
	return c.source
}

// Shutdown は録画を止めてからソースを停止する。何度呼んでもよい
func (c *Controller) Shutdown() error {
	var errs []error
	if c.recorder != nil {
		if err := c.recorder.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("録画の停止に失敗: %w", err))
		}
	}
	if err := c.source.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	c.recording = false
	c.liveness = LivenessStopped
	return errors.Join(errs...)
}

// Status は状態のスナップショットを返す
func (c *Controller) Status() DeviceStatus {
	status := DeviceStatus{
		ID:          c.id,
		Liveness:    c.liveness,
		Capturing:   c.source.Running(),
		Ready:       c.state.Ready(),
		Recording:   c.recording,
		HasViewer:   c.viewer != nil,
		HasRecorder: c.recorder != nil,
	}
	if ms, ok := c.state.TimestampMillis(); ok {
		status.TimestampMillis = ms
	}
	if c.recorder != nil {
		status.RecordingDir = c.recorder.Dir()
		status.RecordedFrames = c.recorder.Frames()
	}
	return status
}

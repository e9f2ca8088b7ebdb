// Package recorder は1台分のフレームを色・デプス・オーバーレイの動画として保存する
package recorder

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"depthrig/internal/camera"
	"depthrig/internal/frame"
	"depthrig/internal/logging"
	"depthrig/internal/overlay"
	"depthrig/internal/pacer"
)

// SaveNameLayout はセッション名を省略したときの時刻書式
const SaveNameLayout = "20060102_150405"

// Config は録画の設定
type Config struct {
	SaveDir         string             // 保存先ディレクトリ
	SaveName        string             // セッション名（空なら開始時刻）
	FrameRate       int                // 録画フレームレート
	IncludeOverlays bool               // オーバーレイ付き動画も保存する
	Order           frame.ChannelOrder // 入力画像のチャンネル順序
}

// Recorder は最初の有効なフレームでセッションを開き、以降のフレームを書き込む
// Update と Stop は単一のゴルーチンから呼ばれる前提
type Recorder struct {
	deviceID string
	config   Config
	factory  SinkFactory
	gate     *pacer.Gate
	now      func() time.Time
	logger   logging.Logger

	session *session
	stopped bool
}

// session は開いている動画出力の集合
type session struct {
	dir      string
	size     image.Point
	color    Sink
	depth    Sink
	overlay  Sink
	manifest Manifest
}

// New は新しいRecorderを作成する
func New(deviceID string, config Config, factory SinkFactory) *Recorder {
	if factory == nil {
		factory = NewFFmpegFactory()
	}
	return &Recorder{
		deviceID: deviceID,
		config:   config,
		factory:  factory,
		gate:     pacer.New(config.FrameRate),
		now:      time.Now,
		logger:   logging.NewLogger("recorder"),
	}
}

// SetLogger はロガーを差し替える
func (r *Recorder) SetLogger(logger logging.Logger) {
	r.logger = logger
}

// SetClock は時刻取得関数を差し替える（テスト用）
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
	r.gate = pacer.NewWithClock(r.config.FrameRate, now)
}

// Update はフレームを書き込む
// 前回の受理から 1/fps 秒未満の呼び出し、カラー画像のない呼び出し、Stop後の呼び出しは何もしない
func (r *Recorder) Update(state frame.State, overlays []overlay.Overlay) error {
	if r.stopped || state.Color == nil {
		return nil
	}
	if !r.gate.Allow() {
		return nil
	}

	if r.session == nil {
		if err := r.open(state.Color.Rect.Size()); err != nil {
			return err
		}
	}
	s := r.session

	color := r.fit(state.Color)
	if r.config.Order == frame.OrderBGR {
		frame.SwapRB(color)
	}

	var errs []error
	if err := s.color.WriteFrame(color); err != nil {
		errs = append(errs, err)
	}
	if state.Depth != nil {
		if err := s.depth.WriteFrame(r.fit(frame.ColorizeDefault(state.Depth))); err != nil {
			errs = append(errs, err)
		}
	}
	if s.overlay != nil {
		if err := s.overlay.WriteFrame(overlay.Draw(color, overlays)); err != nil {
			errs = append(errs, err)
		}
	}
	s.manifest.Frames++

	return errors.Join(errs...)
}

// open はセッションディレクトリと動画出力を作成する
func (r *Recorder) open(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("フレームサイズが無効です: %v", size)
	}

	name := r.config.SaveName
	if name == "" {
		name = r.now().Format(SaveNameLayout)
	}
	dir := filepath.Join(r.config.SaveDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
	}

	s := &session{
		dir:  dir,
		size: size,
		manifest: Manifest{
			SessionID: uuid.New().String(),
			DeviceID:  r.deviceID,
			FrameRate: r.config.FrameRate,
			Width:     size.X,
			Height:    size.Y,
			Codec:     Fourcc,
			StartedAt: r.now(),
		},
	}

	var err error
	if s.color, err = r.create(s, "color"); err != nil {
		return err
	}
	if s.depth, err = r.create(s, "depth"); err != nil {
		_ = s.close()
		return err
	}
	if r.config.IncludeOverlays {
		if s.overlay, err = r.create(s, "overlay"); err != nil {
			_ = s.close()
			return err
		}
	}

	if err := writeManifest(dir, s.manifest); err != nil {
		r.logger.Warnf("[Camera %s] %v", r.suffix(), err)
	}

	r.session = s
	r.logger.Infof("[Camera %s] 録画を開始しました: %s (%dx%d, %d fps)", r.suffix(), dir, size.X, size.Y, r.config.FrameRate)
	return nil
}

func (r *Recorder) create(s *session, stream string) (Sink, error) {
	name := fmt.Sprintf("cam_%s_%s.mp4", r.suffix(), stream)
	sink, err := r.factory.Create(filepath.Join(s.dir, name), s.size, r.config.FrameRate)
	if err != nil {
		return nil, fmt.Errorf("%s 動画の作成に失敗: %w", stream, err)
	}
	s.manifest.Files = append(s.manifest.Files, name)
	return sink, nil
}

// fit はセッションのサイズに揃えたコピーを返す
func (r *Recorder) fit(img *image.RGBA) *image.RGBA {
	size := r.session.size
	out := image.NewRGBA(image.Rectangle{Max: size})
	if img.Rect.Size() == size {
		draw.Draw(out, out.Rect, img, img.Rect.Min, draw.Src)
		return out
	}
	draw.ApproxBiLinear.Scale(out, out.Rect, img, img.Rect, draw.Src, nil)
	return out
}

// Stop は開いている動画出力を一度だけ閉じる。何度呼んでもよい
func (r *Recorder) Stop() error {
	if r.stopped {
		return nil
	}
	r.stopped = true

	if r.session == nil {
		return nil
	}

	s := r.session
	err := s.close()

	stoppedAt := r.now()
	s.manifest.StoppedAt = &stoppedAt
	if merr := writeManifest(s.dir, s.manifest); merr != nil {
		err = errors.Join(err, merr)
	}

	r.logger.Infof("[Camera %s] 録画を停止しました。保存先: %s (%d フレーム)", r.suffix(), s.dir, s.manifest.Frames)
	return err
}

// Recording はセッションが開いているかを返す
func (r *Recorder) Recording() bool {
	return r.session != nil && !r.stopped
}

// Stopped はStop済みかを返す
func (r *Recorder) Stopped() bool {
	return r.stopped
}

// Dir はセッションディレクトリを返す。開始前は空
func (r *Recorder) Dir() string {
	if r.session == nil {
		return ""
	}
	return r.session.dir
}

// Frames は書き込んだフレーム数を返す
func (r *Recorder) Frames() int {
	if r.session == nil {
		return 0
	}
	return r.session.manifest.Frames
}

func (r *Recorder) suffix() string {
	return camera.Suffix(r.deviceID)
}

func (s *session) close() error {
	var errs []error
	for _, sink := range []Sink{s.color, s.depth, s.overlay} {
		if sink == nil {
			continue
		}
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

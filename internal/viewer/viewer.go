// Package viewer は1台分のフレームを合成して表示面へ送る
package viewer

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"

	"depthrig/internal/camera"
	"depthrig/internal/frame"
	"depthrig/internal/logging"
	"depthrig/internal/overlay"
	"depthrig/internal/pacer"
)

// PlaceholderMessage は表示するストリームがないときの文言
const PlaceholderMessage = "No streams fetched"

// Display は1枚のウィンドウ
type Display interface {
	// Show は画像を表示する
	Show(img *image.RGBA) error

	// Closed はユーザーが終了操作をしたか、ウィンドウが閉じられたかを返す
	Closed() bool
}

// Surface はタイトル付きのウィンドウを作る表示面
type Surface interface {
	Open(title string) (Display, error)
}

// Config は表示の設定
type Config struct {
	ShowColor bool
	ShowDepth bool
	FrameRate int
	Order     frame.ChannelOrder // 入力画像のチャンネル順序
}

// Viewer はレート制御しつつ合成画像を表示する
// Update は単一のゴルーチンから呼ばれる前提
type Viewer struct {
	title   string
	config  Config
	display Display
	gate    *pacer.Gate
	logger  logging.Logger

	alive bool
}

// New はウィンドウを開いてViewerを作成する
func New(deviceID string, config Config, surface Surface) (*Viewer, error) {
	if surface == nil {
		return nil, fmt.Errorf("表示面が指定されていません")
	}

	title := Title(deviceID, config)
	display, err := surface.Open(title)
	if err != nil {
		return nil, fmt.Errorf("ウィンドウ %q を開けません: %w", title, err)
	}

	return &Viewer{
		title:   title,
		config:  config,
		display: display,
		gate:    pacer.New(config.FrameRate),
		logger:  logging.NewLogger("viewer"),
		alive:   true,
	}, nil
}

// Title はウィンドウタイトルを返す
func Title(deviceID string, config Config) string {
	suffix := camera.Suffix(deviceID)
	switch {
	case config.ShowColor && !config.ShowDepth:
		return fmt.Sprintf("Camera %s Color", suffix)
	case config.ShowDepth && !config.ShowColor:
		return fmt.Sprintf("Camera %s Depth", suffix)
	default:
		return fmt.Sprintf("Camera %s View", suffix)
	}
}

// SetLogger はロガーを差し替える
func (v *Viewer) SetLogger(logger logging.Logger) {
	v.logger = logger
}

// SetClock は時刻取得関数を差し替える（テスト用）
func (v *Viewer) SetClock(now func() time.Time) {
	v.gate = pacer.NewWithClock(v.config.FrameRate, now)
}

// Update は合成画像を表示し、生存状態を返す
// 一度falseになった後は何もしない
func (v *Viewer) Update(state frame.State, overlays []overlay.Overlay) bool {
	if !v.alive {
		return false
	}
	if !v.gate.Allow() {
		return true
	}

	if img := v.Compose(state, overlays); img != nil {
		if err := v.display.Show(img); err != nil {
			v.logger.Warnf("[%s] 表示に失敗: %v", v.title, err)
		}
	}

	if v.display.Closed() {
		v.alive = false
		v.logger.Infof("[%s] ウィンドウが閉じられました", v.title)
	}
	return v.alive
}

// Alive は生存状態を返す
func (v *Viewer) Alive() bool {
	return v.alive
}

// Title はウィンドウタイトルを返す
func (v *Viewer) Title() string {
	return v.title
}

// Compose は設定に応じて表示画像を作る
// カラーとデプスが両方有効なら左右に並べ、どちらも無効ならメッセージ付きの黒画像を返す
func (v *Viewer) Compose(state frame.State, overlays []overlay.Overlay) *image.RGBA {
	var colorPane *image.RGBA
	if state.Color != nil {
		colorPane = overlay.Draw(state.Color, nil)
		if v.config.Order == frame.OrderBGR {
			frame.SwapRB(colorPane)
		}
		colorPane = overlay.Draw(colorPane, overlays)
	}

	var depthPane *image.RGBA
	if v.config.ShowDepth && state.Depth != nil {
		depthPane = frame.ColorizeDefault(state.Depth)
	}

	switch {
	case v.config.ShowColor && v.config.ShowDepth:
		return sideBySide(colorPane, depthPane)
	case v.config.ShowColor:
		return colorPane
	case v.config.ShowDepth:
		return depthPane
	default:
		size := image.Point{}
		if state.Color != nil {
			size = state.Color.Rect.Size()
		} else if state.Depth != nil {
			size = image.Pt(state.Depth.Width, state.Depth.Height)
		}
		return placeholder(size)
	}
}

// sideBySide は左にカラー、右にデプスを並べる。デプスはカラーの高さに揃える
func sideBySide(left, right *image.RGBA) *image.RGBA {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}

	lw, lh := left.Rect.Dx(), left.Rect.Dy()
	rw := right.Rect.Dx()
	if rh := right.Rect.Dy(); rh != lh && rh > 0 {
		rw = rw * lh / rh
	}

	dst := image.NewRGBA(image.Rect(0, 0, lw+rw, lh))
	draw.Draw(dst, image.Rect(0, 0, lw, lh), left, left.Rect.Min, draw.Src)
	target := image.Rect(lw, 0, lw+rw, lh)
	if right.Rect.Size() == target.Size() {
		draw.Draw(dst, target, right, right.Rect.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, target, right, right.Rect, draw.Src, nil)
	}
	return dst
}

// placeholder は中央にメッセージを描いた黒画像を作る
func placeholder(size image.Point) *image.RGBA {
	if size.X <= 0 || size.Y <= 0 {
		return nil
	}
	dst := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(dst, dst.Rect, image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)

	const scale = 0.7
	text := overlay.MeasureText(PlaceholderMessage, scale)
	msg := overlay.Text{
		Content:   PlaceholderMessage,
		Position:  image.Pt((size.X-text.X)/2, (size.Y+text.Y)/2),
		Color:     color.RGBA{R: 255, G: 255, B: 255, A: 255},
		FontScale: scale,
		Thickness: 2,
	}
	return overlay.Draw(dst, []overlay.Overlay{msg})
}

package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"sync"
	"time"

	"depthrig/internal/frame"
)

// SyntheticDevice は実機なしで動作確認するためのデバイス
// 流れるカラーバー・視差分ずらした右目画像・傾斜したデプスを生成する
// 画像バッファはSDKと同じくBGR順で返す
type SyntheticDevice struct {
	serial string

	mu     sync.Mutex
	params AcquisitionParams
	tick   *time.Ticker
	closed <-chan struct{}
	cancel context.CancelFunc
	count  int
}

// NewSyntheticDevice は新しいSyntheticDeviceを作成する
func NewSyntheticDevice(serial string) *SyntheticDevice {
	return &SyntheticDevice{serial: serial}
}

// Open はティッカーを開始する
func (d *SyntheticDevice) Open(params AcquisitionParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return errors.New("既にオープンされています")
	}
	if params.FrameRate <= 0 {
		params.FrameRate = 30
	}
	if params.Width <= 0 || params.Height <= 0 {
		params.Width, params.Height = 1280, 720
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.params = params
	d.closed = ctx.Done()
	d.cancel = cancel
	d.tick = time.NewTicker(time.Second / time.Duration(params.FrameRate))
	return nil
}

// Grab は次のティックまで待つ
func (d *SyntheticDevice) Grab() error {
	d.mu.Lock()
	tick, closed := d.tick, d.closed
	d.mu.Unlock()

	if tick == nil {
		return errors.New("デバイスがオープンされていません")
	}
	select {
	case <-closed:
		return io.EOF
	case <-tick.C:
		return nil
	}
}

// Retrieve はテストパターンを生成する
func (d *SyntheticDevice) Retrieve() (RawFrame, error) {
	d.mu.Lock()
	d.count++
	n := d.count
	w, h := d.params.Width, d.params.Height
	d.mu.Unlock()

	// 視差（ピクセル）
	const disparity = 8
	left := image.NewRGBA(image.Rect(0, 0, w, h))
	right := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := barColor(x+n*4, w)
			left.SetRGBA(x, y, c)
			right.SetRGBA(x, y, barColor(x+disparity+n*4, w))
		}
	}
	frame.SwapRB(left)
	frame.SwapRB(right)

	depth := frame.NewDepthMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// 上端が近く下端が遠い。左端の列は計測不能
			if x == 0 {
				depth.Set(x, y, float32(math.NaN()))
				continue
			}
			depth.Set(x, y, float32(0.3+2.7*float64(y)/float64(h)))
		}
	}

	return RawFrame{
		Left:      left,
		Right:     right,
		Depth:     depth,
		Timestamp: time.Now().Truncate(time.Millisecond),
		Order:     frame.OrderBGR,
	}, nil
}

// Calibration は出力サイズから決めた固定値を返す
func (d *SyntheticDevice) Calibration() (Calibration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, h := float64(d.params.Width), float64(d.params.Height)
	return Calibration{
		Intrinsics: Intrinsics{
			Fx:         w * 0.55,
			Fy:         w * 0.55,
			Cx:         w / 2,
			Cy:         h / 2,
			Distortion: []float64{0, 0, 0, 0, 0},
		},
		Baseline: 0.12,
	}, nil
}

// Close はティッカーを止め、Grabの待ちを解放する
func (d *SyntheticDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	if d.tick != nil {
		d.tick.Stop()
	}
	return nil
}

var colorBars = []color.RGBA{
	{235, 235, 235, 255},
	{235, 235, 16, 255},
	{16, 235, 235, 255},
	{16, 235, 16, 255},
	{235, 16, 235, 255},
	{235, 16, 16, 255},
	{16, 16, 235, 255},
}

func barColor(x, width int) color.RGBA {
	if width <= 0 {
		return colorBars[0]
	}
	return colorBars[(x%width)*len(colorBars)/width]
}

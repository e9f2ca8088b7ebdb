package recorder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthrig/internal/frame"
	"depthrig/internal/logging"
	"depthrig/internal/overlay"
)

type fakeSink struct {
	path   string
	size   image.Point
	frames []*image.RGBA
	closes int
}

func (s *fakeSink) WriteFrame(img *image.RGBA) error {
	if img.Rect.Size() != s.size {
		return errors.New("size mismatch")
	}
	s.frames = append(s.frames, img)
	return nil
}

func (s *fakeSink) Close() error {
	s.closes++
	return nil
}

type fakeFactory struct {
	mu    sync.Mutex
	sinks map[string]*fakeSink
	fail  string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{sinks: make(map[string]*fakeSink)}
}

func (f *fakeFactory) Create(path string, size image.Point, _ int) (Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != "" && filepath.Base(path) == f.fail {
		return nil, errors.New("encoder unavailable")
	}
	sink := &fakeSink{path: path, size: size}
	f.sinks[filepath.Base(path)] = sink
	return sink, nil
}

func (f *fakeFactory) sink(name string) *fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[name]
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testState(w, h int) frame.State {
	depth := frame.NewDepthMap(w, h)
	for i := range depth.Data {
		depth.Data[i] = 1
	}
	return frame.State{
		Timestamp: time.UnixMilli(1000),
		Color:     image.NewRGBA(image.Rect(0, 0, w, h)),
		Depth:     depth,
	}
}

func newTestRecorder(t *testing.T, cfg Config, factory SinkFactory) (*Recorder, *fakeClock) {
	t.Helper()
	if cfg.SaveDir == "" {
		cfg.SaveDir = t.TempDir()
	}
	if cfg.SaveName == "" {
		cfg.SaveName = "session"
	}
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r := New("SN000123", cfg, factory)
	r.SetLogger(logging.Discard("recorder"))
	r.SetClock(clock.now)
	return r, clock
}

func TestRecorder_NoFilesBeforeFirstFrame(t *testing.T) {
	dir := t.TempDir()
	factory := newFakeFactory()
	r, _ := newTestRecorder(t, Config{SaveDir: dir, FrameRate: 10}, factory)

	// カラー画像のない呼び出しではセッションを作らない
	require.NoError(t, r.Update(frame.State{}, nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, factory.sinks)
	assert.False(t, r.Recording())
	assert.Equal(t, "", r.Dir())
}

func TestRecorder_SessionLayout(t *testing.T) {
	dir := t.TempDir()
	factory := newFakeFactory()
	r, _ := newTestRecorder(t, Config{SaveDir: dir, SaveName: "run1", FrameRate: 10, IncludeOverlays: true}, factory)

	require.NoError(t, r.Update(testState(64, 48), []overlay.Overlay{overlay.NewDot(5, 5)}))
	assert.True(t, r.Recording())
	assert.Equal(t, filepath.Join(dir, "run1"), r.Dir())

	for _, name := range []string{"cam_123_color.mp4", "cam_123_depth.mp4", "cam_123_overlay.mp4"} {
		sink := factory.sink(name)
		require.NotNil(t, sink, name)
		assert.Equal(t, filepath.Join(dir, "run1", name), sink.path)
		assert.Equal(t, image.Pt(64, 48), sink.size)
		assert.Len(t, sink.frames, 1)
	}

	m, err := ReadManifest(r.Dir())
	require.NoError(t, err)
	assert.Equal(t, "SN000123", m.DeviceID)
	assert.Equal(t, Fourcc, m.Codec)
	assert.Equal(t, 64, m.Width)
	assert.NotEmpty(t, m.SessionID)
	assert.Nil(t, m.StoppedAt)
}

func TestRecorder_NoOverlaySinkUnlessEnabled(t *testing.T) {
	factory := newFakeFactory()
	r, _ := newTestRecorder(t, Config{FrameRate: 10}, factory)

	require.NoError(t, r.Update(testState(8, 8), nil))
	assert.Nil(t, factory.sink("cam_123_overlay.mp4"))
	assert.NotNil(t, factory.sink("cam_123_color.mp4"))
}

func TestRecorder_SubImageWithWideStride(t *testing.T) {
	factory := newFakeFactory()
	r, _ := newTestRecorder(t, Config{FrameRate: 10}, factory)

	// 左半分だけを切り出した画像。Strideは幅の2倍になる
	parent := image.NewRGBA(image.Rect(0, 0, 8, 2))
	parent.SetRGBA(0, 1, color.RGBA{R: 255, A: 255})
	parent.SetRGBA(7, 0, color.RGBA{B: 255, A: 255})
	sub := parent.SubImage(image.Rect(0, 0, 4, 2)).(*image.RGBA)
	require.Equal(t, 32, sub.Stride)

	state := testState(4, 2)
	state.Color = sub
	require.NoError(t, r.Update(state, nil))

	sink := factory.sink("cam_123_color.mp4")
	require.NotNil(t, sink)
	require.Len(t, sink.frames, 1)
	got := sink.frames[0]
	assert.Equal(t, image.Pt(4, 2), got.Rect.Size())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, got.RGBAAt(0, 1))
	assert.Equal(t, color.RGBA{}, got.RGBAAt(3, 0))
}

func TestRecorder_SizeFixedToFirstFrame(t *testing.T) {
	factory := newFakeFactory()
	r, clock := newTestRecorder(t, Config{FrameRate: 10}, factory)

	require.NoError(t, r.Update(testState(32, 24), nil))
	clock.advance(200 * time.Millisecond)
	require.NoError(t, r.Update(testState(64, 48), nil))

	color := factory.sink("cam_123_color.mp4")
	require.Len(t, color.frames, 2)
	for _, img := range color.frames {
		assert.Equal(t, image.Pt(32, 24), img.Rect.Size())
	}
	assert.Len(t, factory.sink("cam_123_depth.mp4").frames, 2)
}

func TestRecorder_RateGate(t *testing.T) {
	factory := newFakeFactory()
	r, clock := newTestRecorder(t, Config{FrameRate: 30}, factory)

	require.NoError(t, r.Update(testState(8, 8), nil))
	clock.advance(10 * time.Millisecond)
	require.NoError(t, r.Update(testState(8, 8), nil))
	assert.Equal(t, 1, r.Frames())

	clock.advance(30 * time.Millisecond)
	require.NoError(t, r.Update(testState(8, 8), nil))
	assert.Equal(t, 2, r.Frames())
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	factory := newFakeFactory()
	r, clock := newTestRecorder(t, Config{FrameRate: 10}, factory)

	require.NoError(t, r.Update(testState(8, 8), nil))
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())

	color := factory.sink("cam_123_color.mp4")
	depth := factory.sink("cam_123_depth.mp4")
	assert.Equal(t, 1, color.closes)
	assert.Equal(t, 1, depth.closes)
	assert.True(t, r.Stopped())
	assert.False(t, r.Recording())

	// Stop後のフレームは無視する
	clock.advance(time.Second)
	require.NoError(t, r.Update(testState(8, 8), nil))
	assert.Len(t, color.frames, 1)

	m, err := ReadManifest(r.Dir())
	require.NoError(t, err)
	require.NotNil(t, m.StoppedAt)
	assert.Equal(t, 1, m.Frames)
}

func TestRecorder_StopBeforeStart(t *testing.T) {
	factory := newFakeFactory()
	r, _ := newTestRecorder(t, Config{FrameRate: 10}, factory)

	assert.NoError(t, r.Stop())
	assert.Empty(t, factory.sinks)
}

func TestRecorder_OpenFailureClosesCreatedSinks(t *testing.T) {
	factory := newFakeFactory()
	factory.fail = "cam_123_depth.mp4"
	r, _ := newTestRecorder(t, Config{FrameRate: 10}, factory)

	err := r.Update(testState(8, 8), nil)
	require.Error(t, err)
	assert.False(t, r.Recording())
	assert.Equal(t, 1, factory.sink("cam_123_color.mp4").closes)
}

func TestRecorder_ConvertsBGRInput(t *testing.T) {
	factory := newFakeFactory()
	r, _ := newTestRecorder(t, Config{FrameRate: 10, Order: frame.OrderBGR}, factory)

	state := testState(2, 2)
	state.Color.Pix[0], state.Color.Pix[2] = 10, 200
	require.NoError(t, r.Update(state, nil))

	got := factory.sink("cam_123_color.mp4").frames[0]
	assert.Equal(t, uint8(200), got.Pix[0])
	assert.Equal(t, uint8(10), got.Pix[2])
	// 入力のバッファは書き換えない
	assert.Equal(t, uint8(10), state.Color.Pix[0])
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("/tmp/out.mp4", image.Pt(640, 480), 15)
	assert.Contains(t, args, "640x480")
	assert.Contains(t, args, "15")
	assert.Contains(t, args, Fourcc)
	assert.Equal(t, "/tmp/out.mp4", args[len(args)-1])
}

func TestFFmpegFactory_ValidateMissingBinary(t *testing.T) {
	f := &FFmpegFactory{Binary: filepath.Join(t.TempDir(), "no-such-ffmpeg")}

	var v Validator = f
	err := v.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FFmpeg")
}

func TestFFmpegFactory_CreateMissingBinary(t *testing.T) {
	f := &FFmpegFactory{Binary: filepath.Join(t.TempDir(), "no-such-ffmpeg")}

	_, err := f.Create(filepath.Join(t.TempDir(), "out.mp4"), image.Pt(8, 4), 10)
	require.Error(t, err)
}

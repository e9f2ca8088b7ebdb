package fleet

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"depthrig/internal/calib"
	"depthrig/internal/camera"
	"depthrig/internal/config"
	"depthrig/internal/control"
	"depthrig/internal/frame"
	"depthrig/internal/logging"
	"depthrig/internal/overlay"
	"depthrig/internal/recorder"
)

type nopSink struct{}

func (nopSink) WriteFrame(*image.RGBA) error { return nil }
func (nopSink) Close() error                 { return nil }

var nopSinks = recorder.SinkFactoryFunc(func(string, image.Point, int) (recorder.Sink, error) {
	return nopSink{}, nil
})

// mockRig はモックデバイスを返すドライバーを登録したファクトリー
type mockRig struct {
	mu      sync.Mutex
	devices map[string]*camera.MockDevice
	factory *camera.DeviceFactory
}

func newMockRig() *mockRig {
	rig := &mockRig{devices: make(map[string]*camera.MockDevice), factory: camera.NewDeviceFactory()}
	rig.factory.Register("mock", func(serial string) (camera.Device, error) {
		rig.mu.Lock()
		defer rig.mu.Unlock()
		d := camera.NewMockDevice()
		rig.devices[serial] = d
		return d, nil
	})
	return rig
}

func (r *mockRig) device(serial string) *camera.MockDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices[serial]
}

func mockFrame(ms int64) camera.RawFrame {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	return camera.RawFrame{
		Left:      img,
		Depth:     frame.NewDepthMap(8, 4),
		Timestamp: time.UnixMilli(ms),
	}
}

func mockDevice(id string) config.Device {
	d := config.DefaultDevice(id)
	d.Driver = "mock"
	d.ViewerEnabled = false
	d.Acquisition.OutputSize = config.Size{Width: 8, Height: 4}
	return d
}

func buildTestFleet(t *testing.T, devices config.Devices, rig *mockRig, input control.Input) *Fleet {
	t.Helper()
	cfg := config.Default()
	cfg.Devices = devices
	for i := range cfg.Devices {
		cfg.Devices[i].Recorder.SaveDir = t.TempDir()
	}

	f, err := Build(cfg, Deps{Devices: rig.factory, Sinks: nopSinks, Input: input})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	f.SetLogger(logging.Discard("fleet"))
	for _, c := range f.Controllers() {
		c.logger = logging.Discard("fleet")
		if s, ok := c.Source().(*camera.FrameSource); ok {
			s.SetLogger(logging.Discard("camera"))
		}
	}
	return f
}

// updateUntil は条件を満たすまでUpdateを繰り返す
func updateUntil(t *testing.T, f *Fleet, cond func(Batch) bool) Batch {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		batch := f.Update(nil)
		if cond(batch) {
			return batch
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("fleet did not reach the expected state in time")
	return nil
}

func TestFleet_SharedManualStart(t *testing.T) {
	ctx := context.Background()
	rig := newMockRig()
	bus := control.NewBus(4)

	manual := mockDevice("cam-a01")
	manual.RecorderEnabled = true
	manual.Recorder.AutoStartRecording = false
	plain := mockDevice("cam-b02")

	f := buildTestFleet(t, config.Devices{manual, plain}, rig, bus)
	if !f.ManualStart() {
		t.Fatal("Expected fleet-level manual start mode")
	}

	if err := f.Launch(ctx); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	defer func() { _ = f.Shutdown() }()

	rig.device("cam-a01").Push(mockFrame(1))
	rig.device("cam-b02").Push(mockFrame(1))
	updateUntil(t, f, func(b Batch) bool { return len(b) == 2 })

	for _, c := range f.Controllers() {
		if c.Recording() {
			t.Fatalf("Expected %s not to record before the start signal", c.ID())
		}
	}

	// 1回の開始操作で全デバイスが同時に録画中になる
	bus.Send(control.CommandStartRecording)
	f.Update(nil)
	for _, c := range f.Controllers() {
		if !c.Recording() {
			t.Errorf("Expected %s to be recording after the shared start signal", c.ID())
		}
	}
	if !f.Status().Recording {
		t.Error("Expected fleet status to report recording")
	}

	bus.Send(control.CommandStopRecording)
	f.Update(nil)
	for _, c := range f.Controllers() {
		if c.Recording() {
			t.Errorf("Expected %s to stop recording after the shared stop signal", c.ID())
		}
	}
}

func TestFleet_NoViewerStaysAliveUntilShutdown(t *testing.T) {
	rig := newMockRig()
	f := buildTestFleet(t, config.Devices{mockDevice("cam-c03")}, rig, nil)

	if f.Alive() {
		t.Error("Expected fleet not alive before launch")
	}
	if err := f.Launch(context.Background()); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	device := rig.device("cam-c03")
	device.Push(mockFrame(1))
	updateUntil(t, f, func(b Batch) bool { return len(b) == 1 })

	// キャプチャが止まってもフリートの生存状態には反映しない
	device.Fail(errors.New("cable unplugged"))
	updateUntil(t, f, func(Batch) bool { return !f.Status().Devices[0].Capturing })

	for i := 0; i < 10; i++ {
		batch := f.Update(nil)
		if len(batch) != 1 {
			t.Fatalf("Expected last frame to stay in the batch, got %d entries", len(batch))
		}
	}
	if !f.Alive() {
		t.Fatal("Expected fleet to stay alive without a viewer")
	}

	if err := f.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if f.Alive() {
		t.Error("Expected fleet stopped after shutdown")
	}
	if f.Status().Liveness != LivenessStopped {
		t.Errorf("Expected stopped status, got %s", f.Status().Liveness)
	}
}

func TestFleet_LaunchRollsBack(t *testing.T) {
	rig := newMockRig()
	f := buildTestFleet(t, config.Devices{mockDevice("cam-d04"), mockDevice("cam-e05")}, rig, nil)
	rig.device("cam-e05").SetOpenError(errors.New("not connected"))

	err := f.Launch(context.Background())
	var openErr *camera.DeviceOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Expected DeviceOpenError, got %v", err)
	}
	if openErr.DeviceID != "cam-e05" {
		t.Errorf("Expected failing device cam-e05, got %s", openErr.DeviceID)
	}

	// 起動済みのデバイスは閉じる
	if got := rig.device("cam-d04").CloseCount(); got != 1 {
		t.Errorf("Expected launched device to be closed, got %d", got)
	}
	if f.Alive() {
		t.Error("Expected fleet not alive after failed launch")
	}
}

func TestFleet_ViewerQuitStopsFleet(t *testing.T) {
	a := &fakeSource{id: "a", state: readyState(1)}
	b := &fakeSource{id: "b", state: readyState(1)}
	v := &fakeViewer{alive: true}

	f, err := New([]*Controller{
		newTestController(a, Options{Viewer: v}),
		newTestController(b, Options{}),
	}, nil, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.SetLogger(logging.Discard("fleet"))

	if err := f.Launch(context.Background()); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	overlays := map[string][]overlay.Overlay{"a": {overlay.NewText("hello", 1, 1)}}
	if batch := f.Update(overlays); len(batch) != 2 || !f.Alive() {
		t.Fatalf("Expected both devices in batch and fleet alive, got %d", len(batch))
	}

	v.alive = false
	f.Update(overlays)
	if f.Alive() {
		t.Error("Expected viewer quit to stop the fleet")
	}
}

func TestFleet_ShutdownAttemptsAll(t *testing.T) {
	a := &fakeSource{id: "a", shutdownErr: errors.New("stuck")}
	b := &fakeSource{id: "b"}
	f, err := New([]*Controller{
		newTestController(a, Options{}),
		newTestController(b, Options{}),
	}, nil, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.SetLogger(logging.Discard("fleet"))

	if err := f.Shutdown(); err == nil {
		t.Error("Expected shutdown error from the first controller")
	}
	if a.shutdowns != 1 || b.shutdowns != 1 {
		t.Errorf("Expected every controller to be shut down, got %d / %d", a.shutdowns, b.shutdowns)
	}
}

func TestFleet_DuplicateIDs(t *testing.T) {
	_, err := New([]*Controller{
		newTestController(&fakeSource{id: "a"}, Options{}),
		newTestController(&fakeSource{id: "a"}, Options{}),
	}, nil, false)
	if err == nil {
		t.Error("Expected error for duplicate device ids")
	}
}

func TestFleet_StatusIsSafeForConcurrentReaders(t *testing.T) {
	f, err := New([]*Controller{newTestController(&fakeSource{id: "a", state: readyState(1)}, Options{})}, nil, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.SetLogger(logging.Discard("fleet"))
	if err := f.Launch(context.Background()); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = f.Status()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		f.Update(nil)
	}
	wg.Wait()

	status := f.Status()
	if len(status.Devices) != 1 || !status.Devices[0].Ready {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestFleet_SaveCalibration(t *testing.T) {
	f, err := New([]*Controller{newTestController(&fakeSource{id: "SN01"}, Options{})}, nil, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.SetLogger(logging.Discard("fleet"))

	dir := t.TempDir()
	if err := f.SaveCalibration(dir); err != nil {
		t.Fatalf("SaveCalibration failed: %v", err)
	}

	k, baseline, err := calib.Load(filepath.Join(dir, "calib_SN01.txt"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if k[0][0] != 1 || k[2][2] != 1 || baseline != 0.12 {
		t.Errorf("Unexpected calibration: %v %v", k, baseline)
	}

	if _, _, err := f.Calibration("missing"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Expected ErrUnknownDevice, got %v", err)
	}
}

func TestFleet_StopCommandInAutoMode(t *testing.T) {
	rig := newMockRig()
	bus := control.NewBus(4)

	var devices config.Devices
	for _, id := range []string{"cam-a01", "cam-b02"} {
		d := mockDevice(id)
		d.RecorderEnabled = true
		d.Recorder.AutoStartRecording = true
		devices = append(devices, d)
	}

	f := buildTestFleet(t, devices, rig, bus)
	if f.ManualStart() {
		t.Fatal("Expected auto start mode")
	}
	if err := f.Launch(context.Background()); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	defer func() { _ = f.Shutdown() }()

	rig.device("cam-a01").Push(mockFrame(1))
	rig.device("cam-b02").Push(mockFrame(1))
	updateUntil(t, f, func(b Batch) bool { return len(b) == 2 })

	for _, c := range f.Controllers() {
		if !c.Recording() {
			t.Fatalf("Expected %s to start recording automatically", c.ID())
		}
	}
	if !f.Status().Recording {
		t.Fatal("Expected fleet status to report recording")
	}

	bus.Send(control.CommandStopRecording)
	f.Update(nil)
	for _, c := range f.Controllers() {
		if c.Recording() {
			t.Errorf("Expected %s to stop after the stop command", c.ID())
		}
	}
	if f.Status().Recording {
		t.Error("Expected fleet status to report not recording")
	}

	// 停止後に自動開始し直さない
	f.Update(nil)
	for _, c := range f.Controllers() {
		if c.Recording() {
			t.Errorf("Expected %s to stay stopped", c.ID())
		}
	}

	// 開始操作で再開できる
	bus.Send(control.CommandStartRecording)
	f.Update(nil)
	for _, c := range f.Controllers() {
		if !c.Recording() {
			t.Errorf("Expected %s to resume after the start command", c.ID())
		}
	}
}

func TestFleet_MixedAutoAndManualDevices(t *testing.T) {
	rig := newMockRig()
	bus := control.NewBus(4)

	auto := mockDevice("cam-a01")
	auto.RecorderEnabled = true
	auto.Recorder.AutoStartRecording = true
	manual := mockDevice("cam-b02")
	manual.RecorderEnabled = true
	manual.Recorder.AutoStartRecording = false

	f := buildTestFleet(t, config.Devices{auto, manual}, rig, bus)
	if !f.ManualStart() {
		t.Fatal("Expected manual start mode when any recorder waits for a signal")
	}
	if err := f.Launch(context.Background()); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	defer func() { _ = f.Shutdown() }()

	rig.device("cam-a01").Push(mockFrame(1))
	rig.device("cam-b02").Push(mockFrame(1))
	updateUntil(t, f, func(b Batch) bool { return len(b) == 2 })

	autoCtrl, _ := f.Controller("cam-a01")
	manualCtrl, _ := f.Controller("cam-b02")
	if !autoCtrl.Recording() {
		t.Error("Expected auto start device to record without a signal")
	}
	if manualCtrl.Recording() {
		t.Error("Expected manual device to wait for the start signal")
	}

	bus.Send(control.CommandStartRecording)
	f.Update(nil)
	if !autoCtrl.Recording() || !manualCtrl.Recording() {
		t.Errorf("Expected both devices recording after start, got auto=%v manual=%v",
			autoCtrl.Recording(), manualCtrl.Recording())
	}

	bus.Send(control.CommandStopRecording)
	f.Update(nil)
	if autoCtrl.Recording() || manualCtrl.Recording() {
		t.Errorf("Expected both devices stopped, got auto=%v manual=%v",
			autoCtrl.Recording(), manualCtrl.Recording())
	}
}

func TestBuild_MissingEncoderFailsEarly(t *testing.T) {
	rig := newMockRig()
	d := mockDevice("cam-a01")
	d.RecorderEnabled = true

	cfg := config.Default()
	cfg.Devices = config.Devices{d}
	cfg.Devices[0].Recorder.SaveDir = t.TempDir()

	missing := &recorder.FFmpegFactory{Binary: filepath.Join(t.TempDir(), "no-such-ffmpeg")}
	if _, err := Build(cfg, Deps{Devices: rig.factory, Sinks: missing}); err == nil {
		t.Fatal("Expected Build to fail without an encoder")
	}

	// 録画しない構成ではエンコーダーを確認しない
	cfg.Devices[0].RecorderEnabled = false
	if _, err := Build(cfg, Deps{Devices: rig.factory, Sinks: missing}); err != nil {
		t.Fatalf("Expected Build to succeed without recording, got %v", err)
	}
}

package camera

import (
	"errors"
	"io"
	"sync"
)

// MockDevice はテスト用のデバイス実装
// Push したフレームがGrab/Retrieveで順に返る
type MockDevice struct {
	mu sync.Mutex

	frames  chan RawFrame
	failCh  chan error
	closeCh chan struct{}
	current RawFrame

	calibration Calibration

	// テスト制御用
	openErr     error
	ignoreClose bool

	opened     bool
	openCount  int
	closeCount int
	closeOnce  sync.Once
}

// NewMockDevice は新しいMockDeviceを作成する
func NewMockDevice() *MockDevice {
	return &MockDevice{
		frames:  make(chan RawFrame, 16),
		failCh:  make(chan error, 1),
		closeCh: make(chan struct{}),
		calibration: Calibration{
			Intrinsics: Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240, Distortion: []float64{0.1, -0.05, 0, 0, 0}},
			Baseline:   0.12,
		},
	}
}

// Open はモックデバイスを開く
func (m *MockDevice) Open(_ AcquisitionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openCount++
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

// Grab はPushされたフレームかFailを待つ
func (m *MockDevice) Grab() error {
	m.mu.Lock()
	ignoreClose := m.ignoreClose
	m.mu.Unlock()

	closeCh := m.closeCh
	if ignoreClose {
		closeCh = nil
	}

	select {
	case f := <-m.frames:
		m.mu.Lock()
		m.current = f
		m.mu.Unlock()
		return nil
	case err := <-m.failCh:
		return err
	case <-closeCh:
		return io.EOF
	}
}

// Retrieve は直前にGrabしたフレームを返す
func (m *MockDevice) Retrieve() (RawFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

// Calibration は設定されたキャリブレーションを返す
func (m *MockDevice) Calibration() (Calibration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return Calibration{}, errors.New("モック: 未オープン")
	}
	return m.calibration, nil
}

// Close はGrabの待ちを解放する
func (m *MockDevice) Close() error {
	m.mu.Lock()
	m.closeCount++
	m.opened = false
	m.mu.Unlock()

	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

// Push はGrabで返すフレームを積む
func (m *MockDevice) Push(f RawFrame) {
	m.frames <- f
}

// Fail は次のGrabをエラーにする
func (m *MockDevice) Fail(err error) {
	m.failCh <- err
}

// SetOpenError はOpenが返すエラーを設定する
func (m *MockDevice) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetIgnoreClose はCloseしてもGrabが戻らないようにする
func (m *MockDevice) SetIgnoreClose(ignore bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignoreClose = ignore
}

// SetCalibration はCalibrationが返す値を設定する
func (m *MockDevice) SetCalibration(c Calibration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calibration = c
}

// OpenCount はOpenが呼ばれた回数を返す
func (m *MockDevice) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCount
}

// CloseCount はCloseが呼ばれた回数を返す
func (m *MockDevice) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

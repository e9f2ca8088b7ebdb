package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"depthrig/internal/frame"
	"depthrig/internal/logging"
)

// DefaultJoinTimeout はShutdown時にキャプチャループの終了を待つ上限
const DefaultJoinTimeout = 2000 * time.Millisecond

// FrameSource は1台のデバイスを所有し、専用ゴルーチンで最新フレームを更新し続ける
type FrameSource struct {
	id         string
	params     AcquisitionParams
	device     Device
	normalizer frame.Normalizer
	logger     logging.Logger

	// 最新フレーム。代入とポインタの読み出しの間だけロックする
	stateMu sync.Mutex
	state   frame.State

	// ライフサイクル
	mu          sync.Mutex
	status      Status
	terminated  bool
	calibration *Calibration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     atomic.Bool
	joinTimeout time.Duration
}

// NewFrameSource は新しいFrameSourceを作成する
// id が空の場合は ConfigurationError を返す
func NewFrameSource(id string, params AcquisitionParams, device Device) (*FrameSource, error) {
	if id == "" {
		return nil, &ConfigurationError{Field: "id", Reason: "カメラのシリアル番号がありません"}
	}
	if device == nil {
		return nil, &ConfigurationError{Field: "device", Reason: "デバイスが指定されていません"}
	}
	if params.ChannelOrder == "" {
		params.ChannelOrder = frame.OrderRGB
	}

	return &FrameSource{
		id:     id,
		params: params,
		device: device,
		normalizer: frame.Normalizer{
			Width:  params.Width,
			Height: params.Height,
			Order:  params.ChannelOrder,
		},
		logger:      logging.NewLogger("camera"),
		status:      StatusClosed,
		joinTimeout: DefaultJoinTimeout,
	}, nil
}

// ID はデバイスの識別子を返す
func (s *FrameSource) ID() string {
	return s.id
}

// SetLogger はロガーを差し替える
func (s *FrameSource) SetLogger(logger logging.Logger) {
	s.logger = logger
}

// SetJoinTimeout はShutdown時の待ち時間を変更する（テスト用）
func (s *FrameSource) SetJoinTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinTimeout = d
}

// Launch はデバイスを開き、キャプチャループを開始する
// 失敗した場合は DeviceOpenError を返し、状態は closed のまま
func (s *FrameSource) Launch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return ErrTerminated
	}
	if s.status != StatusClosed {
		return fmt.Errorf("カメラ %s は既に起動されています", s.id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.device.Open(s.params); err != nil {
		return &DeviceOpenError{DeviceID: s.id, Err: err}
	}
	s.status = StatusOpen

	// キャリブレーションは起動時に一度だけ問い合わせる
	cal, err := s.device.Calibration()
	if err != nil {
		_ = s.device.Close()
		s.status = StatusClosed
		return &DeviceOpenError{DeviceID: s.id, Err: fmt.Errorf("キャリブレーション情報の取得に失敗: %w", err)}
	}
	s.calibration = &cal

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running.Store(true)
	go s.captureLoop(s.stopCh, s.doneCh)

	s.status = StatusCapturing
	s.logger.Infof("[Camera %s] 起動しました", Suffix(s.id))
	return nil
}

// captureLoop はGrabを繰り返し、成功するたびに最新フレームを置き換える
func (s *FrameSource) captureLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer s.running.Store(false)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if err := s.device.Grab(); err != nil {
			select {
			case <-stopCh:
			default:
				s.logger.Warnf("[Camera %s] フレーム取得に失敗したためキャプチャを終了します: %v", Suffix(s.id), err)
			}
			return
		}

		raw, err := s.device.Retrieve()
		if err != nil {
			s.logger.Warnf("[Camera %s] フレームの取り出しに失敗したためキャプチャを終了します: %v", Suffix(s.id), err)
			return
		}

		s.publish(frame.State{
			Timestamp: raw.Timestamp,
			Color:     s.normalizer.Image(raw.Left, raw.Order),
			Secondary: s.normalizer.Image(raw.Right, raw.Order),
			Depth:     s.normalizer.Depth(raw.Depth),
		})
	}
}

// publish は新しいフレームで状態を丸ごと置き換える
// 公開後のバッファは変更しない。古いタイムスタンプで新しいフレームを上書きしない
func (s *FrameSource) publish(next frame.State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !next.Timestamp.IsZero() && next.Timestamp.Before(s.state.Timestamp) {
		return
	}
	s.state = next
}

// CurrentState は最新フレームのディープコピーを返す
// 最初のキャプチャ前はすべて未取得の状態を返す
func (s *FrameSource) CurrentState() frame.State {
	s.stateMu.Lock()
	snapshot := s.state
	s.stateMu.Unlock()

	return snapshot.Clone()
}

// Status は現在の状態を返す
func (s *FrameSource) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Running はキャプチャループが動作中かを返す
// ループの停止はコントローラーへ自動通知されないため、呼び出し側が明示的に確認する
func (s *FrameSource) Running() bool {
	return s.running.Load()
}

// Intrinsics は起動時に取得した内部パラメータを返す
func (s *FrameSource) Intrinsics() (Intrinsics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calibration == nil {
		return Intrinsics{}, ErrNotLaunched
	}
	return s.calibration.Intrinsics, nil
}

// Baseline は起動時に取得したベースラインを返す
func (s *FrameSource) Baseline() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calibration == nil {
		return 0, ErrNotLaunched
	}
	return s.calibration.Baseline, nil
}

// Shutdown はキャプチャループに停止を指示し、一定時間待ってからデバイスを閉じる
// 何度呼んでもよく、起動前に呼んでも安全。待っている間はロックを持たない
func (s *FrameSource) Shutdown() error {
	s.mu.Lock()
	if s.terminated || s.status == StatusClosed {
		s.terminated = true
		s.mu.Unlock()
		return nil
	}
	s.terminated = true
	stopCh, doneCh, timeout := s.stopCh, s.doneCh, s.joinTimeout
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(timeout):
		// Grabがブロックしたまま戻らない。ゴルーチンは放置してデバイスを閉じる
		s.logger.Warnf("[Camera %s] キャプチャループの停止が %v 以内に完了しませんでした", Suffix(s.id), timeout)
	}

	err := s.device.Close()

	s.mu.Lock()
	s.status = StatusClosed
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("カメラ %s のクローズに失敗: %w", s.id, err)
	}

	s.logger.Infof("[Camera %s] 停止しました", Suffix(s.id))
	return nil
}

// Suffix はログやファイル名に使うシリアル番号の末尾3文字を返す
func Suffix(id string) string {
	if len(id) <= 3 {
		return id
	}
	return id[len(id)-3:]
}

package camera

import (
	"image"
	"time"

	"depthrig/internal/calib"
	"depthrig/internal/frame"
)

// Status はFrameSourceの状態を表す
type Status string

const (
	StatusClosed    Status = "closed"    // 未オープンまたは終了済み
	StatusOpen      Status = "open"      // デバイスはオープン済み
	StatusCapturing Status = "capturing" // キャプチャループ動作中
)

// AcquisitionParams はデバイスの取得設定
type AcquisitionParams struct {
	FrameRate     int                // フレームレート
	Width         int                // 出力幅
	Height        int                // 出力高さ
	AutoExposure  bool               // 自動露出
	ExposureLevel int                // 手動露出レベル (1..100)
	ChannelOrder  frame.ChannelOrder // 出力画像のチャンネル順序
}

// RawFrame はデバイスから取り出した1フレーム分の生データ
type RawFrame struct {
	Left      image.Image        // 左目（プライマリ）
	Right     image.Image        // 右目（セカンダリ）
	Depth     *frame.DepthMap    // デプス（メートル）
	Timestamp time.Time          // デバイスの撮像時刻
	Order     frame.ChannelOrder // 画像バッファのチャンネル順序
}

// Intrinsics は左目カメラの内部パラメータ
type Intrinsics struct {
	Fx, Fy     float64
	Cx, Cy     float64
	Distortion []float64
}

// Matrix は3x3の内部パラメータ行列を返す
func (i Intrinsics) Matrix() calib.Matrix {
	return calib.NewMatrix(i.Fx, i.Fy, i.Cx, i.Cy)
}

// Calibration はデバイスから問い合わせるキャリブレーション情報
type Calibration struct {
	Intrinsics Intrinsics
	Baseline   float64 // ステレオの水平オフセット（メートル）
}

// Device はベンダーSDKのカメラを包むインターフェース
type Device interface {
	// Open は取得設定でデバイスを開く
	Open(params AcquisitionParams) error

	// Grab は次のフレームが揃うまでブロックする
	Grab() error

	// Retrieve は直前にGrabしたフレームを取り出す
	Retrieve() (RawFrame, error)

	// Calibration はキャリブレーション情報を返す
	Calibration() (Calibration, error)

	// Close はデバイスを閉じる。Grabでブロック中の呼び出しを解放できるとは限らない
	Close() error
}

package camera

import (
	"errors"
	"fmt"
)

// ErrNotLaunched はLaunch前に問い合わせた場合のエラー
var ErrNotLaunched = errors.New("カメラが起動されていません")

// ErrTerminated は終了済みのFrameSourceを再起動しようとした場合のエラー
var ErrTerminated = errors.New("終了済みのカメラは再起動できません")

// ConfigurationError は構築時の設定不備
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("設定が無効です (%s): %s", e.Field, e.Reason)
}

// DeviceOpenError はデバイスを開けなかったことを表す
type DeviceOpenError struct {
	DeviceID string
	Err      error
}

func (e *DeviceOpenError) Error() string {
	return fmt.Sprintf("カメラ %s を開けません。接続を確認してください: %v", e.DeviceID, e.Err)
}

func (e *DeviceOpenError) Unwrap() error {
	return e.Err
}

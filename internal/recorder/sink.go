package recorder

import (
	"context"
	"image"
)

// Sink は1本の動画出力先
type Sink interface {
	// WriteFrame は1フレームを書き込む。画像サイズはセッションのサイズと一致している
	WriteFrame(img *image.RGBA) error

	// Close はバッファを書き出して閉じる
	Close() error
}

// SinkFactory はセッション開始時にSinkを作成する
type SinkFactory interface {
	Create(path string, size image.Point, fps int) (Sink, error)
}

// Validator は起動時に出力先が使えるかを確認できるSinkFactory
type Validator interface {
	Validate(ctx context.Context) error
}

// SinkFactoryFunc は関数をSinkFactoryとして扱う
type SinkFactoryFunc func(path string, size image.Point, fps int) (Sink, error)

// Create はfを呼び出す
func (f SinkFactoryFunc) Create(path string, size image.Point, fps int) (Sink, error) {
	return f(path, size, fps)
}

package frame

import (
	"image"
	"time"
)

// State は1台のデバイスの最新フレームを表す
// 各フィールドはnil（タイムスタンプはゼロ値）で「未取得」を表す
type State struct {
	Timestamp time.Time   // デバイスのタイムスタンプ（ミリ秒精度）
	Color     *image.RGBA // 左目カラー画像
	Secondary *image.RGBA // 右目画像
	Depth     *DepthMap   // デプス（メートル）
}

// Ready はカラーとデプスの両方が揃っているかを返す
func (s State) Ready() bool {
	return s.Color != nil && s.Depth != nil
}

// Empty は何も取得されていないかを返す
func (s State) Empty() bool {
	return s.Timestamp.IsZero() && s.Color == nil && s.Secondary == nil && s.Depth == nil
}

// Clone はバッファを含めたディープコピーを返す
func (s State) Clone() State {
	return State{
		Timestamp: s.Timestamp,
		Color:     cloneRGBA(s.Color),
		Secondary: cloneRGBA(s.Secondary),
		Depth:     s.Depth.Clone(),
	}
}

// Merge は next の取得済みフィールドだけを上書きした結果を返す
// next で未取得のフィールドは以前の値を保持する
func (s State) Merge(next State) State {
	merged := s
	if !next.Timestamp.IsZero() {
		merged.Timestamp = next.Timestamp
	}
	if next.Color != nil {
		merged.Color = next.Color
	}
	if next.Secondary != nil {
		merged.Secondary = next.Secondary
	}
	if next.Depth != nil {
		merged.Depth = next.Depth
	}
	return merged
}

// TimestampMillis はタイムスタンプをミリ秒で返す。未取得なら ok=false
func (s State) TimestampMillis() (int64, bool) {
	if s.Timestamp.IsZero() {
		return 0, false
	}
	return s.Timestamp.UnixMilli(), true
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	if src == nil {
		return nil
	}
	dst := &image.RGBA{
		Pix:    make([]uint8, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}

package frame

import "math"

// DepthMap は1チャンネルのfloat32デプスバッファ（行優先）
type DepthMap struct {
	Width  int
	Height int
	Data   []float32
}

// NewDepthMap はゼロ埋めのデプスマップを作成する
func NewDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
}

// At は (x, y) のデプスを返す。範囲外はNaN
func (d *DepthMap) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return float32(math.NaN())
	}
	return d.Data[y*d.Width+x]
}

// Set は (x, y) にデプスを書き込む
func (d *DepthMap) Set(x, y int, v float32) {
	if x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return
	}
	d.Data[y*d.Width+x] = v
}

// Clone はディープコピーを返す。nilならnil
func (d *DepthMap) Clone() *DepthMap {
	if d == nil {
		return nil
	}
	dst := &DepthMap{Width: d.Width, Height: d.Height, Data: make([]float32, len(d.Data))}
	copy(dst.Data, d.Data)
	return dst
}

// Resize は最近傍法で指定サイズに変換したコピーを返す
func (d *DepthMap) Resize(width, height int) *DepthMap {
	if d == nil {
		return nil
	}
	if width <= 0 || height <= 0 || (width == d.Width && height == d.Height) {
		return d.Clone()
	}

	dst := NewDepthMap(width, height)
	for y := 0; y < height; y++ {
		srcY := y * d.Height / height
		for x := 0; x < width; x++ {
			srcX := x * d.Width / width
			dst.Data[y*width+x] = d.Data[srcY*d.Width+srcX]
		}
	}
	return dst
}

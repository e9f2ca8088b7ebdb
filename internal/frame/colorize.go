package frame

import (
	"image"
	"image/color"
	"math"
)

// デプス可視化のデフォルト範囲（メートル）
const (
	DefaultMinDepth = 0.01
	DefaultMaxDepth = 3.0
)

// Colorize はデプスマップを[minDepth, maxDepth]でクリップして8bitに正規化し、
// JETカラーマップを適用した画像を返す。非有限値は0として扱う
func Colorize(depth *DepthMap, minDepth, maxDepth float64) *image.RGBA {
	if depth == nil {
		return nil
	}
	if maxDepth <= minDepth {
		maxDepth = minDepth + 1
	}

	img := image.NewRGBA(image.Rect(0, 0, depth.Width, depth.Height))
	span := maxDepth - minDepth
	for y := 0; y < depth.Height; y++ {
		for x := 0; x < depth.Width; x++ {
			v := float64(depth.Data[y*depth.Width+x])
			var level uint8
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				v = math.Min(math.Max(v, minDepth), maxDepth)
				level = uint8(math.Round((v - minDepth) / span * 255))
			}
			img.SetRGBA(x, y, jet(level))
		}
	}
	return img
}

// ColorizeDefault はデフォルト範囲でColorizeする
func ColorizeDefault(depth *DepthMap) *image.RGBA {
	return Colorize(depth, DefaultMinDepth, DefaultMaxDepth)
}

// jet は0..255をJETカラーマップの色に変換する
func jet(level uint8) color.RGBA {
	v := float64(level) / 255
	channel := func(center float64) uint8 {
		c := 1.5 - math.Abs(4*v-center)
		c = math.Min(math.Max(c, 0), 1)
		return uint8(math.Round(c * 255))
	}
	return color.RGBA{R: channel(3), G: channel(2), B: channel(1), A: 0xff}
}

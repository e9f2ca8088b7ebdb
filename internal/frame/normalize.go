package frame

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

// ChannelOrder は画素バッファのチャンネル順序
type ChannelOrder string

const (
	OrderRGB ChannelOrder = "rgb"
	OrderBGR ChannelOrder = "bgr"
)

// ParseChannelOrder は設定値を変換する。空文字はRGB
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch ChannelOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderRGB:
		return OrderRGB, nil
	case OrderBGR:
		return OrderBGR, nil
	default:
		return "", fmt.Errorf("不明なチャンネル順序: %q", s)
	}
}

// Normalizer はデバイスから取得した画像を出力サイズとチャンネル順序に揃える
type Normalizer struct {
	Width  int          // 出力幅（0ならそのまま）
	Height int          // 出力高さ（0ならそのまま）
	Order  ChannelOrder // 出力のチャンネル順序
	Scaler draw.Scaler  // nilならApproxBiLinear
}

// Image は src を出力形式のRGBAに変換する
// srcOrder はデバイスが返したバッファのチャンネル順序
func (n Normalizer) Image(src image.Image, srcOrder ChannelOrder) *image.RGBA {
	if src == nil {
		return nil
	}

	bounds := src.Bounds()
	rect := image.Rect(0, 0, bounds.Dx(), bounds.Dy())
	if n.Width > 0 && n.Height > 0 {
		rect = image.Rect(0, 0, n.Width, n.Height)
	}

	dst := image.NewRGBA(rect)
	if rect.Dx() == bounds.Dx() && rect.Dy() == bounds.Dy() {
		draw.Draw(dst, rect, src, bounds.Min, draw.Src)
	} else {
		scaler := n.Scaler
		if scaler == nil {
			scaler = draw.ApproxBiLinear
		}
		scaler.Scale(dst, rect, src, bounds, draw.Src, nil)
	}

	order := n.Order
	if order == "" {
		order = OrderRGB
	}
	if srcOrder == "" {
		srcOrder = OrderRGB
	}
	if order != srcOrder {
		SwapRB(dst)
	}
	return dst
}

// Depth はデプスマップを出力サイズに揃える
func (n Normalizer) Depth(src *DepthMap) *DepthMap {
	return src.Resize(n.Width, n.Height)
}

// SwapRB はRとBのチャンネルをその場で入れ替える
func SwapRB(img *image.RGBA) {
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		row := img.Pix[img.PixOffset(img.Rect.Min.X, y):img.PixOffset(img.Rect.Max.X, y)]
		for i := 0; i+2 < len(row); i += 4 {
			row[i], row[i+2] = row[i+2], row[i]
		}
	}
}

package overlay

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// basicfont.Face7x13 を基準サイズとし、FontScale倍に拡大して描く
var textFace = basicfont.Face7x13

// MeasureText は FontScale=scale で描いたときの幅と高さを返す
func MeasureText(content string, scale float64) image.Point {
	if scale <= 0 {
		scale = DefaultFontScale
	}
	width := font.MeasureString(textFace, content).Ceil()
	height := textFace.Metrics().Height.Ceil()
	return image.Pt(int(math.Ceil(float64(width)*scale)), int(math.Ceil(float64(height)*scale)))
}

func (t Text) draw(dst *image.RGBA) {
	if t.Content == "" {
		return
	}
	scale := t.FontScale
	if scale <= 0 {
		scale = DefaultFontScale
	}
	thickness := t.Thickness
	if thickness <= 0 {
		thickness = 1
	}

	// 基準サイズのマスクに文字を描く
	metrics := textFace.Metrics()
	ascent := metrics.Ascent.Ceil()
	width := font.MeasureString(textFace, t.Content).Ceil() + thickness
	height := metrics.Height.Ceil() + thickness
	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	drawer := &font.Drawer{Dst: mask, Src: image.Opaque, Face: textFace}
	// thickness分だけずらして重ね描きし、太さを出す
	for off := 0; off < thickness; off++ {
		drawer.Dot = fixed.P(off, ascent)
		drawer.DrawString(t.Content)
	}

	// 拡大してベースライン位置に合成する
	sw := int(math.Ceil(float64(width) * scale))
	sh := int(math.Ceil(float64(height) * scale))
	top := t.Position.Y - int(math.Ceil(float64(ascent)*scale))
	target := image.Rect(t.Position.X, top, t.Position.X+sw, top+sh)

	scaled := image.NewAlpha(image.Rect(0, 0, sw, sh))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), mask, mask.Bounds(), draw.Src, nil)
	draw.DrawMask(dst, target, image.NewUniform(t.Color), image.Point{}, scaled, image.Point{}, draw.Over)
}

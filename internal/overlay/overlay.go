// Package overlay フレームに合成する注釈（ドット・テキスト・ボックス）を扱う
package overlay

import (
	"image"
	"image/color"
)

// Kind はオーバーレイの種類
type Kind string

const (
	KindDot  Kind = "dot"
	KindText Kind = "text"
	KindBox  Kind = "box"
)

// デフォルト値
var (
	DefaultDotColor  = color.RGBA{G: 255, A: 255} // 緑
	DefaultTextColor = color.RGBA{R: 255, A: 255} // 赤
	DefaultTextPos   = image.Pt(50, 50)
)

const (
	DefaultRadius    = 6
	DefaultFontScale = 1.0
	DefaultThickness = 3
)

// Overlay は描画可能な注釈。Dot / Text / Box のいずれか
type Overlay interface {
	Kind() Kind
	draw(dst *image.RGBA)
}

// Dot は塗りつぶし円
type Dot struct {
	Position *image.Point // nilなら描画しない
	Radius   int
	Color    color.RGBA
}

// Text は文字列
type Text struct {
	Content   string
	Position  image.Point // ベースラインの左端
	Color     color.RGBA
	FontScale float64
	Thickness int
}

// Box は予約済み。描画は行わない
type Box struct{}

func (Dot) Kind() Kind  { return KindDot }
func (Text) Kind() Kind { return KindText }
func (Box) Kind() Kind  { return KindBox }

func (Box) draw(*image.RGBA) {}

// NewDot はデフォルト値を埋めたDotを作成する
func NewDot(x, y int) Dot {
	p := image.Pt(x, y)
	return Dot{Position: &p, Radius: DefaultRadius, Color: DefaultDotColor}
}

// NewText はデフォルト値を埋めたTextを作成する
func NewText(content string, x, y int) Text {
	return Text{
		Content:   content,
		Position:  image.Pt(x, y),
		Color:     DefaultTextColor,
		FontScale: DefaultFontScale,
		Thickness: DefaultThickness,
	}
}

// Draw は img のコピーにオーバーレイを順に描画して返す
// overlays が空なら元画像のコピーを返す
func Draw(img *image.RGBA, overlays []Overlay) *image.RGBA {
	if img == nil {
		return nil
	}
	dst := &image.RGBA{Pix: make([]uint8, len(img.Pix)), Stride: img.Stride, Rect: img.Rect}
	copy(dst.Pix, img.Pix)

	for _, o := range overlays {
		if o == nil {
			continue
		}
		o.draw(dst)
	}
	return dst
}

func (d Dot) draw(dst *image.RGBA) {
	if d.Position == nil {
		return
	}
	r := d.Radius
	if r <= 0 {
		r = DefaultRadius
	}
	cx, cy := d.Position.X, d.Position.Y
	bounds := dst.Bounds()
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy > r*r {
				continue
			}
			if image.Pt(x, y).In(bounds) {
				dst.SetRGBA(x, y, d.Color)
			}
		}
	}
}

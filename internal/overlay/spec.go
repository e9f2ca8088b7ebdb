package overlay

import (
	"image"
	"image/color"
	"strings"
)

// Spec は設定ファイルやAPIから受け取るオーバーレイ定義
type Spec struct {
	Kind      string  `yaml:"kind" json:"kind"`
	Position  []int   `yaml:"position" json:"position"` // [x, y] または null
	Radius    int     `yaml:"radius" json:"radius"`
	Color     []uint8 `yaml:"color" json:"color"` // [r, g, b]
	Text      string  `yaml:"text" json:"text"`
	FontScale float64 `yaml:"font_scale" json:"font_scale"`
	Thickness int     `yaml:"thickness" json:"thickness"`
}

// FromSpec は定義をOverlayに変換する
// 不明な種類は ok=false を返し、呼び出し側は無視する
func FromSpec(s Spec) (Overlay, bool) {
	switch Kind(strings.ToLower(s.Kind)) {
	case KindDot:
		d := Dot{Radius: DefaultRadius, Color: DefaultDotColor}
		if p, ok := point(s.Position); ok {
			d.Position = &p
		}
		if s.Radius > 0 {
			d.Radius = s.Radius
		}
		if c, ok := rgb(s.Color); ok {
			d.Color = c
		}
		return d, true

	case KindText:
		t := NewText(s.Text, DefaultTextPos.X, DefaultTextPos.Y)
		if p, ok := point(s.Position); ok {
			t.Position = p
		}
		if c, ok := rgb(s.Color); ok {
			t.Color = c
		}
		if s.FontScale > 0 {
			t.FontScale = s.FontScale
		}
		if s.Thickness > 0 {
			t.Thickness = s.Thickness
		}
		return t, true

	case KindBox:
		return Box{}, true

	default:
		return nil, false
	}
}

// FromSpecs は定義の一覧を変換する。不明な種類は取り除かれる
func FromSpecs(specs []Spec) []Overlay {
	overlays := make([]Overlay, 0, len(specs))
	for _, s := range specs {
		if o, ok := FromSpec(s); ok {
			overlays = append(overlays, o)
		}
	}
	return overlays
}

func point(v []int) (image.Point, bool) {
	if len(v) < 2 {
		return image.Point{}, false
	}
	return image.Pt(v[0], v[1]), true
}

func rgb(v []uint8) (color.RGBA, bool) {
	if len(v) < 3 {
		return color.RGBA{}, false
	}
	return color.RGBA{R: v[0], G: v[1], B: v[2], A: 255}, true
}

package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blank(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestDrawDotDoesNotTouchSource(t *testing.T) {
	src := blank(40, 40)
	out := Draw(src, []Overlay{NewDot(20, 20)})

	require.NotSame(t, src, out)
	assert.Equal(t, DefaultDotColor, out.RGBAAt(20, 20))
	assert.Equal(t, DefaultDotColor, out.RGBAAt(20+DefaultRadius, 20))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(20+DefaultRadius+1, 20))
	assert.Equal(t, color.RGBA{}, src.RGBAAt(20, 20))
}

func TestDotWithoutPositionIsSkipped(t *testing.T) {
	src := blank(10, 10)
	out := Draw(src, []Overlay{Dot{Radius: 3, Color: DefaultDotColor}})
	assert.Equal(t, src.Pix, out.Pix)
}

func TestDotClippedAtEdge(t *testing.T) {
	out := Draw(blank(10, 10), []Overlay{NewDot(0, 0)})
	assert.Equal(t, DefaultDotColor, out.RGBAAt(0, 0))
}

func TestBoxIsNoop(t *testing.T) {
	src := blank(10, 10)
	out := Draw(src, []Overlay{Box{}, nil})
	assert.Equal(t, src.Pix, out.Pix)
}

func TestTextDrawsSomething(t *testing.T) {
	src := blank(200, 100)
	out := Draw(src, []Overlay{NewText("hello", 10, 40)})

	painted := 0
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			if out.RGBAAt(x, y) == DefaultTextColor {
				painted++
			}
		}
	}
	assert.Greater(t, painted, 0)
}

func TestMeasureTextScales(t *testing.T) {
	one := MeasureText("abc", 1)
	two := MeasureText("abc", 2)
	assert.Equal(t, 21, one.X)
	assert.Equal(t, one.X*2, two.X)
}

func TestFromSpec(t *testing.T) {
	o, ok := FromSpec(Spec{Kind: "dot", Position: []int{3, 4}})
	require.True(t, ok)
	dot := o.(Dot)
	require.NotNil(t, dot.Position)
	assert.Equal(t, image.Pt(3, 4), *dot.Position)
	assert.Equal(t, DefaultRadius, dot.Radius)
	assert.Equal(t, DefaultDotColor, dot.Color)

	o, ok = FromSpec(Spec{Kind: "dot"})
	require.True(t, ok)
	assert.Nil(t, o.(Dot).Position)

	o, ok = FromSpec(Spec{Kind: "TEXT", Text: "hi", Color: []uint8{1, 2, 3}})
	require.True(t, ok)
	text := o.(Text)
	assert.Equal(t, DefaultTextPos, text.Position)
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, text.Color)
	assert.Equal(t, DefaultThickness, text.Thickness)

	o, ok = FromSpec(Spec{Kind: "box"})
	require.True(t, ok)
	assert.Equal(t, KindBox, o.Kind())

	_, ok = FromSpec(Spec{Kind: "arrow"})
	assert.False(t, ok)

	all := FromSpecs([]Spec{{Kind: "dot"}, {Kind: "arrow"}, {Kind: "box"}})
	assert.Len(t, all, 2)
}

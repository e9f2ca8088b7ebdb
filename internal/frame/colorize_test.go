package frame

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorizeClipsAndHandlesNonFinite(t *testing.T) {
	d := NewDepthMap(5, 1)
	d.Data = []float32{
		float32(math.NaN()),
		float32(math.Inf(1)),
		0,   // 下限以下 -> 0
		3.0, // 上限 -> 255
		10,  // 上限超え -> 255
	}

	img := Colorize(d, DefaultMinDepth, DefaultMaxDepth)
	require.NotNil(t, img)
	assert.Equal(t, 5, img.Bounds().Dx())

	zero := jet(0)
	full := jet(255)
	assert.Equal(t, zero, img.RGBAAt(0, 0), "NaN should map to level 0")
	assert.Equal(t, zero, img.RGBAAt(1, 0), "Inf should map to level 0")
	assert.Equal(t, zero, img.RGBAAt(2, 0))
	assert.Equal(t, full, img.RGBAAt(3, 0))
	assert.Equal(t, full, img.RGBAAt(4, 0))
}

func TestJetEndpoints(t *testing.T) {
	low := jet(0)
	assert.Equal(t, uint8(0), low.R)
	assert.Equal(t, uint8(0), low.G)
	assert.Equal(t, uint8(128), low.B)

	high := jet(255)
	assert.Equal(t, uint8(128), high.R)
	assert.Equal(t, uint8(0), high.G)
	assert.Equal(t, uint8(0), high.B)
}

func TestColorizeNil(t *testing.T) {
	assert.Nil(t, ColorizeDefault(nil))
}

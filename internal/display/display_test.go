package display

import (
	"bytes"
	"image/gif"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeExample(t *testing.T) {
	values := make([]int, Pixels)
	values[5] = 0xFF8000

	g, err := Decode(values)
	require.NoError(t, err)
	assert.Equal(t, Color{R: 255, G: 128, B: 0}, g.At(5, 0))
	assert.Equal(t, "#ff8000", g.At(5, 0).Hex())
	assert.Equal(t, Color{}, g.At(4, 0))
}

func TestDecodeBitFields(t *testing.T) {
	values := make([]int, Pixels)
	for i := range values {
		values[i] = (i*7919 + 13) & 0xFFFFFF
	}

	g, err := Decode(values)
	require.NoError(t, err)
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			v := values[y*Width+x]
			c := g.At(x, y)
			require.Equal(t, uint8((v>>16)&0xFF), c.R)
			require.Equal(t, uint8((v>>8)&0xFF), c.G)
			require.Equal(t, uint8(v&0xFF), c.B)
			require.Equal(t, v, c.Packed())
		}
	}
}

func TestDecodeRowMajor(t *testing.T) {
	values := make([]int, Pixels)
	values[Width+3] = 0x0000FF
	g, err := Decode(values)
	require.NoError(t, err)
	assert.Equal(t, Color{B: 255}, g.At(3, 1))
}

func TestDecodeShortAndLong(t *testing.T) {
	g, err := Decode([]int{0x010203})
	require.NoError(t, err)
	assert.Equal(t, Color{1, 2, 3}, g.At(0, 0))
	assert.Equal(t, Color{}, g.At(31, 7))

	_, err = Decode(make([]int, Pixels+1))
	assert.Error(t, err)
}

func TestGIFEncoder(t *testing.T) {
	var a, b Grid
	a[0][0] = Color{R: 255}
	b[7][31] = Color{G: 255}

	data, err := GIFEncoder{Scale: 2}.Encode([]Grid{a, b}, 200*time.Millisecond)
	require.NoError(t, err)

	anim, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, anim.Image, 2)
	assert.Equal(t, []int{20, 20}, anim.Delay)
	assert.Equal(t, 64, anim.Image[0].Bounds().Dx())
	assert.Equal(t, 16, anim.Image[0].Bounds().Dy())

	data, err = GIFEncoder{}.Encode([]Grid{a}, time.Millisecond)
	require.NoError(t, err)
	anim, err = gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []int{5}, anim.Delay)
	assert.Equal(t, 320, anim.Image[0].Bounds().Dx())

	_, err = GIFEncoder{}.Encode(nil, time.Second)
	assert.Error(t, err)
}

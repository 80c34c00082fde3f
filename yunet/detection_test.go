package yunet

import (
	"image"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRows(t *testing.T) {
	faces, err := DecodeRows(sampleTable())
	require.NoError(t, err)
	require.Len(t, faces, 1)

	face := faces[0]
	assert.Equal(t, image.Rect(10, 20, 60, 80), face.Box)
	assert.Equal(t, 10, face.X())
	assert.Equal(t, 20, face.Y())
	assert.Equal(t, 50, face.W())
	assert.Equal(t, 60, face.H())
	assert.InDelta(t, 0.87, face.Confidence, 1e-6)
	assert.Equal(t, image.Pt(20, 35), face.Landmark(RightEye))
	assert.Equal(t, image.Pt(45, 35), face.Landmark(LeftEye))
	assert.Equal(t, image.Pt(33, 50), face.Landmark(NoseTip))
	assert.Equal(t, image.Pt(22, 65), face.Landmark(RightMouthCorner))
	assert.Equal(t, image.Pt(44, 65), face.Landmark(LeftMouthCorner))
}

func TestFaceReport(t *testing.T) {
	faces, err := DecodeRows(sampleTable())
	require.NoError(t, err)
	assert.Equal(t, "0: x1=10, y1=20, w=50, h=60, conf=0.8700", faces[0].Report(0))
	assert.Equal(t, "3: x1=10, y1=20, w=50, h=60, conf=0.8700", faces[0].Report(3))
}

func TestDecodeRowsEmpty(t *testing.T) {
	faces, err := DecodeRows(RawTable{})
	require.NoError(t, err)
	assert.NotNil(t, faces)
	assert.Empty(t, faces)

	faces, err = DecodeRows(RawTable{Cols: RowWidth})
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestDecodeRowsKeepsOrder(t *testing.T) {
	var lm [NumLandmarks][2]float32
	data := append(encodeRow([4]float32{0, 0, 10, 10}, lm, 0.5), encodeRow([4]float32{100, 0, 10, 10}, lm, 0.99)...)
	data = append(data, encodeRow([4]float32{200, 0, 10, 10}, lm, 0.7)...)

	faces, err := DecodeRows(RawTable{Rows: 3, Cols: RowWidth, Data: data})
	require.NoError(t, err)
	require.Len(t, faces, 3)
	assert.Equal(t, 0, faces[0].X())
	assert.Equal(t, 100, faces[1].X())
	assert.Equal(t, 200, faces[2].X())
}

func TestDecodeRowsClampsAndTruncates(t *testing.T) {
	var lm [NumLandmarks][2]float32
	lm[NoseTip] = [2]float32{12.9, -3.7}

	cases := []struct {
		name  string
		row   []float32
		check func(t *testing.T, f Face)
	}{
		{
			name: "truncates coordinates",
			row:  encodeRow([4]float32{10.9, 20.2, 50.99, 60.5}, lm, 0.5),
			check: func(t *testing.T, f Face) {
				assert.Equal(t, image.Rect(10, 20, 60, 80), f.Box)
				assert.Equal(t, image.Pt(12, -3), f.Landmark(NoseTip))
			},
		},
		{
			name: "negative size clamped to zero",
			row:  encodeRow([4]float32{5, 5, -4, -1}, lm, 0.5),
			check: func(t *testing.T, f Face) {
				assert.Equal(t, 0, f.W())
				assert.Equal(t, 0, f.H())
				assert.Equal(t, 5, f.X())
			},
		},
		{
			name: "score above one",
			row:  encodeRow([4]float32{0, 0, 1, 1}, lm, 1.3),
			check: func(t *testing.T, f Face) {
				assert.Equal(t, float32(1), f.Confidence)
			},
		},
		{
			name: "negative score",
			row:  encodeRow([4]float32{0, 0, 1, 1}, lm, -0.2),
			check: func(t *testing.T, f Face) {
				assert.Equal(t, float32(0), f.Confidence)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			faces, err := DecodeRows(RawTable{Rows: 1, Cols: RowWidth, Data: tc.row})
			require.NoError(t, err)
			require.Len(t, faces, 1)
			tc.check(t, faces[0])
		})
	}
}

func TestDecodeRowsMalformed(t *testing.T) {
	cases := map[string]RawTable{
		"wrong column count": {Rows: 1, Cols: 14, Data: make([]float32, 14)},
		"short data":         {Rows: 2, Cols: RowWidth, Data: make([]float32, RowWidth)},
		"long data":          {Rows: 1, Cols: RowWidth, Data: make([]float32, RowWidth+1)},
	}
	for name, table := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRows(table)
			var inferErr *InferenceError
			require.True(t, errors.As(err, &inferErr), "got %v", err)
		})
	}
}

func TestLandmarkString(t *testing.T) {
	assert.Equal(t, "right_eye", RightEye.String())
	assert.Equal(t, "left_mouth_corner", LeftMouthCorner.String())
	assert.Equal(t, "landmark(7)", Landmark(7).String())
}

package yunet

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(solidImage(w, h, color.RGBA{40, 80, 120, 255}), path))
	return path
}

func writeGrayImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestRunImageNoFaces(t *testing.T) {
	dir := t.TempDir()
	input := writeTestImage(t, dir, "empty.png", 64, 48)
	engine := &fakeEngine{table: RawTable{Cols: RowWidth}}
	det := newTestDetector(t, engine)

	var out bytes.Buffer
	savePath := filepath.Join(dir, "result.jpg")
	opts := DefaultImageOptions(input).WithSave(false, savePath).WithVisualize(false)
	faces, err := RunImage(context.Background(), det, opts, nil, &out)
	require.NoError(t, err)

	assert.Empty(t, faces)
	assert.Equal(t, "0 faces detected:\n", out.String())
	assert.NoFileExists(t, savePath)
	assert.Equal(t, image.Pt(64, 48), det.InputSize())
	assert.Equal(t, []image.Point{image.Pt(64, 48)}, engine.inputs)
}

func TestRunImageReportAndSave(t *testing.T) {
	dir := t.TempDir()
	input := writeTestImage(t, dir, "face.jpg", 120, 100)
	det := newTestDetector(t, &fakeEngine{table: sampleTable()})

	var out bytes.Buffer
	savePath := filepath.Join(dir, "annotated.jpg")
	opts := DefaultImageOptions(input).WithSave(true, savePath).WithVisualize(false)
	faces, err := RunImage(context.Background(), det, opts, nil, &out)
	require.NoError(t, err)
	require.Len(t, faces, 1)

	assert.Contains(t, out.String(), "1 faces detected:\n0: x1=10, y1=20, w=50, h=60, conf=0.8700\n")
	assert.FileExists(t, savePath)

	saved, err := imaging.Open(savePath)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(120, 100), saved.Bounds().Size())
}

func TestRunImageDefaultSavePath(t *testing.T) {
	dir := t.TempDir()
	input := writeTestImage(t, dir, "face.png", 64, 64)
	det := newTestDetector(t, &fakeEngine{table: sampleTable()})

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	opts := ImageOptions{Path: input, Save: true}
	_, err = RunImage(context.Background(), det, opts, nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, DefaultSavePath))
}

func TestRunImageVisualize(t *testing.T) {
	dir := t.TempDir()
	input := writeTestImage(t, dir, "face.png", 64, 64)
	det := newTestDetector(t, &fakeEngine{table: sampleTable()})
	display := &fakeDisplay{keyAfter: 1}

	opts := DefaultImageOptions(input)
	_, err := RunImage(context.Background(), det, opts, display, &bytes.Buffer{})
	require.NoError(t, err)

	require.Len(t, display.shown, 1)
	assert.Equal(t, image.Rect(0, 0, 64, 64), display.shown[0].Bounds())
	assert.Equal(t, []time.Duration{0}, display.waits)

	display = &fakeDisplay{}
	_, err = RunImage(context.Background(), det, opts.WithVisualize(false), display, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Empty(t, display.shown)
}

func TestRunImageMissingFile(t *testing.T) {
	engine := &fakeEngine{}
	det := newTestDetector(t, engine)
	path := filepath.Join(t.TempDir(), "missing.jpg")

	_, err := RunImage(context.Background(), det, DefaultImageOptions(path), nil, &bytes.Buffer{})
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, path, ioErr.Path)
	assert.Contains(t, err.Error(), path)
	assert.Empty(t, engine.inputs)
}

func TestRunImageInferenceError(t *testing.T) {
	dir := t.TempDir()
	input := writeTestImage(t, dir, "face.png", 64, 64)
	det := newTestDetector(t, &fakeEngine{err: errors.New("boom")})
	savePath := filepath.Join(dir, "result.jpg")

	var out bytes.Buffer
	_, err := RunImage(context.Background(), det, DefaultImageOptions(input).WithSave(true, savePath), nil, &out)
	var inferErr *InferenceError
	require.True(t, errors.As(err, &inferErr))
	assert.Empty(t, out.String())
	assert.NoFileExists(t, savePath)
}

func TestRunImageSaveFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeTestImage(t, dir, "face.png", 64, 64)
	det := newTestDetector(t, &fakeEngine{table: sampleTable()})
	savePath := filepath.Join(dir, "missing-dir", "result.jpg")

	_, err := RunImage(context.Background(), det, DefaultImageOptions(input).WithSave(true, savePath).WithVisualize(false), nil, &bytes.Buffer{})
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, savePath, ioErr.Path)
}

func TestRunImageGrayscale(t *testing.T) {
	dir := t.TempDir()
	input := writeGrayImage(t, dir, "gray.png", 64, 48)
	decoded, err := imaging.Open(input)
	require.NoError(t, err)
	require.Equal(t, color.GrayModel, decoded.ColorModel())

	engine := &fakeEngine{table: sampleTable()}
	det := newTestDetector(t, engine)

	var out bytes.Buffer
	savePath := filepath.Join(dir, "result.jpg")
	opts := DefaultImageOptions(input).WithSave(true, savePath).WithVisualize(false)
	faces, err := RunImage(context.Background(), det, opts, nil, &out)
	require.NoError(t, err)

	require.Len(t, faces, 1)
	assert.Contains(t, out.String(), "1 faces detected:\n")
	assert.Equal(t, []image.Point{image.Pt(64, 48)}, engine.inputs)
	assert.FileExists(t, savePath)
}

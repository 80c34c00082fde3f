package yunet

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/benbjohnson/clock"
)

// fakeEngine 记录调用并返回预设结果
type fakeEngine struct {
	sizes    []image.Point
	inputs   []image.Point
	table    RawTable
	err      error
	closed   bool
	clock    *clock.Mock
	duration time.Duration
}

func (e *fakeEngine) SetInputSize(size image.Point) error {
	e.sizes = append(e.sizes, size)
	return nil
}

func (e *fakeEngine) Detect(img image.Image) (RawTable, error) {
	e.inputs = append(e.inputs, img.Bounds().Size())
	if e.clock != nil {
		e.clock.Add(e.duration)
	}
	if e.err != nil {
		return RawTable{}, e.err
	}
	return e.table, nil
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

// fakeSource 按顺序返回预设帧
type fakeSource struct {
	size   image.Point
	frames []image.Image
	reads  int
	closed bool
}

func (s *fakeSource) Size() image.Point { return s.size }

func (s *fakeSource) Read() (image.Image, bool) {
	if s.reads >= len(s.frames) {
		return nil, false
	}
	frame := s.frames[s.reads]
	s.reads++
	return frame, true
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSource) opener() SourceOpener {
	return func(InputSource) (FrameSource, error) { return s, nil }
}

// fakeDisplay 在第 keyAfter 次等待时模拟按键，0 表示从不按键
type fakeDisplay struct {
	shown    []image.Image
	waits    []time.Duration
	keyAfter int
	closed   bool
}

func (d *fakeDisplay) Show(img image.Image) {
	d.shown = append(d.shown, img)
}

func (d *fakeDisplay) WaitKey(ctx context.Context, delay time.Duration) bool {
	d.waits = append(d.waits, delay)
	if ctx.Err() != nil {
		return true
	}
	return d.keyAfter > 0 && len(d.waits) >= d.keyAfter
}

func (d *fakeDisplay) Close() { d.closed = true }

func sampleRow() []float32 {
	return encodeRow(
		[4]float32{10, 20, 50, 60},
		[NumLandmarks][2]float32{{20, 35}, {45, 35}, {33, 50}, {22, 65}, {44, 65}},
		0.87)
}

func sampleTable() RawTable {
	return RawTable{Rows: 1, Cols: RowWidth, Data: sampleRow()}
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

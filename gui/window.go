package gui

import (
	"context"
	"image"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"

	"github.com/Cubiaa/yunet-go/yunet"
)

// Window 基于 fyne 的检测结果显示窗口，实现 yunet.Display
// fyne 要求在主goroutine运行事件循环：检测流程放在后台goroutine，主goroutine调用 Run
type Window struct {
	app          fyne.App
	window       fyne.Window
	imageDisplay *canvas.Image

	keys      chan struct{}
	mu        sync.Mutex // 保护 closed 的关闭与 Show 的投递
	closed    chan struct{}
	closeOnce sync.Once
	sized     bool
}

var _ yunet.Display = (*Window)(nil)

// NewWindow 创建显示窗口
func NewWindow(title string) *Window {
	return newWindow(app.New(), title)
}

func newWindow(a fyne.App, title string) *Window {
	w := &Window{
		app:    a,
		keys:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}

	w.window = a.NewWindow(title)
	w.window.Resize(fyne.NewSize(800, 600))

	w.imageDisplay = &canvas.Image{}
	w.imageDisplay.FillMode = canvas.ImageFillContain
	w.imageDisplay.ScaleMode = canvas.ImageScaleFastest
	w.window.SetContent(w.imageDisplay)

	// 任意按键都视为退出请求
	w.window.Canvas().SetOnTypedKey(func(*fyne.KeyEvent) {
		w.keyPressed()
	})
	w.window.Canvas().SetOnTypedRune(func(rune) {
		w.keyPressed()
	})
	w.window.SetOnClosed(func() {
		w.markClosed()
	})
	// 事件循环以任何方式退出后都不再接受新帧
	a.Lifecycle().SetOnStopped(func() {
		w.markClosed()
	})
	return w
}

func (w *Window) keyPressed() {
	select {
	case w.keys <- struct{}{}:
	default:
	}
}

func (w *Window) markClosed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeOnce.Do(func() {
		close(w.closed)
	})
}

func (w *Window) isClosed() bool {
	select {
	case <-w.closed:
		return true
	default:
		return false
	}
}

// SetTitle 修改窗口标题
func (w *Window) SetTitle(title string) {
	fyne.Do(func() {
		w.window.SetTitle(title)
	})
}

// Show 显示一帧，第一帧时按图像尺寸调整窗口大小
// 窗口关闭后的帧直接丢弃，fyne.Do 只排队不等待，不会阻塞在已退出的事件循环上
func (w *Window) Show(img image.Image) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isClosed() {
		return
	}

	fyne.Do(func() {
		if w.isClosed() {
			return
		}
		if !w.sized {
			size := img.Bounds().Size()
			w.window.Resize(fyne.NewSize(float32(size.X), float32(size.Y)))
			w.sized = true
		}
		w.imageDisplay.Image = img
		w.imageDisplay.Refresh()
	})
}

// WaitKey 等待按键，delay 为0时一直等待
// 按键、窗口关闭或 ctx 结束时返回 true，超时返回 false
func (w *Window) WaitKey(ctx context.Context, delay time.Duration) bool {
	var timeout <-chan time.Time
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-w.keys:
		return true
	case <-w.closed:
		return true
	case <-ctx.Done():
		return true
	case <-timeout:
		return false
	}
}

// Run 显示窗口并运行事件循环，直到窗口关闭或调用 Close
func (w *Window) Run() {
	w.window.Show()
	w.app.Run()
	w.markClosed()
}

// Close 关闭窗口并退出事件循环
func (w *Window) Close() {
	if w.isClosed() {
		return
	}
	// 先标记关闭再退出，之后的 Show 不再投递
	w.markClosed()
	fyne.Do(func() {
		w.app.Quit()
	})
}

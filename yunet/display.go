package yunet

import (
	"context"
	"image"
	"time"
)

// Display 显示窗口
type Display interface {
	// Show 显示一帧图像
	Show(img image.Image)
	// WaitKey 等待按键，delay 为0时一直阻塞；有按键、窗口关闭或 ctx 结束时返回 true
	WaitKey(ctx context.Context, delay time.Duration) bool
	// Close 关闭窗口
	Close()
}

package yunet

import (
	"time"

	"github.com/benbjohnson/clock"
)

// TickMeter 测量单次推理耗时
type TickMeter struct {
	clock   clock.Clock
	start   time.Time
	elapsed time.Duration
	count   int
}

// NewTickMeter 创建计时器，clk 为 nil 时使用系统时钟
func NewTickMeter(clk clock.Clock) *TickMeter {
	if clk == nil {
		clk = clock.New()
	}
	return &TickMeter{clock: clk}
}

// Start 开始计时
func (t *TickMeter) Start() {
	t.start = t.clock.Now()
}

// Stop 停止计时并累计耗时
func (t *TickMeter) Stop() {
	t.elapsed += t.clock.Since(t.start)
	t.count++
}

// Elapsed 已累计的耗时
func (t *TickMeter) Elapsed() time.Duration {
	return t.elapsed
}

// FPS 按累计耗时计算帧率，没有耗时时返回0
func (t *TickMeter) FPS() float64 {
	if t.elapsed <= 0 || t.count == 0 {
		return 0
	}
	return float64(t.count) / t.elapsed.Seconds()
}

// Reset 清零
func (t *TickMeter) Reset() {
	t.elapsed = 0
	t.count = 0
}

package yunet

import (
	"context"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StreamWindowTitle 实时检测窗口标题
const StreamWindowTitle = "YuNet Demo"

// keyPollDelay 每帧之后等待按键的时间
const keyPollDelay = time.Millisecond

// StopReason 流处理结束原因
type StopReason int

const (
	StopEndOfStream StopReason = iota // 没有更多帧
	StopKeyPressed                    // 按键或窗口关闭
	StopCancelled                     // 上下文取消
)

func (r StopReason) String() string {
	switch r {
	case StopEndOfStream:
		return "end_of_stream"
	case StopKeyPressed:
		return "key_pressed"
	case StopCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StreamStats 流处理统计
type StreamStats struct {
	Frames  int        // 已显示的帧数
	Skipped int        // 推理失败而跳过的帧数
	Reason  StopReason // 结束原因
}

// Streamer 摄像头/视频的逐帧检测循环
type Streamer struct {
	Detector *Detector
	Display  Display            // 为 nil 时不显示，只处理到流结束或取消
	Logger   *zap.SugaredLogger // 为 nil 时不输出日志
	Clock    clock.Clock        // 为 nil 时使用系统时钟
	Open     SourceOpener       // 为 nil 时使用 OpenSource

	// Render 绘制检测结果和帧率，为 nil 时使用 Visualize
	Render func(img image.Image, faces Faces, fps float64) *image.RGBA
}

// Run 打开输入源并逐帧处理，直到流结束、按键或 ctx 取消
func (s *Streamer) Run(ctx context.Context, input InputSource) (stats StreamStats, err error) {
	if s.Detector == nil {
		return stats, errors.New("未设置检测器")
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	open := s.Open
	if open == nil {
		open = OpenSource
	}

	source, err := open(input)
	if err != nil {
		var srcErr *SourceError
		if !errors.As(err, &srcErr) {
			err = &SourceError{Source: input.String(), Err: err}
		}
		return stats, err
	}
	defer func() {
		err = multierr.Append(err, source.Close())
	}()

	// 输入尺寸只在开始时根据源的帧尺寸设置一次
	size := source.Size()
	if err := s.Detector.SetInputSize(size.X, size.Y); err != nil {
		return stats, err
	}
	logger.Infow("开始处理视频流", "source", input.String(), "size", size)

	render := s.Render
	if render == nil {
		render = Visualize
	}

	meter := NewTickMeter(s.Clock)
	for {
		if ctx.Err() != nil {
			stats.Reason = StopCancelled
			return stats, nil
		}

		frame, ok := source.Read()
		if !ok {
			logger.Info("No frames grabbed! Exiting ...")
			stats.Reason = StopEndOfStream
			return stats, nil
		}

		meter.Start()
		faces, inferErr := s.Detector.Infer(frame)
		meter.Stop()
		if inferErr != nil {
			var ie *InferenceError
			if !errors.As(inferErr, &ie) {
				return stats, inferErr
			}
			logger.Warnw("跳过推理失败的帧", "frame", stats.Frames+stats.Skipped, "error", inferErr)
			stats.Skipped++
			meter.Reset()
			continue
		}

		result := render(frame, faces, meter.FPS())
		stats.Frames++
		logger.Debugw("帧已处理", "frame", stats.Frames, "faces", len(faces), "fps", meter.FPS())
		meter.Reset()

		if s.Display != nil {
			s.Display.Show(result)
			if s.Display.WaitKey(ctx, keyPollDelay) {
				if ctx.Err() != nil {
					stats.Reason = StopCancelled
				} else {
					stats.Reason = StopKeyPressed
				}
				return stats, nil
			}
		}
	}
}

package yunet

import (
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Engine 外部人脸检测模型：输入图像，输出原始数值表
type Engine interface {
	SetInputSize(size image.Point) error
	Detect(img image.Image) (RawTable, error)
	Close() error
}

// ErrDetectorClosed 检测器已关闭
var ErrDetectorClosed = errors.New("检测器已关闭")

// Detector 人脸检测器
// 持有可变的输入尺寸，不能在多个goroutine间共享，并行时每个worker各自创建
type Detector struct {
	config    ModelConfig
	inputSize image.Point
	engine    Engine
	logger    *zap.SugaredLogger
}

// DetectorOption 检测器可选项
type DetectorOption func(*Detector)

// WithEngine 使用自定义推理引擎
func WithEngine(engine Engine) DetectorOption {
	return func(d *Detector) {
		d.engine = engine
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.SugaredLogger) DetectorOption {
	return func(d *Detector) {
		d.logger = logger
	}
}

// NewDetector 创建检测器，配置在加载模型之前校验
func NewDetector(config ModelConfig, opts ...DetectorOption) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		config:    config,
		inputSize: config.InputSize,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.engine == nil {
		if _, err := os.Stat(config.ModelPath); err != nil {
			return nil, &ConfigurationError{Param: "model", Value: config.ModelPath, Err: err}
		}
		engine, err := openEngine(config, d.logger)
		if err != nil {
			return nil, err
		}
		d.engine = engine
	}

	if err := d.engine.SetInputSize(d.inputSize); err != nil {
		d.engine.Close()
		return nil, &ConfigurationError{Param: "input_size", Value: d.inputSize, Err: err}
	}

	d.logger.Infow("检测器已创建",
		"model", config.ModelPath,
		"backend", config.Backend.String(),
		"target", config.Target.String(),
		"input_size", d.inputSize,
		"conf_threshold", config.ConfThreshold,
		"nms_threshold", config.NMSThreshold,
		"top_k", config.TopK)
	return d, nil
}

// Config 返回创建时的配置
func (d *Detector) Config() ModelConfig {
	return d.config
}

// InputSize 返回当前输入尺寸
func (d *Detector) InputSize() image.Point {
	return d.inputSize
}

// SetInputSize 重设输入尺寸，不重新加载模型；尺寸相同时直接返回
func (d *Detector) SetInputSize(width, height int) error {
	size := image.Pt(width, height)
	if d.engine == nil {
		return &ConfigurationError{Param: "input_size", Value: size, Err: ErrDetectorClosed}
	}
	if size == d.inputSize {
		return nil
	}
	if width <= 0 || height <= 0 {
		return &ConfigurationError{Param: "input_size", Value: size, Err: errors.New("宽高必须为正数")}
	}
	if err := d.engine.SetInputSize(size); err != nil {
		return &ConfigurationError{Param: "input_size", Value: size, Err: err}
	}
	d.logger.Debugw("输入尺寸已更新", "from", d.inputSize, "to", size)
	d.inputSize = size
	return nil
}

// Infer 对单张图像进行检测，不修改输入图像
func (d *Detector) Infer(img image.Image) (Faces, error) {
	if d.engine == nil {
		return nil, &InferenceError{Reason: "无法推理", Err: ErrDetectorClosed}
	}
	if img == nil {
		return nil, &InferenceError{Reason: "输入图像为空"}
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, &InferenceError{Reason: "输入图像尺寸为零"}
	}
	if channels := channelCount(img.ColorModel()); channels != 3 {
		return nil, &InferenceError{Reason: "输入图像通道数不符，需要3通道彩色图像"}
	}

	// 尺寸与配置不一致时缩放到输入尺寸，结果再映射回原图坐标
	input := img
	scaleX, scaleY := float32(1), float32(1)
	if bounds.Dx() != d.inputSize.X || bounds.Dy() != d.inputSize.Y {
		input = imaging.Resize(img, d.inputSize.X, d.inputSize.Y, imaging.Linear)
		scaleX = float32(bounds.Dx()) / float32(d.inputSize.X)
		scaleY = float32(bounds.Dy()) / float32(d.inputSize.Y)
		d.logger.Debugw("图像尺寸与输入尺寸不一致，已缩放",
			"image", bounds.Size(), "input_size", d.inputSize)
	}

	raw, err := d.engine.Detect(input)
	if err != nil {
		var inferErr *InferenceError
		if errors.As(err, &inferErr) {
			return nil, err
		}
		return nil, &InferenceError{Reason: "模型推理失败", Err: err}
	}
	if scaleX != 1 || scaleY != 1 {
		raw = scaleRows(raw, scaleX, scaleY)
	}
	raw = offsetRows(raw, bounds.Min)
	return DecodeRows(raw)
}

// Close 释放推理引擎
func (d *Detector) Close() error {
	if d.engine == nil {
		return nil
	}
	err := d.engine.Close()
	d.engine = nil
	return err
}

// channelCount 根据颜色模型判断通道数（透明通道不计）
func channelCount(model color.Model) int {
	switch model {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return 1
	default:
		return 3
	}
}

func scaleRows(t RawTable, sx, sy float32) RawTable {
	if t.Cols != RowWidth {
		return t
	}
	out := RawTable{Rows: t.Rows, Cols: t.Cols, Data: make([]float32, len(t.Data))}
	copy(out.Data, t.Data)
	for i := 0; i < out.Rows && (i+1)*out.Cols <= len(out.Data); i++ {
		row := out.Row(i)
		row[colX] *= sx
		row[colY] *= sy
		row[colW] *= sx
		row[colH] *= sy
		for j := 0; j < NumLandmarks; j++ {
			row[colLandmark+2*j] *= sx
			row[colLandmark+2*j+1] *= sy
		}
	}
	return out
}

// offsetRows 将坐标平移到原图的坐标系（Bounds 不从0开始时）
func offsetRows(t RawTable, origin image.Point) RawTable {
	if origin == (image.Point{}) || t.Cols != RowWidth {
		return t
	}
	ox, oy := float32(origin.X), float32(origin.Y)
	out := RawTable{Rows: t.Rows, Cols: t.Cols, Data: make([]float32, len(t.Data))}
	copy(out.Data, t.Data)
	for i := 0; i < out.Rows && (i+1)*out.Cols <= len(out.Data); i++ {
		row := out.Row(i)
		row[colX] += ox
		row[colY] += oy
		for j := 0; j < NumLandmarks; j++ {
			row[colLandmark+2*j] += ox
			row[colLandmark+2*j+1] += oy
		}
	}
	return out
}

package yunet

import (
	"fmt"
	"image"
	"strings"

	"github.com/pkg/errors"
)

// Backend 推理后端
type Backend int

const (
	BackendOpenCV Backend = iota
	BackendCUDA
	BackendTimVX
	BackendCANN
)

// Backends 所有支持的后端
var Backends = []Backend{BackendOpenCV, BackendCUDA, BackendTimVX, BackendCANN}

func (b Backend) String() string {
	switch b {
	case BackendOpenCV:
		return "opencv"
	case BackendCUDA:
		return "cuda"
	case BackendTimVX:
		return "timvx"
	case BackendCANN:
		return "cann"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// DNNID 对应 OpenCV dnn 模块的后端编号
func (b Backend) DNNID() int {
	switch b {
	case BackendOpenCV:
		return 3
	case BackendCUDA:
		return 5
	case BackendTimVX:
		return 7
	case BackendCANN:
		return 8
	default:
		return 0
	}
}

// ParseBackend 解析后端名称，未知名称直接报错
func ParseBackend(name string) (Backend, error) {
	for _, b := range Backends {
		if strings.EqualFold(name, b.String()) {
			return b, nil
		}
	}
	return 0, &ConfigurationError{Param: "backend", Value: name, Err: errors.New("未知后端")}
}

// MarshalText 用于YAML
func (b Backend) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText 用于YAML
func (b *Backend) UnmarshalText(text []byte) error {
	parsed, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Target 推理设备
type Target int

const (
	TargetCPU Target = iota
	TargetCUDA
	TargetCUDAFP16
	TargetNPU
)

// Targets 所有支持的设备
var Targets = []Target{TargetCPU, TargetCUDA, TargetCUDAFP16, TargetNPU}

func (t Target) String() string {
	switch t {
	case TargetCPU:
		return "cpu"
	case TargetCUDA:
		return "cuda"
	case TargetCUDAFP16:
		return "cuda_fp16"
	case TargetNPU:
		return "npu"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// DNNID 对应 OpenCV dnn 模块的设备编号
func (t Target) DNNID() int {
	switch t {
	case TargetCPU:
		return 0
	case TargetCUDA:
		return 6
	case TargetCUDAFP16:
		return 7
	case TargetNPU:
		return 9
	default:
		return 0
	}
}

// ParseTarget 解析设备名称
func ParseTarget(name string) (Target, error) {
	for _, t := range Targets {
		if strings.EqualFold(name, t.String()) {
			return t, nil
		}
	}
	return 0, &ConfigurationError{Param: "target", Value: name, Err: errors.New("未知设备")}
}

// MarshalText 用于YAML
func (t Target) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText 用于YAML
func (t *Target) UnmarshalText(text []byte) error {
	parsed, err := ParseTarget(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Supports 检查后端与设备组合是否可用
func (b Backend) Supports(t Target) bool {
	switch b {
	case BackendOpenCV:
		return t == TargetCPU
	case BackendCUDA:
		return t == TargetCUDA || t == TargetCUDAFP16
	case BackendTimVX, BackendCANN:
		return t == TargetNPU
	default:
		return false
	}
}

// DefaultInputSize 构造时的默认输入尺寸，处理前会按实际图片尺寸重设
var DefaultInputSize = image.Pt(320, 320)

// ModelConfig 模型配置（创建后不可变，输入尺寸由 Detector 单独维护）
type ModelConfig struct {
	ModelPath     string
	InputSize     image.Point
	ConfThreshold float32
	NMSThreshold  float32
	TopK          int
	Backend       Backend
	Target        Target
	LibraryPath   string // ONNX Runtime库路径
	Threads       int    // 0 表示由运行时决定
	GPUDeviceID   int
}

// DefaultModelConfig 返回默认配置
func DefaultModelConfig(modelPath string) ModelConfig {
	return ModelConfig{
		ModelPath:     modelPath,
		InputSize:     DefaultInputSize,
		ConfThreshold: 0.9,
		NMSThreshold:  0.3,
		TopK:          5000,
		Backend:       BackendOpenCV,
		Target:        TargetCPU,
	}
}

// WithInputSize 设置初始输入尺寸
func (c ModelConfig) WithInputSize(width, height int) ModelConfig {
	c.InputSize = image.Pt(width, height)
	return c
}

// WithConfThreshold 设置置信度阈值
func (c ModelConfig) WithConfThreshold(threshold float32) ModelConfig {
	c.ConfThreshold = threshold
	return c
}

// WithNMSThreshold 设置NMS阈值
func (c ModelConfig) WithNMSThreshold(threshold float32) ModelConfig {
	c.NMSThreshold = threshold
	return c
}

// WithTopK 设置NMS前保留的候选框数量
func (c ModelConfig) WithTopK(topK int) ModelConfig {
	c.TopK = topK
	return c
}

// WithBackend 设置后端与设备
func (c ModelConfig) WithBackend(backend Backend, target Target) ModelConfig {
	c.Backend = backend
	c.Target = target
	return c
}

// WithLibraryPath 设置ONNX Runtime库路径
func (c ModelConfig) WithLibraryPath(path string) ModelConfig {
	c.LibraryPath = path
	return c
}

// WithThreads 设置推理线程数
func (c ModelConfig) WithThreads(n int) ModelConfig {
	c.Threads = n
	return c
}

// WithGPUDeviceID 设置GPU设备ID（仅CUDA后端有效）
func (c ModelConfig) WithGPUDeviceID(id int) ModelConfig {
	c.GPUDeviceID = id
	return c
}

// Validate 在任何推理之前校验配置
func (c ModelConfig) Validate() error {
	if c.ModelPath == "" {
		return &ConfigurationError{Param: "model", Value: c.ModelPath, Err: errors.New("模型路径为空")}
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 || c.ConfThreshold != c.ConfThreshold {
		return &ConfigurationError{Param: "conf_threshold", Value: c.ConfThreshold, Err: errors.New("必须在[0,1]范围内")}
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 || c.NMSThreshold != c.NMSThreshold {
		return &ConfigurationError{Param: "nms_threshold", Value: c.NMSThreshold, Err: errors.New("必须在[0,1]范围内")}
	}
	if c.TopK <= 0 {
		return &ConfigurationError{Param: "top_k", Value: c.TopK, Err: errors.New("必须为正整数")}
	}
	if c.InputSize.X <= 0 || c.InputSize.Y <= 0 {
		return &ConfigurationError{Param: "input_size", Value: c.InputSize, Err: errors.New("宽高必须为正数")}
	}
	if c.Threads < 0 {
		return &ConfigurationError{Param: "threads", Value: c.Threads, Err: errors.New("不能为负数")}
	}
	if !c.Backend.Supports(c.Target) {
		return &ConfigurationError{
			Param: "backend/target",
			Value: c.Backend.String() + "/" + c.Target.String(),
			Err:   errors.New("不支持的后端与设备组合"),
		}
	}
	return nil
}

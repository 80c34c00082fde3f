package yunet

import "fmt"

// ConfigurationError 配置错误：阈值越界、后端/目标组合不支持、模型无法加载
type ConfigurationError struct {
	Param string
	Value interface{}
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("配置无效 %s=%v: %v", e.Param, e.Value, e.Err)
	}
	return fmt.Sprintf("配置无效 %s=%v", e.Param, e.Value)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IOError 图片读写失败
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s '%s' 失败: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// SourceError 摄像头或视频无法打开
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("无法打开输入源 %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// InferenceError 单帧推理失败（输入尺寸为零、通道数不符等）
type InferenceError struct {
	Reason string
	Err    error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("推理失败: %s: %v", e.Reason, e.Err)
	}
	return "推理失败: " + e.Reason
}

func (e *InferenceError) Unwrap() error { return e.Err }

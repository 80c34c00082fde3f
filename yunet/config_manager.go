package yunet

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AppConfig 应用程序配置
type AppConfig struct {
	Model    ModelSection    `yaml:"model"`
	Detector DetectorSection `yaml:"detector"`
	Output   OutputSection   `yaml:"output"`
}

// ModelSection 模型与运行时配置
type ModelSection struct {
	Path        string  `yaml:"path"`
	LibraryPath string  `yaml:"library_path"`
	Backend     Backend `yaml:"backend"`
	Target      Target  `yaml:"target"`
	GPUDeviceID int     `yaml:"gpu_device_id"`
	Threads     int     `yaml:"threads"`
}

// DetectorSection 检测参数
type DetectorSection struct {
	ConfThreshold float32 `yaml:"conf_threshold"`
	NMSThreshold  float32 `yaml:"nms_threshold"`
	TopK          int     `yaml:"top_k"`
	InputWidth    int     `yaml:"input_width"`
	InputHeight   int     `yaml:"input_height"`
}

// OutputSection 输出配置
type OutputSection struct {
	Save      bool   `yaml:"save"`
	SavePath  string `yaml:"save_path"`
	Visualize bool   `yaml:"visualize"`
	OutputDir string `yaml:"output_dir"`
}

// DefaultAppConfig 返回默认应用配置
func DefaultAppConfig() *AppConfig {
	model := DefaultModelConfig("face_detection_yunet_2023mar.onnx")
	return &AppConfig{
		Model: ModelSection{
			Path:    model.ModelPath,
			Backend: model.Backend,
			Target:  model.Target,
		},
		Detector: DetectorSection{
			ConfThreshold: model.ConfThreshold,
			NMSThreshold:  model.NMSThreshold,
			TopK:          model.TopK,
			InputWidth:    model.InputSize.X,
			InputHeight:   model.InputSize.Y,
		},
		Output: OutputSection{
			SavePath:  DefaultSavePath,
			Visualize: true,
		},
	}
}

// ToModelConfig 转换为模型配置，输入尺寸未填写时使用默认值
func (c *AppConfig) ToModelConfig() ModelConfig {
	config := DefaultModelConfig(c.Model.Path).
		WithBackend(c.Model.Backend, c.Model.Target).
		WithLibraryPath(c.Model.LibraryPath).
		WithGPUDeviceID(c.Model.GPUDeviceID).
		WithThreads(c.Model.Threads).
		WithConfThreshold(c.Detector.ConfThreshold).
		WithNMSThreshold(c.Detector.NMSThreshold).
		WithTopK(c.Detector.TopK)
	if c.Detector.InputWidth > 0 && c.Detector.InputHeight > 0 {
		config = config.WithInputSize(c.Detector.InputWidth, c.Detector.InputHeight)
	}
	return config
}

// ConfigManager 配置管理器
type ConfigManager struct {
	config *AppConfig
	path   string
}

// NewConfigManager 创建配置管理器
func NewConfigManager(configPath string) *ConfigManager {
	return &ConfigManager{
		path: configPath,
	}
}

// Path 配置文件路径
func (cm *ConfigManager) Path() string {
	return cm.path
}

// LoadConfig 加载配置文件，未出现的字段保持默认值
func (cm *ConfigManager) LoadConfig() error {
	data, err := os.ReadFile(cm.path)
	if err != nil {
		return &IOError{Op: "读取配置文件", Path: cm.path, Err: err}
	}

	config := DefaultAppConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return &ConfigurationError{Param: "config", Value: cm.path, Err: errors.Wrap(err, "解析配置文件失败")}
	}
	cm.config = config
	return nil
}

// SaveConfig 保存配置文件
func (cm *ConfigManager) SaveConfig() error {
	if cm.config == nil {
		cm.config = DefaultAppConfig()
	}
	data, err := yaml.Marshal(cm.config)
	if err != nil {
		return errors.Wrap(err, "序列化配置失败")
	}

	if err := os.WriteFile(cm.path, data, 0644); err != nil {
		return &IOError{Op: "保存配置文件", Path: cm.path, Err: err}
	}
	return nil
}

// Config 获取应用配置，未加载时返回默认值
func (cm *ConfigManager) Config() *AppConfig {
	if cm.config == nil {
		return DefaultAppConfig()
	}
	return cm.config
}

// ModelConfig 获取模型配置
func (cm *ConfigManager) ModelConfig() ModelConfig {
	return cm.Config().ToModelConfig()
}

// CreateDefaultConfig 创建默认配置文件
func (cm *ConfigManager) CreateDefaultConfig() error {
	cm.config = DefaultAppConfig()
	return cm.SaveConfig()
}

//go:build !gocv

package yunet

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// 全局变量用于管理ONNX Runtime环境
var (
	ortInitialized bool
	ortUsers       int
	ortMutex       sync.Mutex
)

// YuNet 模型的输入输出名称
const onnxInputName = "input"

func onnxOutputNames() []string {
	var names []string
	for _, kind := range []string{"cls", "obj", "bbox", "kps"} {
		for _, stride := range strides {
			names = append(names, fmt.Sprintf("%s_%d", kind, stride))
		}
	}
	return names
}

// onnxEngine 基于 ONNX Runtime 的 YuNet 推理引擎
type onnxEngine struct {
	config      ModelConfig
	session     *ort.DynamicAdvancedSession
	outputNames []string
	inputSize   image.Point
	padW, padH  int
	input       []float32
	logger      *zap.SugaredLogger
}

func openEngine(config ModelConfig, logger *zap.SugaredLogger) (Engine, error) {
	return newONNXEngine(config, logger)
}

func initORT(libraryPath string) error {
	ortMutex.Lock()
	defer ortMutex.Unlock()

	if !ortInitialized {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return err
		}
		ortInitialized = true
	}
	ortUsers++
	return nil
}

// releaseORT 最后一个引擎关闭时销毁环境
func releaseORT() error {
	ortMutex.Lock()
	defer ortMutex.Unlock()

	ortUsers--
	if ortUsers > 0 || !ortInitialized {
		return nil
	}
	ortInitialized = false
	return ort.DestroyEnvironment()
}

func newONNXEngine(config ModelConfig, logger *zap.SugaredLogger) (*onnxEngine, error) {
	switch config.Backend {
	case BackendOpenCV, BackendCUDA:
	default:
		return nil, &ConfigurationError{
			Param: "backend",
			Value: config.Backend.String(),
			Err:   errors.New("ONNX Runtime 引擎不支持该后端，请使用 gocv 构建"),
		}
	}

	if err := initORT(config.LibraryPath); err != nil {
		return nil, &ConfigurationError{Param: "library", Value: config.LibraryPath, Err: errors.Wrap(err, "无法初始化ONNX Runtime")}
	}

	sessionOptions, err := newSessionOptions(config, logger)
	if err != nil {
		releaseORT()
		return nil, err
	}
	defer sessionOptions.Destroy()

	outputNames := onnxOutputNames()
	session, err := ort.NewDynamicAdvancedSession(config.ModelPath,
		[]string{onnxInputName}, outputNames, sessionOptions)
	if err != nil {
		releaseORT()
		return nil, &ConfigurationError{Param: "model", Value: config.ModelPath, Err: errors.Wrap(err, "无法加载模型文件")}
	}

	return &onnxEngine{
		config:      config,
		session:     session,
		outputNames: outputNames,
		logger:      logger,
	}, nil
}

// newSessionOptions 按后端设置会话选项
func newSessionOptions(config ModelConfig, logger *zap.SugaredLogger) (*ort.SessionOptions, error) {
	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "无法创建会话选项")
	}

	threads := config.Threads
	if threads == 0 {
		threads = runtime.NumCPU()
	}
	if err := sessionOptions.SetIntraOpNumThreads(threads); err != nil {
		logger.Warnw("设置线程数失败", "threads", threads, "error", err)
	}
	if err := sessionOptions.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		logger.Warnw("设置图优化级别失败", "error", err)
	}

	if config.Backend != BackendCUDA {
		return sessionOptions, nil
	}

	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		sessionOptions.Destroy()
		return nil, &ConfigurationError{Param: "backend", Value: config.Backend.String(), Err: errors.Wrap(err, "创建CUDA选项失败")}
	}
	defer cudaOptions.Destroy()

	settings := map[string]string{"device_id": fmt.Sprintf("%d", config.GPUDeviceID)}
	if err := cudaOptions.Update(settings); err != nil {
		sessionOptions.Destroy()
		return nil, &ConfigurationError{Param: "target", Value: config.Target.String(), Err: errors.Wrap(err, "更新CUDA选项失败")}
	}
	if err := sessionOptions.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		sessionOptions.Destroy()
		return nil, &ConfigurationError{Param: "backend", Value: config.Backend.String(), Err: errors.Wrap(err, "CUDA不可用")}
	}
	logger.Infow("CUDA加速已启用", "device_id", config.GPUDeviceID, "target", config.Target.String())
	return sessionOptions, nil
}

func (e *onnxEngine) SetInputSize(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return errors.Errorf("无效的输入尺寸 %v", size)
	}
	e.inputSize = size
	e.padW, e.padH = padToStride(size.X), padToStride(size.Y)
	e.input = make([]float32, 3*e.padW*e.padH)
	return nil
}

func (e *onnxEngine) Detect(img image.Image) (RawTable, error) {
	if img.Bounds().Size() != e.inputSize {
		return RawTable{}, &InferenceError{
			Reason: fmt.Sprintf("图像尺寸%v与输入尺寸%v不一致", img.Bounds().Size(), e.inputSize),
		}
	}

	fillBlob(e.input, img, e.padW, e.padH)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(e.padH), int64(e.padW)), e.input)
	if err != nil {
		return RawTable{}, errors.Wrap(err, "无法创建输入张量")
	}
	defer inputTensor.Destroy()

	// 输出形状随输入尺寸变化，由运行时分配
	outputs := make([]ort.Value, len(e.outputNames))
	if err := e.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return RawTable{}, errors.Wrap(err, "推理失败")
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	byStride := make(map[int]strideOutputs, len(strides))
	for i, stride := range strides {
		data := make([][]float32, 4)
		for k := 0; k < 4; k++ {
			tensor, ok := outputs[k*len(strides)+i].(*ort.Tensor[float32])
			if !ok {
				return RawTable{}, errors.Errorf("输出 %s 类型不是float32", e.outputNames[k*len(strides)+i])
			}
			data[k] = tensor.GetData()
		}
		byStride[stride] = strideOutputs{Cls: data[0], Obj: data[1], BBox: data[2], Kps: data[3]}
	}
	return postprocess(byStride, e.padW, e.padH, e.config)
}

func (e *onnxEngine) Close() error {
	var err error
	if e.session != nil {
		err = multierr.Append(err, e.session.Destroy())
		e.session = nil
		err = multierr.Append(err, releaseORT())
	}
	return err
}

// fillBlob 将图像写入 NCHW 的 BGR 张量，右侧与下方补零到32的倍数
func fillBlob(dst []float32, img image.Image, padW, padH int) {
	for i := range dst {
		dst[i] = 0
	}
	bounds := img.Bounds()
	plane := padW * padH
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*padW + x
			dst[i] = float32(b >> 8)
			dst[plane+i] = float32(g >> 8)
			dst[2*plane+i] = float32(r >> 8)
		}
	}
}

// Package main YuNet 人脸检测演示程序
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Cubiaa/yunet-go/gui"
	"github.com/Cubiaa/yunet-go/yunet"
)

const (
	flagInput         = "input"
	flagModel         = "model"
	flagBackend       = "backend"
	flagTarget        = "target"
	flagSave          = "save"
	flagVis           = "vis"
	flagConfThreshold = "conf_threshold"
	flagNMSThreshold  = "nms_threshold"
	flagTopK          = "top_k"
	flagDevice        = "device"
	flagOutput        = "output"
	flagConfig        = "config"
	flagLibrary       = "library"
	flagDebug         = "debug"
)

func main() {
	app := &cli.App{
		Name:  "yunet",
		Usage: "YuNet 人脸检测：图片、图片目录、视频或摄像头",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagInput,
				Aliases: []string{"i"},
				Usage:   "输入图片、图片目录或视频路径，为空时使用摄像头",
			},
			&cli.StringFlag{
				Name:    flagModel,
				Aliases: []string{"m"},
				Value:   "face_detection_yunet_2023mar.onnx",
				Usage:   "模型文件路径",
			},
			&cli.StringFlag{
				Name:    flagBackend,
				Aliases: []string{"b"},
				Value:   yunet.BackendOpenCV.String(),
				Usage:   "推理后端: opencv, cuda, timvx, cann",
			},
			&cli.StringFlag{
				Name:    flagTarget,
				Aliases: []string{"t"},
				Value:   yunet.TargetCPU.String(),
				Usage:   "推理设备: cpu, cuda, cuda_fp16, npu",
			},
			&cli.BoolFlag{
				Name:    flagSave,
				Aliases: []string{"s"},
				Usage:   "保存检测结果（仅图片输入）",
			},
			&cli.BoolFlag{
				Name:    flagVis,
				Aliases: []string{"v"},
				Value:   true,
				Usage:   "显示结果窗口",
			},
			&cli.Float64Flag{
				Name:  flagConfThreshold,
				Value: 0.9,
				Usage: "置信度阈值",
			},
			&cli.Float64Flag{
				Name:  flagNMSThreshold,
				Value: 0.3,
				Usage: "NMS阈值",
			},
			&cli.IntFlag{
				Name:  flagTopK,
				Value: 5000,
				Usage: "NMS前保留的候选框数量",
			},
			&cli.IntFlag{
				Name:  flagDevice,
				Value: 0,
				Usage: "摄像头设备号",
			},
			&cli.StringFlag{
				Name:  flagOutput,
				Value: yunet.DefaultSavePath,
				Usage: "结果保存路径，输入为目录时为输出目录",
			},
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "YAML配置文件 `FILE`，命令行参数优先",
			},
			&cli.StringFlag{
				Name:  flagLibrary,
				Usage: "ONNX Runtime 动态库路径",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "输出调试日志",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := yunet.NewLogger(c.Bool(flagDebug))
	if err != nil {
		return errors.Wrap(err, "初始化日志失败")
	}
	defer logger.Sync()

	appConfig, err := loadAppConfig(c)
	if err != nil {
		return err
	}

	det, err := yunet.NewDetector(appConfig.ToModelConfig(), yunet.WithLogger(logger))
	if err != nil {
		return err
	}
	defer det.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	input := c.String(flagInput)
	out := c.App.Writer

	// 不需要窗口时直接在当前goroutine处理
	if !appConfig.Output.Visualize {
		return process(ctx, det, appConfig, input, c.Int(flagDevice), nil, logger, out)
	}

	title := yunet.StreamWindowTitle
	if input != "" && yunet.IsImageFile(input) {
		title = yunet.ResultWindowTitle
	}
	win := gui.NewWindow(title)

	// fyne 的事件循环必须在主goroutine
	done := make(chan error, 1)
	go func() {
		err := process(ctx, det, appConfig, input, c.Int(flagDevice), win, logger, out)
		win.Close()
		done <- err
	}()
	win.Run()
	stop()
	return <-done
}

// process 按输入类型选择处理流程
func process(ctx context.Context, det *yunet.Detector, appConfig *yunet.AppConfig, input string, device int,
	display yunet.Display, logger *zap.SugaredLogger, out io.Writer) error {
	if input == "" {
		return runStream(ctx, det, yunet.NewCameraInput(device), display, logger)
	}

	info, err := os.Stat(input)
	if err != nil {
		return &yunet.IOError{Op: "读取输入", Path: input, Err: err}
	}

	switch {
	case info.IsDir():
		processed, err := yunet.RunImageDir(ctx, det, yunet.DirOptions{
			InputDir:  input,
			OutputDir: appConfig.Output.OutputDir,
			Logger:    logger,
		}, out)
		if err != nil {
			return err
		}
		logger.Infow("目录处理完成", "input", input, "processed", processed)
		return nil

	case yunet.IsImageFile(input):
		opts := yunet.DefaultImageOptions(input).
			WithSave(appConfig.Output.Save, appConfig.Output.SavePath).
			WithVisualize(display != nil)
		_, err := yunet.RunImage(ctx, det, opts, display, out)
		return err

	default:
		return runStream(ctx, det, yunet.NewFileInput(input), display, logger)
	}
}

func runStream(ctx context.Context, det *yunet.Detector, input yunet.InputSource, display yunet.Display, logger *zap.SugaredLogger) error {
	streamer := &yunet.Streamer{
		Detector: det,
		Display:  display,
		Logger:   logger,
	}
	stats, err := streamer.Run(ctx, input)
	if err != nil {
		return err
	}
	logger.Infow("视频流处理结束",
		"source", input.String(),
		"frames", stats.Frames,
		"skipped", stats.Skipped,
		"reason", stats.Reason.String())
	return nil
}

// loadAppConfig 读取配置文件，再用显式设置的命令行参数覆盖
func loadAppConfig(c *cli.Context) (*yunet.AppConfig, error) {
	appConfig := yunet.DefaultAppConfig()
	if path := c.String(flagConfig); path != "" {
		cm := yunet.NewConfigManager(path)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := cm.CreateDefaultConfig(); err != nil {
				return nil, err
			}
		} else if err := cm.LoadConfig(); err != nil {
			return nil, err
		}
		appConfig = cm.Config()
	}

	if c.IsSet(flagModel) || c.String(flagConfig) == "" {
		appConfig.Model.Path = c.String(flagModel)
	}
	if c.IsSet(flagBackend) || c.String(flagConfig) == "" {
		backend, err := yunet.ParseBackend(c.String(flagBackend))
		if err != nil {
			return nil, err
		}
		appConfig.Model.Backend = backend
	}
	if c.IsSet(flagTarget) || c.String(flagConfig) == "" {
		target, err := yunet.ParseTarget(c.String(flagTarget))
		if err != nil {
			return nil, err
		}
		appConfig.Model.Target = target
	}
	if c.IsSet(flagLibrary) {
		appConfig.Model.LibraryPath = c.String(flagLibrary)
	}
	if c.IsSet(flagConfThreshold) {
		appConfig.Detector.ConfThreshold = float32(c.Float64(flagConfThreshold))
	}
	if c.IsSet(flagNMSThreshold) {
		appConfig.Detector.NMSThreshold = float32(c.Float64(flagNMSThreshold))
	}
	if c.IsSet(flagTopK) {
		appConfig.Detector.TopK = c.Int(flagTopK)
	}
	if c.IsSet(flagSave) {
		appConfig.Output.Save = c.Bool(flagSave)
	}
	if c.IsSet(flagVis) {
		appConfig.Output.Visualize = c.Bool(flagVis)
	}
	if c.IsSet(flagOutput) {
		appConfig.Output.SavePath = c.String(flagOutput)
		appConfig.Output.OutputDir = c.String(flagOutput)
	}
	return appConfig, nil
}

//go:build gocv

package yunet

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// gocvEngine 基于 OpenCV FaceDetectorYN 的推理引擎，支持全部后端与设备组合
type gocvEngine struct {
	detector  gocv.FaceDetectorYN
	inputSize image.Point
	logger    *zap.SugaredLogger
}

func openEngine(config ModelConfig, logger *zap.SugaredLogger) (Engine, error) {
	detector := gocv.NewFaceDetectorYNWithParams(
		config.ModelPath, "", config.InputSize,
		config.ConfThreshold, config.NMSThreshold, config.TopK,
		config.Backend.DNNID(), config.Target.DNNID())
	logger.Infow("使用OpenCV FaceDetectorYN", "backend", config.Backend.String(), "target", config.Target.String())
	return &gocvEngine{detector: detector, inputSize: config.InputSize, logger: logger}, nil
}

func (e *gocvEngine) SetInputSize(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return errors.Errorf("无效的输入尺寸 %v", size)
	}
	e.detector.SetInputSize(size)
	e.inputSize = size
	return nil
}

func (e *gocvEngine) Detect(img image.Image) (RawTable, error) {
	if img.Bounds().Size() != e.inputSize {
		return RawTable{}, &InferenceError{
			Reason: fmt.Sprintf("图像尺寸%v与输入尺寸%v不一致", img.Bounds().Size(), e.inputSize),
		}
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return RawTable{}, errors.Wrap(err, "图像转换失败")
	}
	defer mat.Close()

	faces := gocv.NewMat()
	defer faces.Close()
	e.detector.Detect(mat, &faces)

	table := RawTable{Rows: faces.Rows(), Cols: faces.Cols()}
	if table.Rows == 0 {
		return RawTable{Cols: RowWidth}, nil
	}
	table.Data = make([]float32, 0, table.Rows*table.Cols)
	for r := 0; r < table.Rows; r++ {
		for c := 0; c < table.Cols; c++ {
			table.Data = append(table.Data, faces.GetFloatAt(r, c))
		}
	}
	return table, nil
}

func (e *gocvEngine) Close() error {
	e.detector.Close()
	return nil
}

package yunet

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// 支持的图像格式
var supportedImageFormats = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsImageFile 根据扩展名判断是否为支持的图片
func IsImageFile(path string) bool {
	return supportedImageFormats[strings.ToLower(filepath.Ext(path))]
}

// ImageResult 目录处理中单张图片的结果
type ImageResult struct {
	Index      int
	InputPath  string
	OutputPath string // 未保存时为空
	Faces      Faces
}

// DirOptions 目录批量处理选项
type DirOptions struct {
	InputDir  string
	OutputDir string // 为空时不保存结果
	Logger    *zap.SugaredLogger
	// OnResult 每张图片处理完成后调用，可为 nil
	OnResult func(ImageResult)
}

// RunImageDir 对目录中的每张图片执行检测，单张失败只记录日志并跳过
// 返回成功处理的图片数
func RunImageDir(ctx context.Context, det *Detector, opts DirOptions, out io.Writer) (int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return 0, &IOError{Op: "创建输出目录", Path: opts.OutputDir, Err: err}
		}
	}

	entries, err := os.ReadDir(opts.InputDir)
	if err != nil {
		return 0, &IOError{Op: "读取输入目录", Path: opts.InputDir, Err: err}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if IsImageFile(entry.Name()) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	processed := 0
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			logger.Infow("目录处理已取消", "processed", processed)
			return processed, nil
		}

		inputPath := filepath.Join(opts.InputDir, name)
		img, err := loadColorImage(inputPath)
		if err != nil {
			logger.Warnw("读取图像失败", "path", inputPath, "error", err)
			continue
		}

		size := img.Bounds().Size()
		if err := det.SetInputSize(size.X, size.Y); err != nil {
			logger.Warnw("设置输入尺寸失败", "path", inputPath, "error", err)
			continue
		}

		faces, err := det.Infer(img)
		if err != nil {
			logger.Warnw("处理图像失败", "path", inputPath, "error", err)
			continue
		}

		if out != nil {
			fmt.Fprintf(out, "%s: ", name)
		}
		WriteReport(out, faces)

		result := ImageResult{Index: i, InputPath: inputPath, Faces: faces}
		if opts.OutputDir != "" {
			outputPath := filepath.Join(opts.OutputDir, fmt.Sprintf("frame_%04d.jpg", i))
			if err := imaging.Save(Visualize(img, faces, NoFPS), outputPath); err != nil {
				logger.Warnw("保存图像失败", "path", outputPath, "error", err)
				continue
			}
			result.OutputPath = outputPath
		}

		processed++
		logger.Debugw("处理完成", "input", name, "output", result.OutputPath, "faces", len(faces))
		if opts.OnResult != nil {
			opts.OnResult(result)
		}
	}

	return processed, nil
}

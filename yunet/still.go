package yunet

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// DefaultSavePath 默认结果保存路径
const DefaultSavePath = "result.jpg"

// ResultWindowTitle 静态图片结果窗口标题
const ResultWindowTitle = "Face Detection Result"

// ImageOptions 静态图片处理选项
type ImageOptions struct {
	Path      string // 输入图片路径
	Save      bool   // 是否保存结果
	SavePath  string // 保存路径，为空时使用 DefaultSavePath
	Visualize bool   // 是否显示结果窗口
}

// DefaultImageOptions 默认选项：不保存，显示窗口
func DefaultImageOptions(path string) ImageOptions {
	return ImageOptions{
		Path:      path,
		SavePath:  DefaultSavePath,
		Visualize: true,
	}
}

// WithSave 设置是否保存以及保存路径
func (o ImageOptions) WithSave(save bool, path string) ImageOptions {
	o.Save = save
	if path != "" {
		o.SavePath = path
	}
	return o
}

// WithVisualize 设置是否显示窗口
func (o ImageOptions) WithVisualize(visualize bool) ImageOptions {
	o.Visualize = visualize
	return o
}

// loadColorImage 读取图片，灰度图转换为彩色 NRGBA
func loadColorImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	if channelCount(img.ColorModel()) != 3 {
		return imaging.Clone(img), nil
	}
	return img, nil
}

// RunImage 处理单张图片：加载、设置尺寸、推理、报告、绘制、保存、显示
// display 只在 Visualize 为 true 时使用
func RunImage(ctx context.Context, det *Detector, opts ImageOptions, display Display, out io.Writer) (Faces, error) {
	img, err := loadColorImage(opts.Path)
	if err != nil {
		return nil, &IOError{Op: "读取图片", Path: opts.Path, Err: err}
	}

	// 默认构造尺寸可能与图片不同，这里总是按实际尺寸设置
	size := img.Bounds().Size()
	if err := det.SetInputSize(size.X, size.Y); err != nil {
		return nil, err
	}

	faces, err := det.Infer(img)
	if err != nil {
		return nil, err
	}

	WriteReport(out, faces)

	result := Visualize(img, faces, NoFPS)

	if opts.Save {
		savePath := opts.SavePath
		if savePath == "" {
			savePath = DefaultSavePath
		}
		if err := imaging.Save(result, savePath); err != nil {
			return faces, &IOError{Op: "保存图片", Path: savePath, Err: err}
		}
		fmt.Fprintf(out, "Results saved to %s\n", savePath)
	}

	if opts.Visualize && display != nil {
		display.Show(result)
		display.WaitKey(ctx, 0)
	}

	return faces, nil
}

// WriteReport 输出每张人脸的文本报告
func WriteReport(out io.Writer, faces Faces) {
	if out == nil {
		return
	}
	fmt.Fprintf(out, "%d faces detected:\n", len(faces))
	for i, face := range faces {
		fmt.Fprintln(out, face.Report(i))
	}
}

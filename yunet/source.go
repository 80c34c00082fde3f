package yunet

import (
	"fmt"
	"image"
	"os"
	"strings"

	vidio "github.com/AlexEidt/Vidio"
	"github.com/pkg/errors"
)

// InputSource 输入源：摄像头设备号或视频文件路径，二选一
type InputSource struct {
	Type   string // "camera", "file"
	Device int    // 摄像头设备号
	Path   string // 视频文件路径
}

// NewCameraInput 创建摄像头输入源
func NewCameraInput(device int) InputSource {
	return InputSource{Type: "camera", Device: device}
}

// NewFileInput 创建视频文件输入源
func NewFileInput(path string) InputSource {
	return InputSource{Type: "file", Path: path}
}

func (is InputSource) String() string {
	if is.Type == "camera" {
		return fmt.Sprintf("camera:%d", is.Device)
	}
	return is.Path
}

// IsRealTime 判断是否为实时输入源
func (is InputSource) IsRealTime() bool {
	return is.Type == "camera"
}

// Validate 验证输入源
func (is InputSource) Validate() error {
	switch is.Type {
	case "camera":
		if is.Device < 0 {
			return errors.Errorf("无效的摄像头设备号: %d", is.Device)
		}
	case "file":
		if strings.TrimSpace(is.Path) == "" {
			return errors.New("视频路径为空")
		}
	default:
		return errors.Errorf("不支持的输入源类型: %s", is.Type)
	}
	return nil
}

// FrameSource 逐帧读取的视频源
type FrameSource interface {
	// Size 原始帧尺寸
	Size() image.Point
	// Read 读取下一帧，没有更多帧时返回 false
	Read() (image.Image, bool)
	Close() error
}

// SourceOpener 打开输入源的函数
type SourceOpener func(InputSource) (FrameSource, error)

// OpenSource 使用 Vidio 打开摄像头或视频文件
func OpenSource(input InputSource) (FrameSource, error) {
	if err := input.Validate(); err != nil {
		return nil, &SourceError{Source: input.String(), Err: err}
	}

	switch input.Type {
	case "camera":
		camera, err := vidio.NewCamera(input.Device)
		if err != nil {
			return nil, &SourceError{Source: input.String(), Err: err}
		}
		return &vidioSource{
			size:   image.Pt(camera.Width(), camera.Height()),
			read:   camera.Read,
			buffer: camera.FrameBuffer,
			close:  camera.Close,
		}, nil
	default:
		if _, err := os.Stat(input.Path); err != nil {
			return nil, &SourceError{Source: input.String(), Err: err}
		}
		video, err := vidio.NewVideo(input.Path)
		if err != nil {
			return nil, &SourceError{Source: input.String(), Err: err}
		}
		return &vidioSource{
			size:   image.Pt(video.Width(), video.Height()),
			read:   video.Read,
			buffer: video.FrameBuffer,
			close:  video.Close,
		}, nil
	}
}

// vidioSource 适配 Vidio 的 Camera 与 Video
type vidioSource struct {
	size   image.Point
	read   func() bool
	buffer func() []byte
	close  func()
	closed bool
}

func (s *vidioSource) Size() image.Point {
	return s.size
}

func (s *vidioSource) Read() (image.Image, bool) {
	if s.closed || !s.read() {
		return nil, false
	}
	return convertFrameBufferToImage(s.buffer(), s.size.X, s.size.Y), true
}

func (s *vidioSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.close()
	return nil
}

// convertFrameBufferToImage 将Vidio的帧缓冲区（RGBA）复制为Go图像
func convertFrameBufferToImage(frameBuffer []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, frameBuffer)
	return img
}

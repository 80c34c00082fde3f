package yunet

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// NoFPS 静态图片不显示帧率
const NoFPS = -1.0

const (
	labelFontSize  = 12
	landmarkRadius = 2
)

var (
	boxColor = color.RGBA{0, 255, 0, 255}

	// 关键点颜色与 Landmark 顺序一一对应
	landmarkColors = [NumLandmarks]color.RGBA{
		RightEye:         {0, 0, 255, 255},   // 蓝
		LeftEye:          {255, 0, 0, 255},   // 红
		NoseTip:          {0, 255, 0, 255},   // 绿
		RightMouthCorner: {255, 0, 255, 255}, // 品红
		LeftMouthCorner:  {255, 255, 0, 255}, // 黄
	}

	labelFont *truetype.Font
)

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// BoxColor 返回检测框颜色
func BoxColor() color.RGBA {
	return boxColor
}

// LandmarkColor 返回关键点颜色
func LandmarkColor(l Landmark) color.RGBA {
	return landmarkColors[l]
}

func newLabelFace() font.Face {
	return truetype.NewFace(labelFont, &truetype.Options{Size: labelFontSize})
}

// Visualize 在图像副本上绘制检测结果，fps < 0 时不绘制帧率
func Visualize(img image.Image, faces Faces, fps float64) *image.RGBA {
	// 复制到从原点开始的RGBA，gg 的坐标从0开始
	bounds := img.Bounds()
	origin := bounds.Min
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, origin, draw.Src)
	dc := gg.NewContextForRGBA(canvas)

	if fps >= 0 || len(faces) > 0 {
		dc.SetFontFace(newLabelFace())
	}

	if fps >= 0 {
		dc.SetColor(boxColor)
		dc.DrawString(fmt.Sprintf("FPS: %.2f", fps), 0, 15)
	}

	for _, face := range faces {
		x := float64(face.X() - origin.X)
		y := float64(face.Y() - origin.Y)
		w, h := float64(face.W()), float64(face.H())

		dc.SetColor(boxColor)
		dc.SetLineWidth(1)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()

		dc.DrawString(fmt.Sprintf("%.4f", face.Confidence), x+float64(face.W()/2), y-10)

		for j, p := range face.Landmarks {
			dc.SetColor(landmarkColors[j])
			dc.DrawCircle(float64(p.X-origin.X), float64(p.Y-origin.Y), landmarkRadius)
			dc.Fill()
		}
	}

	return canvas
}

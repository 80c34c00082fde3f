package yunet

import (
	"fmt"
	"image"
)

// Landmark 人脸关键点索引，顺序固定（渲染颜色按此索引取色）
type Landmark int

const (
	RightEye         Landmark = iota // 右眼
	LeftEye                          // 左眼
	NoseTip                          // 鼻尖
	RightMouthCorner                 // 右嘴角
	LeftMouthCorner                  // 左嘴角
)

// NumLandmarks 每张人脸的关键点数量
const NumLandmarks = 5

func (l Landmark) String() string {
	switch l {
	case RightEye:
		return "right_eye"
	case LeftEye:
		return "left_eye"
	case NoseTip:
		return "nose_tip"
	case RightMouthCorner:
		return "right_mouth_corner"
	case LeftMouthCorner:
		return "left_mouth_corner"
	default:
		return fmt.Sprintf("landmark(%d)", int(l))
	}
}

// 检测器原始输出的行格式：x, y, w, h, 5对关键点坐标, 置信度
const (
	colX        = 0
	colY        = 1
	colW        = 2
	colH        = 3
	colLandmark = 4
	colScore    = 14

	// RowWidth 每一行的列数
	RowWidth = 15
)

// RawTable 检测器返回的原始数值表（行优先）
type RawTable struct {
	Rows int
	Cols int
	Data []float32
}

// Row 返回第i行
func (t RawTable) Row(i int) []float32 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// Face 单张人脸检测结果
type Face struct {
	Box        image.Rectangle
	Confidence float32
	Landmarks  [NumLandmarks]image.Point
}

func (f Face) X() int { return f.Box.Min.X }
func (f Face) Y() int { return f.Box.Min.Y }
func (f Face) W() int { return f.Box.Dx() }
func (f Face) H() int { return f.Box.Dy() }

// Landmark 返回指定关键点坐标
func (f Face) Landmark(l Landmark) image.Point {
	return f.Landmarks[l]
}

// Report 返回单行文本报告
func (f Face) Report(index int) string {
	return fmt.Sprintf("%d: x1=%d, y1=%d, w=%d, h=%d, conf=%.4f",
		index, f.X(), f.Y(), f.W(), f.H(), f.Confidence)
}

// Faces 单帧的检测结果集合，顺序与模型输出一致
type Faces []Face

// DecodeRows 将原始数值表解码为结构化结果
// 列偏移只在这里使用，不向外传递
func DecodeRows(t RawTable) (Faces, error) {
	if t.Rows == 0 {
		return Faces{}, nil
	}
	if t.Cols != RowWidth {
		return nil, &InferenceError{Reason: fmt.Sprintf("检测结果列数为%d，期望%d", t.Cols, RowWidth)}
	}
	if t.Rows < 0 || len(t.Data) != t.Rows*t.Cols {
		return nil, &InferenceError{Reason: fmt.Sprintf("检测结果长度%d与形状%dx%d不符", len(t.Data), t.Rows, t.Cols)}
	}

	faces := make(Faces, 0, t.Rows)
	for i := 0; i < t.Rows; i++ {
		faces = append(faces, decodeRow(t.Row(i)))
	}
	return faces, nil
}

func decodeRow(row []float32) Face {
	x, y := int(row[colX]), int(row[colY])
	w, h := int(row[colW]), int(row[colH])
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}

	face := Face{
		Box:        image.Rect(x, y, x+w, y+h),
		Confidence: clamp01(row[colScore]),
	}
	for j := 0; j < NumLandmarks; j++ {
		face.Landmarks[j] = image.Pt(int(row[colLandmark+2*j]), int(row[colLandmark+2*j+1]))
	}
	return face
}

// encodeRow 编码为原始行格式（引擎与测试使用）
func encodeRow(box [4]float32, landmarks [NumLandmarks][2]float32, score float32) []float32 {
	row := make([]float32, RowWidth)
	row[colX], row[colY], row[colW], row[colH] = box[0], box[1], box[2], box[3]
	for j := 0; j < NumLandmarks; j++ {
		row[colLandmark+2*j] = landmarks[j][0]
		row[colLandmark+2*j+1] = landmarks[j][1]
	}
	row[colScore] = score
	return row
}

func clamp01(v float32) float32 {
	if v != v || v < 0 { // NaN
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

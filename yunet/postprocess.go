package yunet

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// YuNet 输出的特征图步长
var strides = []int{8, 16, 32}

// strideOutputs 单个步长的四组输出
type strideOutputs struct {
	Cls  []float32 // [N]
	Obj  []float32 // [N]
	BBox []float32 // [N*4]
	Kps  []float32 // [N*10]
}

// candidate NMS 之前的候选框
type candidate struct {
	box       [4]float32 // x1, y1, w, h
	landmarks [NumLandmarks][2]float32
	score     float32
}

// padToStride 输入尺寸向上对齐到32的倍数
func padToStride(v int) int {
	const maxStride = 32
	return ((v-1)/maxStride + 1) * maxStride
}

// decodeCandidates 按步长解码无锚框输出
func decodeCandidates(outputs map[int]strideOutputs, padW, padH int, scoreThreshold float32) ([]candidate, error) {
	var candidates []candidate
	for _, stride := range strides {
		out, ok := outputs[stride]
		if !ok {
			return nil, errors.Errorf("缺少步长%d的输出", stride)
		}
		cols, rows := padW/stride, padH/stride
		n := cols * rows
		if len(out.Cls) < n || len(out.Obj) < n || len(out.BBox) < n*4 || len(out.Kps) < n*2*NumLandmarks {
			return nil, errors.Errorf("步长%d的输出长度不足，期望%d个位置", stride, n)
		}

		s := float32(stride)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				idx := r*cols + c
				cls := clamp01(out.Cls[idx])
				obj := clamp01(out.Obj[idx])
				score := float32(math.Sqrt(float64(cls * obj)))
				if score < scoreThreshold {
					continue
				}

				cx := (float32(c) + out.BBox[idx*4+0]) * s
				cy := (float32(r) + out.BBox[idx*4+1]) * s
				w := float32(math.Exp(float64(out.BBox[idx*4+2]))) * s
				h := float32(math.Exp(float64(out.BBox[idx*4+3]))) * s

				cand := candidate{
					box:   [4]float32{cx - w/2, cy - h/2, w, h},
					score: score,
				}
				for k := 0; k < NumLandmarks; k++ {
					cand.landmarks[k][0] = (out.Kps[idx*10+2*k] + float32(c)) * s
					cand.landmarks[k][1] = (out.Kps[idx*10+2*k+1] + float32(r)) * s
				}
				candidates = append(candidates, cand)
			}
		}
	}
	return candidates, nil
}

// iou 计算两个 x,y,w,h 框的交并比
func iou(a, b [4]float32) float32 {
	ax2, ay2 := a[0]+a[2], a[1]+a[3]
	bx2, by2 := b[0]+b[2], b[1]+b[3]

	interW := min(ax2, bx2) - max(a[0], b[0])
	interH := min(ay2, by2) - max(a[1], b[1])
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH
	union := a[2]*a[3] + b[2]*b[3] - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// nonMaxSuppression 按分数降序，先截取topK，再贪心抑制重叠框
func nonMaxSuppression(candidates []candidate, nmsThreshold float32, topK int) []candidate {
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	keep := make([]candidate, 0, len(candidates))
	for _, cand := range candidates {
		suppressed := false
		for _, kept := range keep {
			if iou(cand.box, kept.box) > nmsThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			keep = append(keep, cand)
		}
	}
	return keep
}

// postprocess 将YuNet各步长输出转换为原始行表
func postprocess(outputs map[int]strideOutputs, padW, padH int, config ModelConfig) (RawTable, error) {
	candidates, err := decodeCandidates(outputs, padW, padH, config.ConfThreshold)
	if err != nil {
		return RawTable{}, err
	}
	kept := nonMaxSuppression(candidates, config.NMSThreshold, config.TopK)

	table := RawTable{Rows: len(kept), Cols: RowWidth, Data: make([]float32, 0, len(kept)*RowWidth)}
	for _, cand := range kept {
		table.Data = append(table.Data, encodeRow(cand.box, cand.landmarks, cand.score)...)
	}
	return table, nil
}

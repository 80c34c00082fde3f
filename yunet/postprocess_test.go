package yunet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyOutputs 构造全零的各步长输出
func emptyOutputs(padW, padH int) map[int]strideOutputs {
	outputs := make(map[int]strideOutputs, len(strides))
	for _, stride := range strides {
		n := (padW / stride) * (padH / stride)
		outputs[stride] = strideOutputs{
			Cls:  make([]float32, n),
			Obj:  make([]float32, n),
			BBox: make([]float32, n*4),
			Kps:  make([]float32, n*2*NumLandmarks),
		}
	}
	return outputs
}

func TestPadToStride(t *testing.T) {
	assert.Equal(t, 32, padToStride(1))
	assert.Equal(t, 320, padToStride(320))
	assert.Equal(t, 352, padToStride(321))
	assert.Equal(t, 480, padToStride(480))
	assert.Equal(t, 640, padToStride(638))
}

func TestDecodeCandidates(t *testing.T) {
	outputs := emptyOutputs(32, 32)
	// 步长8的特征图为4x4，位置(行1, 列2)
	out := outputs[8]
	idx := 1*4 + 2
	out.Cls[idx] = 0.64
	out.Obj[idx] = 1
	out.BBox[idx*4+0] = 0.5
	out.BBox[idx*4+1] = 0.5
	out.Kps[idx*10+2*int(NoseTip)] = 0.5
	out.Kps[idx*10+2*int(NoseTip)+1] = 1

	cands, err := decodeCandidates(outputs, 32, 32, 0.5)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	cand := cands[0]
	assert.InDelta(t, 0.8, cand.score, 1e-5)
	assert.InDelta(t, 16, cand.box[0], 1e-4)
	assert.InDelta(t, 8, cand.box[1], 1e-4)
	assert.InDelta(t, 8, cand.box[2], 1e-4)
	assert.InDelta(t, 8, cand.box[3], 1e-4)
	assert.InDelta(t, 16, cand.landmarks[RightEye][0], 1e-4)
	assert.InDelta(t, 8, cand.landmarks[RightEye][1], 1e-4)
	assert.InDelta(t, 20, cand.landmarks[NoseTip][0], 1e-4)
	assert.InDelta(t, 16, cand.landmarks[NoseTip][1], 1e-4)
}

func TestDecodeCandidatesThreshold(t *testing.T) {
	outputs := emptyOutputs(32, 32)
	outputs[16].Cls[0] = 0.25
	outputs[16].Obj[0] = 1

	cands, err := decodeCandidates(outputs, 32, 32, 0.6)
	require.NoError(t, err)
	assert.Empty(t, cands)

	cands, err = decodeCandidates(outputs, 32, 32, 0.4)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestDecodeCandidatesMissingOutputs(t *testing.T) {
	outputs := emptyOutputs(32, 32)
	delete(outputs, 32)
	_, err := decodeCandidates(outputs, 32, 32, 0.5)
	assert.Error(t, err)

	outputs = emptyOutputs(32, 32)
	short := outputs[8]
	short.Kps = short.Kps[:5]
	outputs[8] = short
	_, err = decodeCandidates(outputs, 32, 32, 0.5)
	assert.Error(t, err)
}

func TestIOU(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	assert.InDelta(t, 1, iou(a, a), 1e-6)
	assert.Equal(t, float32(0), iou(a, [4]float32{20, 20, 10, 10}))
	assert.Equal(t, float32(0), iou(a, [4]float32{10, 0, 10, 10}))
	assert.InDelta(t, 25.0/175.0, iou(a, [4]float32{5, 5, 10, 10}), 1e-6)
}

func TestNonMaxSuppression(t *testing.T) {
	newCands := func() []candidate {
		return []candidate{
			{box: [4]float32{50, 50, 10, 10}, score: 0.7},
			{box: [4]float32{1, 1, 10, 10}, score: 0.8},
			{box: [4]float32{0, 0, 10, 10}, score: 0.9},
		}
	}

	kept := nonMaxSuppression(newCands(), 0.3, 5000)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].score)
	assert.Equal(t, float32(0.7), kept[1].score)

	kept = nonMaxSuppression(newCands(), 0.9, 5000)
	require.Len(t, kept, 3)
	assert.Equal(t, float32(0.9), kept[0].score)
	assert.Equal(t, float32(0.8), kept[1].score)
	assert.Equal(t, float32(0.7), kept[2].score)

	kept = nonMaxSuppression(newCands(), 0.3, 1)
	require.Len(t, kept, 1)
	assert.Equal(t, float32(0.9), kept[0].score)

	assert.Empty(t, nonMaxSuppression(nil, 0.3, 10))
}

func TestPostprocess(t *testing.T) {
	outputs := emptyOutputs(32, 32)
	outputs[8].Cls[5] = 1
	outputs[8].Obj[5] = 1
	outputs[32].Cls[0] = 0.81
	outputs[32].Obj[0] = 1

	config := DefaultModelConfig("model.onnx").WithConfThreshold(0.5)
	table, err := postprocess(outputs, 32, 32, config)
	require.NoError(t, err)
	assert.Equal(t, RowWidth, table.Cols)
	require.Equal(t, 2, table.Rows)

	faces, err := DecodeRows(table)
	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.Equal(t, float32(1), faces[0].Confidence)
	assert.InDelta(t, 0.9, faces[1].Confidence, 1e-5)
	// 步长8位置5为(行1,列1)，中心(8,8)，宽高8
	assert.Equal(t, 4, faces[0].X())
	assert.Equal(t, 4, faces[0].Y())
	assert.Equal(t, 8, faces[0].W())
}

func TestPostprocessNoFaces(t *testing.T) {
	table, err := postprocess(emptyOutputs(64, 32), 64, 32, DefaultModelConfig("model.onnx"))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Rows)

	faces, err := DecodeRows(table)
	require.NoError(t, err)
	assert.Empty(t, faces)
}

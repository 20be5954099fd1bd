package cv

import (
	"math"

	"gocv.io/x/gocv"
)

// DefaultAlphaThreshold alpha 大于该值的像素视为模板的一部分
const DefaultAlphaThreshold uint8 = 10

// AlphaMask 从 BGRA 图像提取二值掩码（alpha > threshold 为 255，其余为 0）
// 图像没有 alpha 通道时返回空 Mat 与 false，表示整幅图像都参与匹配。
func AlphaMask(src gocv.Mat, threshold uint8) (gocv.Mat, bool) {
	if src.Empty() || src.Channels() != 4 {
		return gocv.NewMat(), false
	}

	channels := gocv.Split(src)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	mask := gocv.NewMat()
	gocv.Threshold(channels[3], &mask, float32(threshold), 255, gocv.ThresholdBinary)
	return mask, true
}

// maskAllows 判断坐标点四舍五入后是否落在掩码的非零像素上
// 掩码为空时总是允许
func maskAllows(mask gocv.Mat, x, y float64) bool {
	if mask.Empty() {
		return true
	}
	col := int(math.Round(x))
	row := int(math.Round(y))
	if col < 0 || row < 0 || col >= mask.Cols() || row >= mask.Rows() {
		return false
	}
	return mask.GetUCharAt(row, col) != 0
}

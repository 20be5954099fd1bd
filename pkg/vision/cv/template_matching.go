package cv

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// MatchTemplateMasked 在场景灰度图中用带掩码的 TM_CCORR_NORMED 查找模板的最佳位置
// mask 为空或全零时不使用掩码。模板大于场景时返回 *ImageSizeError。
func MatchTemplateMasked(sceneGray, tmplGray, mask gocv.Mat) (*TemplateMatchResult, error) {
	if sceneGray.Empty() || tmplGray.Empty() {
		return nil, ErrEmptyImage
	}
	if err := checkSourceLargerThanSearch(sceneGray, tmplGray); err != nil {
		return nil, err
	}

	useMask := gocv.NewMat()
	defer useMask.Close()
	if !mask.Empty() {
		if mask.Rows() != tmplGray.Rows() || mask.Cols() != tmplGray.Cols() {
			return nil, fmt.Errorf("掩码尺寸 %dx%d 与模板尺寸 %dx%d 不一致",
				mask.Cols(), mask.Rows(), tmplGray.Cols(), tmplGray.Rows())
		}
		if gocv.CountNonZero(mask) > 0 {
			mask.CopyTo(&useMask)
		}
	}

	result := gocv.NewMat()
	defer result.Close()
	gocv.MatchTemplate(sceneGray, tmplGray, &result, gocv.TmCcorrNormed, useMask)
	if result.Empty() {
		return nil, fmt.Errorf("模板匹配失败")
	}

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)

	return &TemplateMatchResult{
		X:      maxLoc.X,
		Y:      maxLoc.Y,
		Width:  tmplGray.Cols(),
		Height: tmplGray.Rows(),
		Score:  finiteOrZero(float64(maxVal)),
	}, nil
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// checkSourceLargerThanSearch 检查场景图像是否不小于模板
func checkSourceLargerThanSearch(source, search gocv.Mat) error {
	if source.Rows() < search.Rows() || source.Cols() < search.Cols() {
		return &ImageSizeError{
			SourceSize: [2]int{source.Cols(), source.Rows()},
			SearchSize: [2]int{search.Cols(), search.Rows()},
		}
	}
	return nil
}

// ImageSizeError 模板尺寸大于场景
type ImageSizeError struct {
	SourceSize [2]int
	SearchSize [2]int
}

func (e *ImageSizeError) Error() string {
	return fmt.Sprintf("模板尺寸 %dx%d 大于场景尺寸 %dx%d",
		e.SearchSize[0], e.SearchSize[1], e.SourceSize[0], e.SourceSize[1])
}

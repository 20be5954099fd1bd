package cv

import (
	"gocv.io/x/gocv"
)

// DefaultRatio Lowe 比率检验默认阈值
const DefaultRatio = 0.75

// MatchDescriptors 以模板描述子为查询，在场景描述子中做 kNN(k=2) 暴力匹配并执行比率检验
// 返回通过检验的对应关系（按模板描述子顺序）以及参与查询的描述子数量。
func MatchDescriptors(tmpl, scene *Features, norm gocv.NormType, ratio float64) ([]Correspondence, int) {
	if tmpl.Empty() || scene.Empty() {
		return nil, 0
	}

	matcher := gocv.NewBFMatcherWithParams(norm, false)
	defer matcher.Close()

	knn := matcher.KnnMatch(tmpl.Descriptors, scene.Descriptors, 2)
	return RatioTest(knn, ratio), len(knn)
}

// RatioTest 保留最近邻距离严格小于 ratio 倍次近邻距离的匹配
// 邻居不足两个的查询直接丢弃，输出保持输入顺序。
func RatioTest(knn [][]gocv.DMatch, ratio float64) []Correspondence {
	var good []Correspondence
	for _, m := range knn {
		if len(m) < 2 {
			continue
		}
		d1 := float64(m[0].Distance)
		d2 := float64(m[1].Distance)
		if d1 < ratio*d2 {
			good = append(good, Correspondence{
				TemplateIdx:    m[0].QueryIdx,
				SceneIdx:       m[0].TrainIdx,
				Distance:       d1,
				SecondDistance: d2,
			})
		}
	}
	return good
}

// Package vision 在拍摄的场景图中定位（可带透明通道的）模板图像
package vision

import (
	"github.com/zoeyai/subimage/pkg/vision/cv"
	"github.com/zoeyai/subimage/pkg/vision/geom"
)

// Version 版本号
const Version = "1.0.0"

// Status 匹配结果状态
type Status string

const (
	// StatusHomography 特征点匹配 + 单应性估计成功
	StatusHomography Status = "homography"
	// StatusTemplateMatch 回退到模板匹配
	StatusTemplateMatch Status = "template_match"
	// StatusFailed 特征点路径失败且回退被关闭
	StatusFailed Status = "failed"
	// StatusError 输入无法读取，仅由批处理记录
	StatusError Status = "error"
)

// 失败原因
const (
	ReasonNoDescriptors    = "no_descriptors"
	ReasonHomographyFailed = "homography_failed"
)

// HomographyMatch 单应性路径的结果
type HomographyMatch struct {
	// Polygon 模板四角在场景中的位置（左上、右上、右下、左下）
	Polygon geom.Polygon `json:"poly"`
	// Matrix 模板 -> 场景的 3x3 矩阵
	Matrix geom.Homography `json:"matrix"`
	// Inliers RANSAC 内点数量，至少为 4
	Inliers int `json:"inliers"`
	// ReprojError 内点平均重投影误差（像素），仅供参考
	ReprojError float64 `json:"reproj_error"`
	// GoodMatchRatio 通过比率检验的匹配数 / 原始查询数
	GoodMatchRatio float64 `json:"good_match_ratio"`
}

// TemplateMatch 回退模板匹配的结果
type TemplateMatch struct {
	// Polygon 轴对齐矩形，尺寸与模板一致
	Polygon geom.Polygon `json:"poly"`
	// Score 归一化互相关得分
	Score float64 `json:"score"`
}

// Diagnostics 诊断计数
type Diagnostics struct {
	NumKpScene     int `json:"num_kp_scene"`
	NumKpTemplate  int `json:"num_kp_tmpl"`
	NumMatchesRaw  int `json:"num_matches_raw"`
	NumMatchesGood int `json:"num_matches_good"`
}

// Visualization 可视化所需的匹配明细
type Visualization struct {
	TemplateKeypoints []geom.Point        `json:"template_keypoints"`
	SceneKeypoints    []geom.Point        `json:"scene_keypoints"`
	Matches           []cv.Correspondence `json:"matches"`
	// Inliers 与 Matches 一一对应，未执行 RANSAC 时为空
	Inliers []bool `json:"inliers,omitempty"`
}

// MatchResult 一对 (场景, 模板) 的定位结果
// Homography 与 TemplateMatch 至多一个非空
type MatchResult struct {
	Scene    string          `json:"scene,omitempty"`
	Template string          `json:"template,omitempty"`
	Detector cv.DetectorKind `json:"detector"`
	Status   Status          `json:"status"`
	// Reason 特征点路径未成功的原因，回退成功时保留
	Reason string `json:"reason,omitempty"`
	// FailureKind Reason 对应的错误分类
	FailureKind ErrorKind `json:"failure_kind,omitempty"`

	Homography    *HomographyMatch `json:"homography,omitempty"`
	TemplateMatch *TemplateMatch   `json:"template_match,omitempty"`

	Diagnostics   Diagnostics    `json:"diagnostics"`
	Visualization *Visualization `json:"visualization,omitempty"`

	// Error 输入错误信息，仅 StatusError 时设置
	Error string `json:"error,omitempty"`
	// Time 耗时（毫秒）
	Time float64 `json:"time,omitempty"`
}

// Polygon 返回结果四边形
func (r *MatchResult) Polygon() (geom.Polygon, bool) {
	switch {
	case r == nil:
		return geom.Polygon{}, false
	case r.Homography != nil:
		return r.Homography.Polygon, true
	case r.TemplateMatch != nil:
		return r.TemplateMatch.Polygon, true
	default:
		return geom.Polygon{}, false
	}
}

// Found 是否得到了四边形
func (r *MatchResult) Found() bool {
	_, ok := r.Polygon()
	return ok
}

// ErrorResult 为无法读取的输入构造结果记录
func ErrorResult(scene, template string, detector cv.DetectorKind, err error) *MatchResult {
	res := &MatchResult{
		Scene:    scene,
		Template: template,
		Detector: detector,
		Status:   StatusError,
		Reason:   string(ErrInputReadFailure),
	}
	if err != nil {
		res.Error = err.Error()
		if kind := KindOf(err); kind != "" {
			res.Reason = string(kind)
		}
	}
	res.FailureKind = ErrorKind(res.Reason)
	return res
}

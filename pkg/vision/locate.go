package vision

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/subimage/internal/logger"
	"github.com/zoeyai/subimage/pkg/vision/cv"
	"github.com/zoeyai/subimage/pkg/vision/geom"
)

// 单应性至少需要的对应点 / 内点数量
const minHomographyPoints = 4

// Locator 模板定位器
// 创建后只读，可在多个 goroutine 间共享；每次调用独立创建并释放检测器。
type Locator struct {
	opts Options
}

// NewLocator 校验配置并创建定位器
func NewLocator(opts Options) (*Locator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Locator{opts: opts}, nil
}

// Options 返回定位器使用的配置
func (l *Locator) Options() Options {
	return l.opts
}

// Locate 在场景中定位模板
// 只有输入无法使用时返回 error（*Error，Kind 为 input_read_failure）；
// 其余情况都以 MatchResult.Status 表示结果。
func (l *Locator) Locate(scene, template image.Image) (*MatchResult, error) {
	sceneMat, err := cv.ImageToMat(scene)
	if err != nil {
		return nil, inputError("场景图像无效", err)
	}
	defer sceneMat.Close()

	tmplMat, err := cv.ImageToMat(template)
	if err != nil {
		return nil, inputError("模板图像无效", err)
	}
	defer tmplMat.Close()

	return l.LocateMat(sceneMat, tmplMat)
}

// LocateMat 与 Locate 相同，输入为 BGR/BGRA/灰度 Mat
// 模板为 4 通道时 alpha 通道作为掩码
func (l *Locator) LocateMat(scene, template gocv.Mat) (*MatchResult, error) {
	start := time.Now()

	if scene.Empty() {
		return nil, inputError("场景图像为空", cv.ErrEmptyImage)
	}
	if template.Empty() {
		return nil, inputError("模板图像为空", cv.ErrEmptyImage)
	}

	sceneGray := cv.ToGray(scene)
	defer sceneGray.Close()
	tmplGray := cv.ToGray(template)
	defer tmplGray.Close()

	mask, _ := cv.AlphaMask(template, l.opts.AlphaThreshold)
	defer mask.Close()

	res := &MatchResult{Detector: l.opts.Detector}

	kind, reason, err := l.matchFeatures(sceneGray, tmplGray, mask, res)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		res.Time = elapsedMs(start)
		return res, nil
	}

	res.Reason = reason
	res.FailureKind = kind

	if !l.opts.EnableFallback {
		logger.Debug("特征点匹配失败 (%s)，回退已关闭", reason)
		res.Status = StatusFailed
		res.Time = elapsedMs(start)
		return res, nil
	}

	logger.Debug("特征点匹配失败 (%s)，回退到模板匹配", reason)
	tm, err := cv.MatchTemplateMasked(sceneGray, tmplGray, mask)
	if err != nil {
		return nil, inputError("模板匹配回退失败", err)
	}

	res.Status = StatusTemplateMatch
	res.TemplateMatch = &TemplateMatch{
		Polygon: geom.RectPolygon(float64(tm.X), float64(tm.Y), float64(tm.Width), float64(tm.Height)),
		Score:   tm.Score,
	}
	res.Time = elapsedMs(start)
	return res, nil
}

// matchFeatures 特征点路径
// 成功时写入 res.Homography 并返回空的 ErrorKind；失败时返回失败分类与原因。
func (l *Locator) matchFeatures(sceneGray, tmplGray, mask gocv.Mat, res *MatchResult) (ErrorKind, string, error) {
	det, err := cv.NewDetector(l.opts.Detector, l.opts.MaxFeatures)
	if err != nil {
		return "", "", &Error{Kind: ErrInvalidConfiguration, Message: "创建检测器失败", Cause: err}
	}
	defer det.Close()

	tmplFeats, err := det.Detect(tmplGray, mask)
	if err != nil {
		return "", "", inputError("模板特征检测失败", err)
	}
	defer tmplFeats.Close()

	noMask := gocv.NewMat()
	defer noMask.Close()
	sceneFeats, err := det.Detect(sceneGray, noMask)
	if err != nil {
		return "", "", inputError("场景特征检测失败", err)
	}
	defer sceneFeats.Close()

	res.Diagnostics.NumKpTemplate = tmplFeats.Len()
	res.Diagnostics.NumKpScene = sceneFeats.Len()
	if l.opts.EmitMatchVisualization {
		res.Visualization = &Visualization{
			TemplateKeypoints: keypointsToPoints(tmplFeats.Keypoints),
			SceneKeypoints:    keypointsToPoints(sceneFeats.Keypoints),
		}
	}

	if tmplFeats.Empty() || sceneFeats.Empty() {
		return ErrNoDescriptors, ReasonNoDescriptors, nil
	}

	good, raw := cv.MatchDescriptors(tmplFeats, sceneFeats, det.Norm(), l.opts.Ratio)
	res.Diagnostics.NumMatchesRaw = raw
	res.Diagnostics.NumMatchesGood = len(good)
	if res.Visualization != nil {
		res.Visualization.Matches = good
	}

	if len(good) < max(l.opts.MinMatches, minHomographyPoints) {
		return ErrInsufficientMatches, notEnoughGoodMatches(len(good)), nil
	}

	kind, reason := l.estimate(tmplFeats.Keypoints, sceneFeats.Keypoints, good, tmplGray.Cols(), tmplGray.Rows(), res)
	return kind, reason, nil
}

// estimate RANSAC 估计单应性并投影模板角点
func (l *Locator) estimate(tmplKps, sceneKps []gocv.KeyPoint, good []cv.Correspondence, w, h int, res *MatchResult) (ErrorKind, string) {
	src, dst := correspondencePoints(tmplKps, sceneKps, good)

	H, inliers, err := geom.EstimateHomography(src, dst, l.ransacParams())
	if err != nil {
		logger.Debug("单应性估计失败: %v", err)
		return ErrHomographyDegenerate, ReasonHomographyFailed
	}
	if res.Visualization != nil {
		res.Visualization.Inliers = inliers
	}

	n := geom.CountInliers(inliers)
	if n < minHomographyPoints {
		return ErrHomographyDegenerate, ReasonHomographyFailed
	}

	poly, err := geom.ProjectCorners(H, float64(w), float64(h))
	if err != nil || !poly.IsFinite() {
		return ErrHomographyDegenerate, ReasonHomographyFailed
	}

	reproj, _ := geom.ReprojectionError(H, src, dst, inliers)

	ratio := 0.0
	if raw := res.Diagnostics.NumMatchesRaw; raw > 0 {
		ratio = float64(len(good)) / float64(raw)
	}

	res.Status = StatusHomography
	res.Homography = &HomographyMatch{
		Polygon:        poly,
		Matrix:         H,
		Inliers:        n,
		ReprojError:    reproj,
		GoodMatchRatio: ratio,
	}
	return "", ""
}

func (l *Locator) ransacParams() geom.RANSACParams {
	return geom.RANSACParams{
		Threshold:     l.opts.RansacThreshold,
		MaxIterations: l.opts.MaxIterations,
		Confidence:    l.opts.Confidence,
		Seed:          l.opts.Seed,
	}
}

func correspondencePoints(tmplKps, sceneKps []gocv.KeyPoint, good []cv.Correspondence) ([]geom.Point, []geom.Point) {
	src := make([]geom.Point, len(good))
	dst := make([]geom.Point, len(good))
	for i, c := range good {
		src[i] = geom.Pt(tmplKps[c.TemplateIdx].X, tmplKps[c.TemplateIdx].Y)
		dst[i] = geom.Pt(sceneKps[c.SceneIdx].X, sceneKps[c.SceneIdx].Y)
	}
	return src, dst
}

func keypointsToPoints(kps []gocv.KeyPoint) []geom.Point {
	pts := make([]geom.Point, len(kps))
	for i, kp := range kps {
		pts[i] = geom.Pt(kp.X, kp.Y)
	}
	return pts
}

func notEnoughGoodMatches(n int) string {
	return fmt.Sprintf("not_enough_good_matches(%d)", n)
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

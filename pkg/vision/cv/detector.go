package cv

import (
	"fmt"
	"sort"

	"gocv.io/x/gocv"
)

const (
	// DefaultMaxFeatures 默认最大特征点数量（SIFT 与 ORB）
	DefaultMaxFeatures = 4000

	siftOctaveLayers      = 3
	siftContrastThreshold = 0.04
	siftEdgeThreshold     = 10
	siftSigma             = 1.6

	orbScaleFactor   = 1.2
	orbLevels        = 8
	orbEdgeThreshold = 31
	orbPatchSize     = 31
	orbFastThreshold = 20
)

// Detector 特征点检测器接口
type Detector interface {
	// Kind 算法类型
	Kind() DetectorKind
	// Norm 描述子匹配时使用的距离类型
	Norm() gocv.NormType
	// Detect 在灰度图上检测特征点并计算描述子
	// mask 为空表示整幅图像；非空时返回的特征点全部落在掩码非零像素上
	Detect(gray, mask gocv.Mat) (*Features, error)
	// Close 释放资源
	Close()
}

// NewDetector 按算法类型创建检测器
// maxFeatures 限制 SIFT 和 ORB 保留的特征点数量，<=0 时使用 DefaultMaxFeatures；AKAZE 不受限制
func NewDetector(kind DetectorKind, maxFeatures int) (Detector, error) {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	switch kind {
	case DetectorSIFT:
		sift := gocv.NewSIFTWithParams(maxFeatures, siftOctaveLayers, siftContrastThreshold,
			siftEdgeThreshold, siftSigma)
		return &siftDetector{sift: sift}, nil
	case DetectorORB:
		orb := gocv.NewORBWithParams(maxFeatures, orbScaleFactor, orbLevels, orbEdgeThreshold,
			0, 2, gocv.ORBScoreTypeHarris, orbPatchSize, orbFastThreshold)
		return &orbDetector{orb: orb}, nil
	case DetectorAKAZE:
		return &akazeDetector{akaze: gocv.NewAKAZE()}, nil
	default:
		return nil, fmt.Errorf("不支持的特征检测算法: %q", kind)
	}
}

// siftDetector SIFT 特征点检测
type siftDetector struct {
	sift gocv.SIFT
}

func (d *siftDetector) Kind() DetectorKind  { return DetectorSIFT }
func (d *siftDetector) Norm() gocv.NormType { return DetectorSIFT.Norm() }

func (d *siftDetector) Detect(gray, mask gocv.Mat) (*Features, error) {
	if err := checkDetectInput(gray, mask); err != nil {
		return nil, err
	}
	kps, desc := d.sift.DetectAndCompute(gray, mask)
	return restrictToMask(kps, desc, mask)
}

func (d *siftDetector) Close() {
	d.sift.Close()
}

// orbDetector ORB 特征点检测（Harris 评分）
type orbDetector struct {
	orb gocv.ORB
}

func (d *orbDetector) Kind() DetectorKind  { return DetectorORB }
func (d *orbDetector) Norm() gocv.NormType { return DetectorORB.Norm() }

func (d *orbDetector) Detect(gray, mask gocv.Mat) (*Features, error) {
	if err := checkDetectInput(gray, mask); err != nil {
		return nil, err
	}
	kps, desc := d.orb.DetectAndCompute(gray, mask)
	return restrictToMask(kps, desc, mask)
}

func (d *orbDetector) Close() {
	d.orb.Close()
}

// akazeDetector AKAZE 特征点检测
type akazeDetector struct {
	akaze gocv.AKAZE
}

func (d *akazeDetector) Kind() DetectorKind  { return DetectorAKAZE }
func (d *akazeDetector) Norm() gocv.NormType { return DetectorAKAZE.Norm() }

func (d *akazeDetector) Detect(gray, mask gocv.Mat) (*Features, error) {
	if err := checkDetectInput(gray, mask); err != nil {
		return nil, err
	}
	kps, desc := d.akaze.DetectAndCompute(gray, mask)
	return restrictToMask(kps, desc, mask)
}

func (d *akazeDetector) Close() {
	d.akaze.Close()
}

func checkDetectInput(gray, mask gocv.Mat) error {
	if gray.Empty() {
		return ErrEmptyImage
	}
	if gray.Channels() != 1 {
		return fmt.Errorf("特征检测需要单通道灰度图，实际通道数: %d", gray.Channels())
	}
	if !mask.Empty() && (mask.Rows() != gray.Rows() || mask.Cols() != gray.Cols()) {
		return fmt.Errorf("掩码尺寸 %dx%d 与图像尺寸 %dx%d 不一致",
			mask.Cols(), mask.Rows(), gray.Cols(), gray.Rows())
	}
	return nil
}

// restrictToMask 删除中心点不在掩码内的特征点及其描述子，并按坐标排序
// 排序保证同一输入总是得到相同顺序的特征点，与 OpenCV 内部线程调度无关。
// 接管 desc 的所有权
func restrictToMask(kps []gocv.KeyPoint, desc gocv.Mat, mask gocv.Mat) (*Features, error) {
	if len(kps) == 0 || desc.Empty() {
		desc.Close()
		return &Features{Descriptors: gocv.NewMat()}, nil
	}
	if desc.Rows() != len(kps) {
		desc.Close()
		return nil, fmt.Errorf("描述子行数 %d 与特征点数量 %d 不一致", desc.Rows(), len(kps))
	}

	keep := make([]int, 0, len(kps))
	for i, kp := range kps {
		if maskAllows(mask, kp.X, kp.Y) {
			keep = append(keep, i)
		}
	}
	sort.SliceStable(keep, func(a, b int) bool {
		return keypointLess(kps[keep[a]], kps[keep[b]])
	})
	if isIdentity(keep, len(kps)) {
		return &Features{Keypoints: kps, Descriptors: desc}, nil
	}
	defer desc.Close()

	if len(keep) == 0 {
		return &Features{Descriptors: gocv.NewMat()}, nil
	}

	data := desc.ToBytes()
	stride := len(data) / desc.Rows()
	kept := make([]byte, 0, len(keep)*stride)
	keptKps := make([]gocv.KeyPoint, 0, len(keep))
	for _, i := range keep {
		kept = append(kept, data[i*stride:(i+1)*stride]...)
		keptKps = append(keptKps, kps[i])
	}

	filtered, err := matFromBytes(len(keep), desc.Cols(), desc.Type(), kept)
	if err != nil {
		return nil, fmt.Errorf("重建描述子失败: %w", err)
	}
	return &Features{Keypoints: keptKps, Descriptors: filtered}, nil
}

func keypointLess(a, b gocv.KeyPoint) bool {
	switch {
	case a.Y != b.Y:
		return a.Y < b.Y
	case a.X != b.X:
		return a.X < b.X
	case a.Size != b.Size:
		return a.Size > b.Size
	case a.Angle != b.Angle:
		return a.Angle < b.Angle
	case a.Response != b.Response:
		return a.Response > b.Response
	default:
		return a.Octave < b.Octave
	}
}

func isIdentity(idx []int, n int) bool {
	if len(idx) != n {
		return false
	}
	for i, v := range idx {
		if i != v {
			return false
		}
	}
	return true
}

package cv

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// DetectorKind 特征检测算法
type DetectorKind string

const (
	DetectorSIFT  DetectorKind = "SIFT"  // 浮点描述子，L2 距离
	DetectorORB   DetectorKind = "ORB"   // 二值描述子，汉明距离
	DetectorAKAZE DetectorKind = "AKAZE" // MLDB 二值描述子，汉明距离
)

// ParseDetectorKind 解析算法名称（不区分大小写）
func ParseDetectorKind(s string) (DetectorKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SIFT":
		return DetectorSIFT, nil
	case "ORB":
		return DetectorORB, nil
	case "AKAZE":
		return DetectorAKAZE, nil
	default:
		return "", fmt.Errorf("不支持的特征检测算法: %q", s)
	}
}

// Norm 描述子距离类型
func (k DetectorKind) Norm() gocv.NormType {
	if k == DetectorSIFT {
		return gocv.NormL2
	}
	return gocv.NormHamming
}

// Features 一张图像的特征点与描述子
// Descriptors 第 i 行对应 Keypoints[i]
type Features struct {
	Keypoints   []gocv.KeyPoint
	Descriptors gocv.Mat
}

// Len 特征点数量
func (f *Features) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Keypoints)
}

// Empty 没有可用的描述子
func (f *Features) Empty() bool {
	return f.Len() == 0 || f.Descriptors.Empty()
}

// Close 释放描述子
func (f *Features) Close() {
	if f == nil {
		return
	}
	f.Descriptors.Close()
}

// Correspondence 通过比率检验的一对描述子匹配
type Correspondence struct {
	TemplateIdx    int     `json:"template_idx"`
	SceneIdx       int     `json:"scene_idx"`
	Distance       float64 `json:"distance"`
	SecondDistance float64 `json:"second_distance"`
}

// TemplateMatchResult 回退模板匹配结果
type TemplateMatchResult struct {
	// X, Y 最佳匹配左上角（整数像素）
	X int `json:"x"`
	Y int `json:"y"`
	// Width, Height 模板尺寸
	Width  int `json:"width"`
	Height int `json:"height"`
	// Score 归一化互相关得分，非有限值记为 0
	Score float64 `json:"score"`
}

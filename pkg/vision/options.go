package vision

import (
	"fmt"

	"github.com/zoeyai/subimage/pkg/vision/cv"
)

// Options 定位流水线配置
// 在处理任何图像对之前调用 Validate 校验一次
type Options struct {
	// 特征点配置
	Detector    cv.DetectorKind // 特征检测算法，默认 SIFT
	MaxFeatures int             // SIFT/ORB 最大特征点数量，默认 4000
	Ratio       float64         // 比率检验阈值，默认 0.75
	MinMatches  int             // 进入 RANSAC 所需的最少匹配数，默认 8

	// RANSAC 配置
	RansacThreshold float64 // 内点重投影阈值（像素），默认 3.0
	MaxIterations   int     // 最大迭代次数，默认 2000
	Confidence      float64 // 自适应迭代置信度，默认 0.995
	Seed            int64   // 随机种子，默认 42

	// 掩码与回退
	AlphaThreshold uint8 // alpha 大于该值视为模板像素，默认 10
	EnableFallback bool  // 特征点匹配失败时是否回退到模板匹配，默认 true

	// 输出
	EmitMatchVisualization bool // 是否在结果中附带特征点与匹配明细，默认 false
}

// DefaultOptions 默认配置
var DefaultOptions = Options{
	Detector:    cv.DetectorSIFT,
	MaxFeatures: cv.DefaultMaxFeatures,
	Ratio:       cv.DefaultRatio,
	MinMatches:  8,

	RansacThreshold: 3.0,
	MaxIterations:   2000,
	Confidence:      0.995,
	Seed:            42,

	AlphaThreshold: cv.DefaultAlphaThreshold,
	EnableFallback: true,

	EmitMatchVisualization: false,
}

// Validate 校验配置
func (o Options) Validate() error {
	if _, err := cv.ParseDetectorKind(string(o.Detector)); err != nil {
		return invalidConfig("%v", err)
	}
	if o.Ratio <= 0 || o.Ratio > 1 {
		return invalidConfig("ratio 必须在 (0, 1] 范围内: %v", o.Ratio)
	}
	if o.MinMatches <= 0 {
		return invalidConfig("min_matches 必须为正数: %d", o.MinMatches)
	}
	if o.RansacThreshold <= 0 {
		return invalidConfig("ransac 阈值必须为正数: %v", o.RansacThreshold)
	}
	if o.MaxIterations <= 0 {
		return invalidConfig("最大迭代次数必须为正数: %d", o.MaxIterations)
	}
	if o.Confidence <= 0 || o.Confidence >= 1 {
		return invalidConfig("置信度必须在 (0, 1) 范围内: %v", o.Confidence)
	}
	if o.MaxFeatures <= 0 {
		return invalidConfig("最大特征点数量必须为正数: %d", o.MaxFeatures)
	}
	return nil
}

func invalidConfig(format string, args ...any) error {
	return &Error{Kind: ErrInvalidConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Option 配置选项函数类型
type Option func(*Options)

// NewOptions 基于默认配置应用选项
func NewOptions(opts ...Option) Options {
	o := DefaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDetector 设置特征检测算法
func WithDetector(kind cv.DetectorKind) Option {
	return func(o *Options) {
		o.Detector = kind
	}
}

// WithRatio 设置比率检验阈值
func WithRatio(ratio float64) Option {
	return func(o *Options) {
		o.Ratio = ratio
	}
}

// WithMinMatches 设置最少匹配数
func WithMinMatches(n int) Option {
	return func(o *Options) {
		o.MinMatches = n
	}
}

// WithRansacThreshold 设置 RANSAC 内点阈值
func WithRansacThreshold(px float64) Option {
	return func(o *Options) {
		o.RansacThreshold = px
	}
}

// WithSeed 设置 RANSAC 随机种子
func WithSeed(seed int64) Option {
	return func(o *Options) {
		o.Seed = seed
	}
}

// WithFallback 启用或关闭模板匹配回退
func WithFallback(enabled bool) Option {
	return func(o *Options) {
		o.EnableFallback = enabled
	}
}

// WithVisualization 在结果中附带匹配明细
func WithVisualization(enabled bool) Option {
	return func(o *Options) {
		o.EmitMatchVisualization = enabled
	}
}

// WithAlphaThreshold 设置透明度阈值
func WithAlphaThreshold(threshold uint8) Option {
	return func(o *Options) {
		o.AlphaThreshold = threshold
	}
}

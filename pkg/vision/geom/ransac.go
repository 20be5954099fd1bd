package geom

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	homographyModelPoints = 4
	// 单次迭代内抽取非退化样本的最大尝试次数
	maxSampleAttempts = 100
)

// RANSACParams RANSAC 参数
type RANSACParams struct {
	// Threshold 内点的最大重投影距离（像素）
	Threshold float64
	// MaxIterations 最大迭代次数
	MaxIterations int
	// Confidence 自适应迭代的置信度 (0-1)
	Confidence float64
	// Seed 随机种子，相同种子与输入得到相同结果
	Seed int64
}

// DefaultRANSACParams 默认参数
func DefaultRANSACParams() RANSACParams {
	return RANSACParams{
		Threshold:     3.0,
		MaxIterations: 2000,
		Confidence:    0.995,
		Seed:          42,
	}
}

// EstimateHomography 使用 RANSAC 鲁棒估计 src -> dst 的单应性矩阵
// 返回矩阵以及每对输入点的内点标记
func EstimateHomography(src, dst []Point, params RANSACParams) (Homography, []bool, error) {
	n := len(src)
	if n != len(dst) {
		return Homography{}, nil, fmt.Errorf("点数不一致: %d vs %d", n, len(dst))
	}
	if n < homographyModelPoints {
		return Homography{}, nil, ErrTooFewPoints
	}
	if params.Threshold <= 0 || params.MaxIterations <= 0 {
		return Homography{}, nil, fmt.Errorf("无效的 RANSAC 参数: threshold=%.3f, iterations=%d", params.Threshold, params.MaxIterations)
	}

	rng := rand.New(rand.NewSource(params.Seed))
	thr2 := params.Threshold * params.Threshold

	var (
		bestH     Homography
		bestCount int
		bestMask  []bool
		mask      = make([]bool, n)
		sampleSrc [homographyModelPoints]Point
		sampleDst [homographyModelPoints]Point
	)

	maxIters := params.MaxIterations
	for iter := 0; iter < maxIters; iter++ {
		if !drawSample(rng, src, dst, &sampleSrc, &sampleDst) {
			continue
		}

		h, err := FitHomography(sampleSrc[:], sampleDst[:])
		if err != nil {
			continue
		}

		count := markInliers(h, src, dst, thr2, mask)
		if count > bestCount {
			bestCount = count
			bestH = h
			bestMask = append(bestMask[:0], mask...)
			outlierRatio := float64(n-count) / float64(n)
			maxIters = updateIterations(params.Confidence, outlierRatio, homographyModelPoints, maxIters)
		}
	}

	if bestCount < homographyModelPoints {
		return Homography{}, nil, ErrNoConsensus
	}

	// 用全部内点重新拟合，仅在内点数不减少时采用
	inSrc := make([]Point, 0, bestCount)
	inDst := make([]Point, 0, bestCount)
	for i, ok := range bestMask {
		if ok {
			inSrc = append(inSrc, src[i])
			inDst = append(inDst, dst[i])
		}
	}
	if refined, err := FitHomography(inSrc, inDst); err == nil {
		if count := markInliers(refined, src, dst, thr2, mask); count >= bestCount {
			return refined, append([]bool(nil), mask...), nil
		}
	}

	return bestH, bestMask, nil
}

// drawSample 随机抽取 4 个不同且非退化的点对
func drawSample(rng *rand.Rand, src, dst []Point, sampleSrc, sampleDst *[homographyModelPoints]Point) bool {
	n := len(src)
	var idx [homographyModelPoints]int

	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		for i := 0; i < homographyModelPoints; i++ {
		redraw:
			for {
				idx[i] = rng.Intn(n)
				for j := 0; j < i; j++ {
					if idx[j] == idx[i] {
						continue redraw
					}
				}
				break
			}
			sampleSrc[i] = src[idx[i]]
			sampleDst[i] = dst[idx[i]]
		}
		if !degenerateSample(*sampleSrc, *sampleDst) {
			return true
		}
	}
	return false
}

// markInliers 写入内点标记并返回内点数量
func markInliers(h Homography, src, dst []Point, thr2 float64, mask []bool) int {
	count := 0
	for i := range src {
		mask[i] = false
		p, ok := h.Apply(src[i])
		if !ok {
			continue
		}
		dx := p.X - dst[i].X
		dy := p.Y - dst[i].Y
		if dx*dx+dy*dy <= thr2 {
			mask[i] = true
			count++
		}
	}
	return count
}

// updateIterations 根据当前外点率更新所需迭代次数
func updateIterations(confidence, outlierRatio float64, modelPoints, maxIters int) int {
	confidence = math.Min(math.Max(confidence, 0), 1)
	outlierRatio = math.Min(math.Max(outlierRatio, 0), 1)

	num := math.Max(1-confidence, math.SmallestNonzeroFloat64)
	denom := 1 - math.Pow(1-outlierRatio, float64(modelPoints))
	if denom < math.SmallestNonzeroFloat64 {
		return 0
	}

	num = math.Log(num)
	denom = math.Log(denom)
	if denom >= 0 || -num >= float64(maxIters)*(-denom) {
		return maxIters
	}
	return int(math.Round(num / denom))
}

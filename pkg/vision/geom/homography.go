package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// 齐次坐标 w 的最小绝对值，低于该值视为投影到无穷远
	minHomogeneousW = 1e-12
	// 与 OpenCV 一致的共线判定系数
	collinearEps = 1.1920929e-07
)

// Homography 3x3 单应性矩阵（行优先）
type Homography [9]float64

// Identity 单位矩阵
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply 变换一个点，w 接近 0 时返回 false
func (h Homography) Apply(p Point) (Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < minHomogeneousW {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Mul 矩阵乘法 h * o
func (h Homography) Mul(o Homography) Homography {
	var r Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += h[i*3+k] * o[k*3+j]
			}
			r[i*3+j] = sum
		}
	}
	return r
}

// Normalized 缩放使 h22 = 1
func (h Homography) Normalized() (Homography, bool) {
	if math.Abs(h[8]) < minHomogeneousW {
		return h, false
	}
	s := 1 / h[8]
	for i := range h {
		h[i] *= s
	}
	return h, true
}

// Rows 以 3x3 切片形式输出
func (h Homography) Rows() [][]float64 {
	return [][]float64{
		{h[0], h[1], h[2]},
		{h[3], h[4], h[5]},
		{h[6], h[7], h[8]},
	}
}

// similarity 各向同性归一化：质心移到原点，平均距离缩放到 sqrt(2)
type similarity struct {
	s, cx, cy float64
}

func newSimilarity(pts []Point) (similarity, bool) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	meanDist := 0.0
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	if meanDist < 1e-12 {
		return similarity{}, false
	}
	return similarity{s: math.Sqrt2 / meanDist, cx: cx, cy: cy}, true
}

func (t similarity) apply(p Point) Point {
	return Point{X: t.s * (p.X - t.cx), Y: t.s * (p.Y - t.cy)}
}

func (t similarity) matrix() Homography {
	return Homography{
		t.s, 0, -t.s * t.cx,
		0, t.s, -t.s * t.cy,
		0, 0, 1,
	}
}

func (t similarity) inverse() Homography {
	return Homography{
		1 / t.s, 0, t.cx,
		0, 1 / t.s, t.cy,
		0, 0, 1,
	}
}

// FitHomography 使用归一化 DLT 拟合 src -> dst 的单应性矩阵
// 点数恰为 4 时得到精确解，多于 4 时为代数最小二乘解
func FitHomography(src, dst []Point) (Homography, error) {
	n := len(src)
	if n != len(dst) {
		return Homography{}, fmt.Errorf("点数不一致: %d vs %d", n, len(dst))
	}
	if n < 4 {
		return Homography{}, ErrTooFewPoints
	}

	t1, ok := newSimilarity(src)
	if !ok {
		return Homography{}, ErrDegenerate
	}
	t2, ok := newSimilarity(dst)
	if !ok {
		return Homography{}, ErrDegenerate
	}

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		s := t1.apply(src[i])
		d := t2.apply(dst[i])
		x, y := s.X, s.Y
		u, v := d.X, d.Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y, -v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return Homography{}, ErrDegenerate
	}
	var v mat.Dense
	svd.VTo(&v)

	// 最小奇异值对应的右奇异向量
	var hn Homography
	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	h, ok := t2.inverse().Mul(hn).Mul(t1.matrix()).Normalized()
	if !ok {
		return Homography{}, ErrDegenerate
	}
	for _, x := range h {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Homography{}, ErrDegenerate
		}
	}
	return h, nil
}

// cross (b-a) x (c-a)
func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func collinear(a, b, c Point) bool {
	dx1, dy1 := b.X-a.X, b.Y-a.Y
	dx2, dy2 := c.X-a.X, c.Y-a.Y
	return math.Abs(dx2*dy1-dy2*dx1) <= collinearEps*(math.Abs(dx1)+math.Abs(dy1)+math.Abs(dx2)+math.Abs(dy2))
}

var sampleTriples = [4][3]int{{0, 1, 2}, {1, 2, 3}, {0, 2, 3}, {0, 1, 3}}

// degenerateSample 4 点样本中任意三点共线，或两侧三角形朝向不一致（镜像）
func degenerateSample(src, dst [4]Point) bool {
	for _, t := range sampleTriples {
		if collinear(src[t[0]], src[t[1]], src[t[2]]) || collinear(dst[t[0]], dst[t[1]], dst[t[2]]) {
			return true
		}
		cs := cross(src[t[0]], src[t[1]], src[t[2]])
		cd := cross(dst[t[0]], dst[t[1]], dst[t[2]])
		if (cs > 0) != (cd > 0) {
			return true
		}
	}
	return false
}

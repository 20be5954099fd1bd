// Package geom 提供单应性估计与几何投影
//
// 本包只依赖 gonum，不依赖 OpenCV，便于在任意环境下复现 RANSAC 结果。
package geom

import (
	"encoding/json"
	"errors"
	"math"
)

var (
	// ErrTooFewPoints 对应点不足 4 对
	ErrTooFewPoints = errors.New("至少需要 4 对对应点")
	// ErrDegenerate 点集退化（共线、重合）或矩阵不可逆
	ErrDegenerate = errors.New("点集退化，无法求解单应性矩阵")
	// ErrNoConsensus RANSAC 未找到满足条件的模型
	ErrNoConsensus = errors.New("RANSAC 未找到足够的内点")
)

// Point 表示二维浮点坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt 创建 Point
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Distance 欧氏距离
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Polygon 四边形，顺序固定为 左上 -> 右上 -> 右下 -> 左下
type Polygon [4]Point

// RectPolygon 由左上角和宽高构造轴对齐四边形
func RectPolygon(x, y, w, h float64) Polygon {
	return Polygon{
		{X: x, Y: y},
		{X: x + w, Y: y},
		{X: x + w, Y: y + h},
		{X: x, Y: y + h},
	}
}

// Area 鞋带公式面积（取绝对值）
func (p Polygon) Area() float64 {
	area := 0.0
	for i := range p {
		j := (i + 1) % len(p)
		area += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(area) * 0.5
}

// Center 四个角点的均值
func (p Polygon) Center() Point {
	var c Point
	for _, pt := range p {
		c.X += pt.X
		c.Y += pt.Y
	}
	c.X /= 4
	c.Y /= 4
	return c
}

// IsFinite 所有坐标均为有限值
func (p Polygon) IsFinite() bool {
	for _, pt := range p {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
			return false
		}
	}
	return true
}

// MarshalJSON 输出为 [[x,y],...] 形式
func (p Polygon) MarshalJSON() ([]byte, error) {
	pts := make([][2]float64, len(p))
	for i, pt := range p {
		pts[i] = [2]float64{pt.X, pt.Y}
	}
	return json.Marshal(pts)
}

// UnmarshalJSON 解析 [[x,y],...] 形式
func (p *Polygon) UnmarshalJSON(data []byte) error {
	var pts [][2]float64
	if err := json.Unmarshal(data, &pts); err != nil {
		return err
	}
	if len(pts) != len(p) {
		return errors.New("四边形必须包含 4 个点")
	}
	for i, pt := range pts {
		p[i] = Point{X: pt[0], Y: pt[1]}
	}
	return nil
}

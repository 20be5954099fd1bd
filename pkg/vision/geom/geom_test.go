package geom

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// 一个带轻微透视的参考变换
var trueH = Homography{
	1.10, 0.05, 50,
	-0.03, 0.95, 30,
	1e-4, 2e-4, 1,
}

func mustApply(t *testing.T, h Homography, p Point) Point {
	t.Helper()
	q, ok := h.Apply(p)
	if !ok {
		t.Fatalf("点 %+v 投影失败", p)
	}
	return q
}

func assertPolygonNear(t *testing.T, got, want Polygon, tol float64) {
	t.Helper()
	for i := range want {
		if got[i].Distance(want[i]) > tol {
			t.Errorf("角点 %d 偏差过大: got (%.6f, %.6f), want (%.6f, %.6f)",
				i, got[i].X, got[i].Y, want[i].X, want[i].Y)
		}
	}
}

func gridPoints(cols, rows int, w, h float64) []Point {
	pts := make([]Point, 0, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			pts = append(pts, Point{
				X: 5 + float64(c)*(w-10)/float64(cols-1),
				Y: 5 + float64(r)*(h-10)/float64(rows-1),
			})
		}
	}
	return pts
}

func TestFitHomographyExactFourPoints(t *testing.T) {
	src := []Point{{10, 10}, {90, 15}, {85, 70}, {12, 75}}
	dst := make([]Point, len(src))
	for i, p := range src {
		dst[i] = mustApply(t, trueH, p)
	}

	h, err := FitHomography(src, dst)
	if err != nil {
		t.Fatalf("拟合失败: %v", err)
	}
	for i := range h {
		if math.Abs(h[i]-trueH[i]) > 1e-6 {
			t.Errorf("h[%d] = %.9f, want %.9f", i, h[i], trueH[i])
		}
	}
}

func TestEstimateHomographyRecoversCorners(t *testing.T) {
	src := []Point{{10, 10}, {90, 15}, {85, 70}, {12, 75}}
	dst := make([]Point, len(src))
	for i, p := range src {
		dst[i] = mustApply(t, trueH, p)
	}

	h, inliers, err := EstimateHomography(src, dst, DefaultRANSACParams())
	if err != nil {
		t.Fatalf("估计失败: %v", err)
	}
	if CountInliers(inliers) != 4 {
		t.Errorf("内点数量错误: got %d, want 4", CountInliers(inliers))
	}

	got, err := ProjectCorners(h, 100, 80)
	if err != nil {
		t.Fatalf("投影失败: %v", err)
	}
	want, _ := ProjectCorners(trueH, 100, 80)
	assertPolygonNear(t, got, want, 1e-3)
}

func TestEstimateHomographyWithOutliers(t *testing.T) {
	src := gridPoints(10, 6, 200, 120)
	dst := make([]Point, len(src))
	for i, p := range src {
		dst[i] = mustApply(t, trueH, p)
	}
	nInliers := len(src)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 15; i++ {
		p := Point{X: rng.Float64() * 200, Y: rng.Float64() * 120}
		q := mustApply(t, trueH, p)
		q.X += 30 + rng.Float64()*50
		q.Y -= 30 + rng.Float64()*50
		src = append(src, p)
		dst = append(dst, q)
	}

	h, inliers, err := EstimateHomography(src, dst, DefaultRANSACParams())
	if err != nil {
		t.Fatalf("估计失败: %v", err)
	}
	for i, ok := range inliers {
		if i < nInliers && !ok {
			t.Errorf("点 %d 应为内点", i)
		}
		if i >= nInliers && ok {
			t.Errorf("点 %d 应为外点", i)
		}
	}

	got, _ := ProjectCorners(h, 200, 120)
	want, _ := ProjectCorners(trueH, 200, 120)
	assertPolygonNear(t, got, want, 1e-3)

	reproj, ok := ReprojectionError(h, src, dst, inliers)
	if !ok || reproj > 1e-6 {
		t.Errorf("无噪声内点的重投影误差应接近 0: got %.9f (ok=%v)", reproj, ok)
	}
}

func TestEstimateHomographyDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	src := gridPoints(8, 8, 300, 300)
	dst := make([]Point, len(src))
	for i, p := range src {
		q := mustApply(t, trueH, p)
		q.X += rng.NormFloat64() * 0.7
		q.Y += rng.NormFloat64() * 0.7
		if i%4 == 0 {
			q.X += 40 + rng.Float64()*20
		}
		dst[i] = q
	}

	params := DefaultRANSACParams()
	params.Seed = 1234

	h1, m1, err1 := EstimateHomography(src, dst, params)
	h2, m2, err2 := EstimateHomography(src, dst, params)
	if err1 != nil || err2 != nil {
		t.Fatalf("估计失败: %v / %v", err1, err2)
	}
	if h1 != h2 {
		t.Errorf("相同种子结果不一致:\n%v\n%v", h1, h2)
	}
	if len(m1) != len(m2) {
		t.Fatalf("内点标记长度不一致")
	}
	for i := range m1 {
		if m1[i] != m2[i] {
			t.Errorf("内点标记 %d 不一致", i)
		}
	}
}

func TestEstimateHomographyTooFewPoints(t *testing.T) {
	src := []Point{{0, 0}, {1, 0}, {1, 1}}
	_, _, err := EstimateHomography(src, src, DefaultRANSACParams())
	if !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("期望 ErrTooFewPoints, 实际 %v", err)
	}
}

func TestEstimateHomographyCollinear(t *testing.T) {
	var src []Point
	for i := 0; i < 12; i++ {
		src = append(src, Point{X: float64(i) * 10, Y: float64(i) * 5})
	}
	params := DefaultRANSACParams()
	params.MaxIterations = 50
	_, _, err := EstimateHomography(src, src, params)
	if !errors.Is(err, ErrNoConsensus) {
		t.Errorf("共线点应无法估计: got %v", err)
	}
}

func TestEstimateHomographyInvalidParams(t *testing.T) {
	src := gridPoints(3, 3, 10, 10)
	params := DefaultRANSACParams()
	params.Threshold = 0
	if _, _, err := EstimateHomography(src, src, params); err == nil {
		t.Error("阈值为 0 应报错")
	}
}

func TestProjectCornersOrder(t *testing.T) {
	h := Identity()
	h[2], h[5] = 50, 30

	poly, err := ProjectCorners(h, 40, 20)
	if err != nil {
		t.Fatalf("投影失败: %v", err)
	}
	want := Polygon{{50, 30}, {90, 30}, {90, 50}, {50, 50}}
	assertPolygonNear(t, poly, want, 1e-9)

	if poly.Area() != 800 {
		t.Errorf("面积错误: got %.2f, want 800", poly.Area())
	}
}

func TestReprojectionErrorInliersOnly(t *testing.T) {
	src := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {5, 5}}
	dst := []Point{{3, 4}, {13, 4}, {13, 14}, {3, 14}, {500, 500}}
	inliers := []bool{true, true, true, true, false}

	got, ok := ReprojectionError(Identity(), src, dst, inliers)
	if !ok {
		t.Fatal("应有内点")
	}
	if math.Abs(got-5) > 1e-12 {
		t.Errorf("重投影误差错误: got %.6f, want 5", got)
	}

	if _, ok := ReprojectionError(Identity(), src, dst, make([]bool, len(src))); ok {
		t.Error("没有内点时应返回 false")
	}
}

func TestUpdateIterations(t *testing.T) {
	tests := []struct {
		name    string
		outlier float64
		want    int
	}{
		{"无外点", 0, 0},
		{"一半外点", 0.5, 82},
		{"全部外点", 1, 2000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := updateIterations(0.995, tc.outlier, 4, 2000); got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPolygonJSON(t *testing.T) {
	poly := RectPolygon(1, 2, 3, 4)
	data, err := json.Marshal(poly)
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	if string(data) != "[[1,2],[4,2],[4,6],[1,6]]" {
		t.Errorf("JSON 格式错误: %s", data)
	}

	var back Polygon
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if back != poly {
		t.Errorf("反序列化结果不一致: %+v", back)
	}
}

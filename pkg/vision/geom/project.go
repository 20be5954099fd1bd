package geom

// Corners 模板四个角点 (0,0), (w,0), (w,h), (0,h)
func Corners(w, h float64) Polygon {
	return RectPolygon(0, 0, w, h)
}

// ProjectCorners 将模板角点经单应性矩阵映射到场景坐标，保持角点顺序
func ProjectCorners(h Homography, w, ht float64) (Polygon, error) {
	var poly Polygon
	for i, c := range Corners(w, ht) {
		p, ok := h.Apply(c)
		if !ok {
			return Polygon{}, ErrDegenerate
		}
		poly[i] = p
	}
	return poly, nil
}

// ReprojectionError 内点的平均欧氏重投影误差
// 没有内点时返回 false
func ReprojectionError(h Homography, src, dst []Point, inliers []bool) (float64, bool) {
	total := 0.0
	count := 0
	for i, ok := range inliers {
		if !ok || i >= len(src) || i >= len(dst) {
			continue
		}
		p, valid := h.Apply(src[i])
		if !valid {
			continue
		}
		total += p.Distance(dst[i])
		count++
	}
	if count == 0 {
		return 0, false
	}
	return total / float64(count), true
}

// CountInliers 统计内点数量
func CountInliers(inliers []bool) int {
	n := 0
	for _, ok := range inliers {
		if ok {
			n++
		}
	}
	return n
}

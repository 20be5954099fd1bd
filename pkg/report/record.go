// Package report 将定位结果写出为 CSV、JSON 和 SQLite
package report

import (
	"encoding/json"
	"strconv"

	"github.com/zoeyai/subimage/pkg/vision"
)

// Header CSV 列顺序
var Header = []string{
	"scene", "template", "status", "detector",
	"num_kp_scene", "num_kp_tmpl", "num_matches_raw", "num_matches_good",
	"inliers", "reproj_error", "good_match_ratio", "poly", "score", "reason",
}

// Row 将结果转换为与 Header 对应的一行，缺失的字段为空串
func Row(res *vision.MatchResult) []string {
	row := make([]string, len(Header))
	row[0] = res.Scene
	row[1] = res.Template
	row[2] = string(res.Status)
	row[3] = string(res.Detector)

	if res.Status != vision.StatusError {
		row[4] = strconv.Itoa(res.Diagnostics.NumKpScene)
		row[5] = strconv.Itoa(res.Diagnostics.NumKpTemplate)
		row[6] = strconv.Itoa(res.Diagnostics.NumMatchesRaw)
		row[7] = strconv.Itoa(res.Diagnostics.NumMatchesGood)
	}
	if h := res.Homography; h != nil {
		row[8] = strconv.Itoa(h.Inliers)
		row[9] = formatFloat(h.ReprojError)
		row[10] = formatFloat(h.GoodMatchRatio)
	}
	if poly, ok := res.Polygon(); ok {
		if data, err := json.Marshal(poly); err == nil {
			row[11] = string(data)
		}
	}
	if tm := res.TemplateMatch; tm != nil {
		row[12] = formatFloat(tm.Score)
	}
	row[13] = res.Reason
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

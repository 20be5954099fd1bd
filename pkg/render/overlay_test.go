package render

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/zoeyai/subimage/internal/testimg"
	"github.com/zoeyai/subimage/pkg/vision"
	"github.com/zoeyai/subimage/pkg/vision/cv"
	"github.com/zoeyai/subimage/pkg/vision/geom"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		scene, tmpl, want string
	}{
		{"/data/scenes/shelf.jpg", "/data/tmpl/logo.png", "shelf__logo_vis.png"},
		{"a.b.png", "c", "a.b__c_vis.png"},
	}
	for _, tc := range tests {
		if got := FileName(tc.scene, tc.tmpl); got != tc.want {
			t.Errorf("FileName(%q, %q) = %q, want %q", tc.scene, tc.tmpl, got, tc.want)
		}
	}
}

func TestStyleValidate(t *testing.T) {
	if err := DefaultStyle.Validate(); err != nil {
		t.Errorf("默认样式应合法: %v", err)
	}
	bad := DefaultStyle
	bad.Inlier = "green"
	if err := bad.Validate(); err == nil {
		t.Error("非法颜色应校验失败")
	}
}

func TestLabel(t *testing.T) {
	res := &vision.MatchResult{
		Status:        vision.StatusTemplateMatch,
		Reason:        vision.ReasonNoDescriptors,
		TemplateMatch: &vision.TemplateMatch{Score: 0.5},
	}
	got := Label(res)
	if got != "template_match | score=0.500 | no_descriptors" {
		t.Errorf("标签错误: %q", got)
	}
	if !strings.HasPrefix(Label(&vision.MatchResult{Status: vision.StatusFailed}), "failed") {
		t.Error("失败标签应以状态开头")
	}
}

func TestSaveOverlay(t *testing.T) {
	tmpl := testimg.WithAlpha(testimg.Texture(80, 60, 3), testimg.EllipseAlpha(80, 60))
	scene := testimg.Texture(200, 150, 4)

	res := &vision.MatchResult{
		Detector: cv.DetectorSIFT,
		Status:   vision.StatusHomography,
		Homography: &vision.HomographyMatch{
			Polygon: geom.RectPolygon(40, 30, 80, 60),
			Matrix:  geom.Identity(),
			Inliers: 2,
		},
		Visualization: &vision.Visualization{
			TemplateKeypoints: []geom.Point{{X: 10, Y: 10}, {X: 50, Y: 40}},
			SceneKeypoints:    []geom.Point{{X: 50, Y: 40}, {X: 90, Y: 70}},
			Matches: []cv.Correspondence{
				{TemplateIdx: 0, SceneIdx: 0},
				{TemplateIdx: 1, SceneIdx: 1},
				{TemplateIdx: 5, SceneIdx: 0},
			},
			Inliers: []bool{true, false, false},
		},
	}

	path := filepath.Join(t.TempDir(), FileName("scene.png", "tmpl.png"))
	if err := Save(path, scene, tmpl, res, DefaultStyle); err != nil {
		t.Fatalf("保存可视化失败: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("可视化文件不存在: %v", err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("读取可视化文件失败: %v", err)
	}
	want := image.Rect(0, 0, 80+200, 150)
	if img.Bounds() != want {
		t.Errorf("画布尺寸错误: got %v, want %v", img.Bounds(), want)
	}
}

func TestOverlayInvalidInput(t *testing.T) {
	res := &vision.MatchResult{Status: vision.StatusFailed}
	if _, err := Overlay(nil, testimg.Texture(10, 10, 1), res, DefaultStyle); err == nil {
		t.Error("空场景应返回错误")
	}
	bad := DefaultStyle
	bad.Polygon = "#zzz"
	if _, err := Overlay(testimg.Texture(10, 10, 1), testimg.Texture(5, 5, 1), res, bad); err == nil {
		t.Error("非法颜色应返回错误")
	}
}

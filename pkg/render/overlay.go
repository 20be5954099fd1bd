// Package render 生成定位结果的可视化图像
//
// 画布左侧为模板，右侧为场景；场景上绘制定位到的四边形，
// 有匹配明细时在两侧特征点之间连线（内点绿色，外点红色），左上角为状态标签。
package render

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/zoeyai/subimage/pkg/vision"
	"github.com/zoeyai/subimage/pkg/vision/cv"
)

// Style 可视化样式，颜色为 #rrggbb
type Style struct {
	Polygon   string  `json:"polygon"`
	Inlier    string  `json:"inlier"`
	Outlier   string  `json:"outlier"`
	Label     string  `json:"label"`
	Thickness int     `json:"thickness"`
	FontSize  float64 `json:"font_size"`
}

// DefaultStyle 默认样式
var DefaultStyle = Style{
	Polygon:   "#00ff00",
	Inlier:    "#00c800",
	Outlier:   "#ff0000",
	Label:     "#ffffff",
	Thickness: 3,
	FontSize:  16,
}

type palette struct {
	polygon, inlier, outlier, label color.RGBA
}

func (s Style) palette() (palette, error) {
	var p palette
	for _, c := range []struct {
		hex string
		dst *color.RGBA
	}{
		{s.Polygon, &p.polygon},
		{s.Inlier, &p.inlier},
		{s.Outlier, &p.outlier},
		{s.Label, &p.label},
	} {
		parsed, err := colorful.Hex(c.hex)
		if err != nil {
			return p, fmt.Errorf("颜色格式错误 %q: %w", c.hex, err)
		}
		r, g, b := parsed.RGB255()
		*c.dst = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return p, nil
}

// Validate 校验颜色格式
func (s Style) Validate() error {
	_, err := s.palette()
	return err
}

var (
	fontOnce sync.Once
	fontData *truetype.Font
	fontErr  error
)

func labelFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		fontData, fontErr = truetype.Parse(goregular.TTF)
	})
	return fontData, fontErr
}

// FileName 可视化文件名：<场景名>__<模板名>_vis.png
func FileName(scene, template string) string {
	return fmt.Sprintf("%s__%s_vis.png", stem(scene), stem(template))
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Overlay 绘制可视化图像
func Overlay(scene, template image.Image, res *vision.MatchResult, style Style) (image.Image, error) {
	pal, err := style.palette()
	if err != nil {
		return nil, err
	}
	if style.Thickness <= 0 {
		style.Thickness = DefaultStyle.Thickness
	}
	if style.FontSize <= 0 {
		style.FontSize = DefaultStyle.FontSize
	}

	sceneMat, err := bgrMat(scene)
	if err != nil {
		return nil, fmt.Errorf("场景图像无效: %w", err)
	}
	defer sceneMat.Close()
	tmplMat, err := bgrMat(template)
	if err != nil {
		return nil, fmt.Errorf("模板图像无效: %w", err)
	}
	defer tmplMat.Close()

	tw, th := tmplMat.Cols(), tmplMat.Rows()
	sw, sh := sceneMat.Cols(), sceneMat.Rows()
	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), max(th, sh), tw+sw, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	pasteRegion(&canvas, tmplMat, image.Rect(0, 0, tw, th))
	pasteRegion(&canvas, sceneMat, image.Rect(tw, 0, tw+sw, sh))

	offset := image.Pt(tw, 0)
	if vis := res.Visualization; vis != nil {
		drawMatches(&canvas, vis, offset, pal)
	}
	if poly, ok := res.Polygon(); ok {
		for i := range poly {
			a, b := poly[i], poly[(i+1)%len(poly)]
			gocv.Line(&canvas,
				image.Pt(int(a.X+0.5), int(a.Y+0.5)).Add(offset),
				image.Pt(int(b.X+0.5), int(b.Y+0.5)).Add(offset),
				pal.polygon, style.Thickness)
		}
	}

	ft, err := labelFont()
	if err != nil {
		return nil, fmt.Errorf("加载字体失败: %w", err)
	}
	text := Label(res)
	lw, lh := measure(ft, style.FontSize, text)
	gocv.Rectangle(&canvas, image.Rect(0, 0, lw+12, lh+12), color.RGBA{A: 255}, -1)

	img, err := cv.MatToImage(canvas)
	if err != nil {
		return nil, err
	}
	out := imaging.Clone(img)
	drawText(out, ft, style.FontSize, text, image.Pt(6, 6), pal.label)
	return out, nil
}

// Save 绘制并保存可视化图像，格式由扩展名决定
func Save(path string, scene, template image.Image, res *vision.MatchResult, style Style) error {
	img, err := Overlay(scene, template, res, style)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("保存可视化图像失败: %w", err)
	}
	return nil
}

// Label 状态标签文本
func Label(res *vision.MatchResult) string {
	parts := []string{string(res.Status)}
	switch {
	case res.Homography != nil:
		parts = append(parts,
			fmt.Sprintf("inliers=%d", res.Homography.Inliers),
			fmt.Sprintf("reproj=%.2f", res.Homography.ReprojError))
	case res.TemplateMatch != nil:
		parts = append(parts, fmt.Sprintf("score=%.3f", res.TemplateMatch.Score))
	}
	if res.Reason != "" {
		parts = append(parts, res.Reason)
	}
	return strings.Join(parts, " | ")
}

func bgrMat(img image.Image) (gocv.Mat, error) {
	src, err := cv.ImageToMat(img)
	if err != nil {
		return src, err
	}
	if src.Channels() == 3 {
		return src, nil
	}
	defer src.Close()
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRAToBGR)
	return dst, nil
}

func pasteRegion(canvas *gocv.Mat, src gocv.Mat, rect image.Rectangle) {
	roi := canvas.Region(rect)
	defer roi.Close()
	src.CopyTo(&roi)
}

func drawMatches(canvas *gocv.Mat, vis *vision.Visualization, offset image.Point, pal palette) {
	for i, m := range vis.Matches {
		if m.TemplateIdx >= len(vis.TemplateKeypoints) || m.SceneIdx >= len(vis.SceneKeypoints) {
			continue
		}
		c := pal.outlier
		if i < len(vis.Inliers) && vis.Inliers[i] {
			c = pal.inlier
		}
		tp := vis.TemplateKeypoints[m.TemplateIdx]
		sp := vis.SceneKeypoints[m.SceneIdx]
		a := image.Pt(int(tp.X+0.5), int(tp.Y+0.5))
		b := image.Pt(int(sp.X+0.5), int(sp.Y+0.5)).Add(offset)
		gocv.Circle(canvas, a, 3, c, 1)
		gocv.Circle(canvas, b, 3, c, 1)
		gocv.Line(canvas, a, b, c, 1)
	}
}

func measure(f *truetype.Font, size float64, text string) (int, int) {
	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72})
	defer face.Close()
	w := font.MeasureString(face, text).Ceil()
	h := face.Metrics().Height.Ceil()
	return w, h
}

func drawText(dst *image.NRGBA, f *truetype.Font, size float64, text string, at image.Point, col color.Color) {
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(size)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(image.NewUniform(col))
	c.SetHinting(font.HintingFull)

	pt := freetype.Pt(at.X, at.Y+int(c.PointToFixed(size)>>6))
	c.DrawString(text, pt)
}

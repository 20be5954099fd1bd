// Package testimg 生成测试用的合成图像
package testimg

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Texture 生成随机矩形与圆形叠加的灰阶纹理，角点丰富且无重复结构
// 相同 seed 生成相同图像
func Texture(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := imaging.New(w, h, color.NRGBA{128, 128, 128, 255})

	n := w * h / 120
	maxSide := max(w, h) / 6
	for i := 0; i < n; i++ {
		v := uint8(rng.Intn(256))
		c := color.NRGBA{v, uint8(255 - int(v)/2), uint8(rng.Intn(256)), 255}
		x := rng.Intn(w)
		y := rng.Intn(h)
		rw := 3 + rng.Intn(maxSide)
		rh := 3 + rng.Intn(maxSide)
		if rng.Intn(3) == 0 {
			fillCircle(img, x, y, min(rw, rh)/2+2, c)
			continue
		}
		draw.Draw(img, image.Rect(x, y, x+rw, y+rh), &image.Uniform{C: c}, image.Point{}, draw.Src)
	}
	return img
}

// Solid 纯色不透明图像
func Solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

// Gradient 水平线性渐变，没有可检测的角点
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		v := uint8(40 + 160*x/max(w-1, 1))
		for y := 0; y < h; y++ {
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

// WithAlpha 复制图像并按 fn(x, y) 设置每个像素的 alpha，RGB 保持不变
func WithAlpha(src image.Image, fn func(x, y int) uint8) *image.NRGBA {
	img := imaging.Clone(src)
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			img.Pix[y*img.Stride+x*4+3] = fn(x, y)
		}
	}
	return img
}

// EllipseAlpha 内切椭圆内不透明，外部完全透明
func EllipseAlpha(w, h int) func(x, y int) uint8 {
	cx, cy := float64(w)/2, float64(h)/2
	rx, ry := cx-1, cy-1
	return func(x, y int) uint8 {
		dx := (float64(x) + 0.5 - cx) / rx
		dy := (float64(y) + 0.5 - cy) / ry
		if dx*dx+dy*dy <= 1 {
			return 255
		}
		return 0
	}
}

// Compose 将模板按 alpha 叠加到场景的 (x, y) 处，返回新图像
func Compose(scene, tmpl image.Image, x, y int) *image.NRGBA {
	return imaging.Overlay(scene, tmpl, image.Pt(x, y), 1.0)
}

// Save 保存为 PNG（或按扩展名选择格式），自动创建目录
func Save(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return imaging.Save(img, path)
}

func fillCircle(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	b := img.Bounds()
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r && image.Pt(x, y).In(b) {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}

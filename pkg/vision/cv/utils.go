package cv

import (
	"errors"
	"fmt"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// ErrEmptyImage 输入图像为空或尺寸为 0
var ErrEmptyImage = errors.New("图像为空")

// ImageToMat 将 image.Image 转换为 gocv.Mat
// 含有非不透明像素时返回 BGRA 四通道，否则返回 BGR 三通道。
// 原图不会被修改。
func ImageToMat(img image.Image) (gocv.Mat, error) {
	if img == nil || img.Bounds().Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}

	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()

	opaque := src.Opaque()
	channels := 4
	matType := gocv.MatTypeCV8UC4
	if opaque {
		channels = 3
		matType = gocv.MatTypeCV8UC3
	}

	data := make([]byte, 0, w*h*channels)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			data = append(data, row[x+2], row[x+1], row[x])
			if !opaque {
				data = append(data, row[x+3])
			}
		}
	}

	mat, err := matFromBytes(h, w, matType, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("图像转换失败: %w", err)
	}
	return mat, nil
}

// MatToImage 将 gocv.Mat 转换为 image.Image
func MatToImage(mat gocv.Mat) (image.Image, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("Mat 转换失败: %w", err)
	}
	return img, nil
}

// ToGray 转换为单通道灰度图，支持 1/3/4 通道输入
func ToGray(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&dst)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	}
	return dst
}

// matFromBytes 创建持有独立内存的 Mat
// gocv.NewMatFromBytes 直接引用 Go 切片，这里复制一份后再返回
func matFromBytes(rows, cols int, mt gocv.MatType, data []byte) (gocv.Mat, error) {
	view, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer view.Close()

	mat := view.Clone()
	runtime.KeepAlive(data)
	return mat, nil
}

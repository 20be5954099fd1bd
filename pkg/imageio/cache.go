// Package imageio 负责场景与模板图像的解码和缓存
package imageio

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // 注册 WebP 解码器
)

// Cache 线程安全的图像缓存，按路径保存解码结果
// 批处理中同一模板会与每个场景配对，缓存保证每个文件只解码一次；
// 不再需要的场景由调用方通过 Evict 移除。
type Cache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewCache 创建空缓存
func NewCache() *Cache {
	return &Cache{
		images: make(map[string]image.Image),
	}
}

// Load 从缓存读取图像，未命中时从磁盘解码
// 解码时按 EXIF 方向信息自动旋转，返回的图像不会被修改。
func (c *Cache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := Decode(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Evict 移除单个路径的缓存
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Len 缓存中的图像数量
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Decode 直接从磁盘解码图像（不经过缓存）
func Decode(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("无法读取图像 %s: %w", path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("图像尺寸为 0: %s", path)
	}
	return img, nil
}

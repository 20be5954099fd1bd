// Package batch 枚举 (场景, 模板) 组合并在工作池中批量定位
package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions 默认识别的图像扩展名
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".webp"}

var (
	// ErrNoScenes 没有找到场景图像
	ErrNoScenes = errors.New("未找到场景图像")
	// ErrNoTemplates 没有找到模板图像
	ErrNoTemplates = errors.New("未找到模板图像")
)

// Pair 一个待处理的组合，Index 为枚举顺序
type Pair struct {
	Index    int
	Scene    string
	Template string
}

// Inputs 批处理输入
// Scene 与 ScenesDir 二选一，Scene 优先。
type Inputs struct {
	Scene        string
	ScenesDir    string
	TemplatesDir string
	Extensions   []string
}

// ParseExtensions 解析逗号分隔的扩展名列表
// 自动补全前导点并转为小写，空输入返回 DefaultExtensions。
func ParseExtensions(s string) []string {
	var exts []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		exts = append(exts, part)
	}
	if len(exts) == 0 {
		return append([]string(nil), DefaultExtensions...)
	}
	return exts
}

// CollectImages 列出目录下扩展名匹配的文件（不递归），按路径排序
// 扩展名比较不区分大小写
func CollectImages(dir string, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取目录失败 %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if allowed[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Pairs 按场景优先的顺序枚举所有组合
// 没有场景返回 ErrNoScenes，没有模板返回 ErrNoTemplates。
func (in Inputs) Pairs() ([]Pair, error) {
	var scenes []string
	switch {
	case in.Scene != "":
		scenes = []string{in.Scene}
	case in.ScenesDir != "":
		found, err := CollectImages(in.ScenesDir, in.Extensions)
		if err != nil {
			return nil, err
		}
		scenes = found
	}
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}

	if in.TemplatesDir == "" {
		return nil, ErrNoTemplates
	}
	templates, err := CollectImages(in.TemplatesDir, in.Extensions)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}

	return MakePairs(scenes, templates), nil
}

// MakePairs 生成 scenes × templates 的组合
func MakePairs(scenes, templates []string) []Pair {
	pairs := make([]Pair, 0, len(scenes)*len(templates))
	for _, s := range scenes {
		for _, t := range templates {
			pairs = append(pairs, Pair{Index: len(pairs), Scene: s, Template: t})
		}
	}
	return pairs
}

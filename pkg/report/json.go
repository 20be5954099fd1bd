package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zoeyai/subimage/pkg/vision"
)

// WriteJSON 以缩进的 JSON 数组写出全部结果
func WriteJSON(path string, results []*vision.MatchResult) error {
	if results == nil {
		results = []*vision.MatchResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入 JSON 文件失败: %w", err)
	}
	return nil
}

// ReadJSON 读取 WriteJSON 写出的文件
func ReadJSON(path string) ([]*vision.MatchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 JSON 文件失败: %w", err)
	}
	var results []*vision.MatchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("解析 JSON 文件失败: %w", err)
	}
	return results, nil
}

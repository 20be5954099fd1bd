package report

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/zoeyai/subimage/pkg/vision"
)

// CSVWriter 逐行写出结果
type CSVWriter struct {
	f *os.File
	w *csv.Writer
}

// CreateCSV 创建 CSV 文件并写入表头
func CreateCSV(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("无法创建 CSV 文件: %w", err)
	}
	w := &CSVWriter{f: f, w: csv.NewWriter(f)}
	if err := w.w.Write(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("写入表头失败: %w", err)
	}
	return w, nil
}

// Write 写出一条结果
func (w *CSVWriter) Write(res *vision.MatchResult) error {
	return w.w.Write(Row(res))
}

// Close 刷新缓冲并关闭文件
func (w *CSVWriter) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return fmt.Errorf("写入 CSV 失败: %w", err)
	}
	return w.f.Close()
}

// WriteCSV 将全部结果写入 path
func WriteCSV(path string, results []*vision.MatchResult) error {
	w, err := CreateCSV(path)
	if err != nil {
		return err
	}
	for _, res := range results {
		if err := w.Write(res); err != nil {
			w.Close()
			return fmt.Errorf("写入 CSV 失败: %w", err)
		}
	}
	return w.Close()
}

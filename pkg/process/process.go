// Package process 提供当前进程与主机的资源信息
package process

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo 进程信息
type ProcessInfo struct {
	PID        int    `json:"pid"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	RSS        uint64 `json:"rss"`
	NumThreads int32  `json:"num_threads"`
}

// HostInfo 主机资源
type HostInfo struct {
	LogicalCPUs     int    `json:"logical_cpus"`
	PhysicalCPUs    int    `json:"physical_cpus"`
	TotalMemory     uint64 `json:"total_memory"`
	AvailableMemory uint64 `json:"available_memory"`
}

// Self 获取当前进程信息
func Self() (*ProcessInfo, error) {
	return GetProcessByPID(os.Getpid())
}

// GetProcessByPID 按 PID 获取进程信息
func GetProcessByPID(pid int) (*ProcessInfo, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("进程不存在: PID=%d", pid)
	}

	name, _ := proc.Name()
	exe, _ := proc.Exe()
	threads, _ := proc.NumThreads()

	info := &ProcessInfo{
		PID:        pid,
		Name:       name,
		Path:       exe,
		NumThreads: threads,
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		info.RSS = memInfo.RSS
	}
	return info, nil
}

// Host 获取主机 CPU 与内存信息
func Host() (*HostInfo, error) {
	logical, err := cpu.Counts(true)
	if err != nil {
		return nil, fmt.Errorf("获取 CPU 数量失败: %w", err)
	}
	physical, _ := cpu.Counts(false)

	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("获取内存信息失败: %w", err)
	}

	return &HostInfo{
		LogicalCPUs:     logical,
		PhysicalCPUs:    physical,
		TotalMemory:     vm.Total,
		AvailableMemory: vm.Available,
	}, nil
}

// LogicalCPUs 逻辑 CPU 数量，获取失败时使用 runtime.NumCPU
func LogicalCPUs() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// FormatBytes 以 KB/MB/GB 格式化字节数
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

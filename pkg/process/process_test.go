package process

import (
	"os"
	"testing"
)

func TestSelf(t *testing.T) {
	info, err := Self()
	if err != nil {
		t.Fatalf("获取当前进程失败: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID 错误: got %d, want %d", info.PID, os.Getpid())
	}
	t.Logf("当前进程: %+v", info)
}

func TestHostAndCPUs(t *testing.T) {
	if n := LogicalCPUs(); n <= 0 {
		t.Errorf("逻辑 CPU 数量应为正数: %d", n)
	}

	host, err := Host()
	if err != nil {
		t.Skipf("跳过测试：无法获取主机信息: %v", err)
	}
	if host.LogicalCPUs <= 0 || host.TotalMemory == 0 {
		t.Errorf("主机信息异常: %+v", host)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tc := range tests {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// Package cli 实现 subimage 命令行
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zoeyai/subimage/internal/logger"
	"github.com/zoeyai/subimage/pkg/batch"
	"github.com/zoeyai/subimage/pkg/config"
	"github.com/zoeyai/subimage/pkg/process"
	"github.com/zoeyai/subimage/pkg/render"
	"github.com/zoeyai/subimage/pkg/report"
	"github.com/zoeyai/subimage/pkg/vision"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = vision.Version
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// ExitError 携带进程退出码的错误
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode 错误对应的退出码：nil 为 0，ExitError 取其 Code，其余为 1
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

type runFlags struct {
	scene        string
	scenesDir    string
	templatesDir string
	out          string
	detector     string
	ratio        float64
	minMatches   int
	ransac       float64
	noFallback   bool
	drawMatches  bool
	json         bool
	db           string
	exts         []string
	seed         int64
	workers      int
	configFile   string
	envFile      string
	logLevel     string
	saveConfig   bool
}

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	var f runFlags

	rootCmd := &cobra.Command{
		Use:   "subimage",
		Short: "在场景图中定位（可带透明通道的）模板图像",
		Long: `subimage 对每个 (场景, 模板) 组合执行特征点匹配 + RANSAC 单应性估计，
失败时回退到带掩码的模板匹配，结果写入 results.csv（可选 JSON、SQLite 和可视化图像）。`,
		Args:          extsArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.exts = append(f.exts, args...)
			return run(cmd, &f)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&f.scene, "scene", "", "单个场景图像路径")
	flags.StringVar(&f.scenesDir, "scenes-dir", "", "场景图像目录")
	flags.StringVar(&f.templatesDir, "templates-dir", "", "模板图像目录（推荐带 alpha 的 PNG）")
	flags.StringVar(&f.out, "out", "", "输出目录")
	flags.StringVar(&f.detector, "detector", "SIFT", "特征检测算法: SIFT, ORB, AKAZE")
	flags.Float64Var(&f.ratio, "ratio", vision.DefaultOptions.Ratio, "比率检验阈值")
	flags.IntVar(&f.minMatches, "min-matches", vision.DefaultOptions.MinMatches, "进入单应性估计所需的最少匹配数")
	flags.Float64Var(&f.ransac, "ransac", vision.DefaultOptions.RansacThreshold, "RANSAC 重投影阈值（像素）")
	flags.BoolVar(&f.noFallback, "no-fallback", false, "关闭模板匹配回退")
	flags.BoolVar(&f.drawMatches, "draw-matches", false, "保存匹配与四边形的可视化图像")
	flags.BoolVar(&f.json, "json", false, "同时输出 results.json")
	flags.StringVar(&f.db, "db", "", "写入 SQLite 数据库路径")
	flags.StringSliceVar(&f.exts, "exts", batch.DefaultExtensions, "识别的图像扩展名，逗号或空格分隔，如 --exts .png,.jpg 或 --exts .png .jpg")
	flags.Int64Var(&f.seed, "seed", vision.DefaultOptions.Seed, "RANSAC 随机种子")
	flags.IntVar(&f.workers, "workers", 0, "并发数量，0 表示逻辑 CPU 数量")
	flags.StringVar(&f.configFile, "config", "", "配置文件路径（默认 ~/.subimage/config.json）")
	flags.StringVar(&f.envFile, "env-file", "", ".env 文件路径")
	flags.StringVar(&f.logLevel, "log-level", "", "日志级别: debug, info, warn, error")
	flags.BoolVar(&f.saveConfig, "save-config", false, "保存生效的配置到配置文件")

	// 兼容 --scenes_dir 这类下划线写法
	rootCmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	rootCmd.MarkFlagsMutuallyExclusive("scene", "scenes-dir")
	rootCmd.MarkFlagsOneRequired("scene", "scenes-dir")
	_ = rootCmd.MarkFlagRequired("templates-dir")
	_ = rootCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// extsArgs 位置参数只允许作为 --exts 的后续扩展名（以 . 开头）
func extsArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if !cmd.Flags().Changed("exts") {
		return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
	}
	for _, arg := range args {
		if !strings.HasPrefix(arg, ".") {
			return fmt.Errorf("无法识别的参数 %q（扩展名应以 . 开头）", arg)
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "subimage v%s\n", Version)
			fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
			fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
		},
	}
}

// loadConfig 合并配置文件、环境变量和命令行参数
func loadConfig(cmd *cobra.Command, f *runFlags) (*config.Config, *config.Manager, error) {
	manager := config.GetDefaultManager()
	if f.configFile != "" {
		manager = config.NewManagerWithFile(f.configFile)
	}
	cfg, err := manager.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(f.envFile); err != nil {
		return nil, nil, err
	}

	changed := cmd.Flags().Changed
	if changed("detector") {
		cfg.Match.Detector = f.detector
	}
	if changed("ratio") {
		cfg.Match.Ratio = f.ratio
	}
	if changed("min-matches") {
		cfg.Match.MinMatches = f.minMatches
	}
	if changed("ransac") {
		cfg.Match.RansacThreshold = f.ransac
	}
	if changed("seed") {
		cfg.Match.Seed = f.seed
	}
	if f.noFallback {
		cfg.Match.Fallback = false
	}
	if changed("workers") {
		cfg.Batch.Workers = f.workers
	}
	if changed("exts") {
		cfg.Batch.Extensions = batch.ParseExtensions(strings.Join(f.exts, ","))
	}
	if f.drawMatches {
		cfg.Output.DrawMatches = true
	}
	if f.json {
		cfg.Output.JSON = true
	}
	if changed("db") {
		cfg.Output.Database = f.db
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	return cfg, manager, nil
}

func run(cmd *cobra.Command, f *runFlags) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, manager, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	if err := logger.Configure(logger.Options{
		Level:   logger.ParseLevel(cfg.Logging.Level),
		Console: cfg.Logging.Console,
		Output:  stdout,
		File:    cfg.Logging.File,
	}); err != nil {
		return err
	}
	defer logger.Default().Close()

	opts, err := cfg.Match.Options()
	if err != nil {
		return err
	}
	opts.EmitMatchVisualization = cfg.Output.DrawMatches
	if cfg.Output.DrawMatches {
		if err := cfg.Output.Style.Validate(); err != nil {
			return &vision.Error{Kind: vision.ErrInvalidConfiguration, Message: "可视化样式无效", Cause: err}
		}
	}
	locator, err := vision.NewLocator(opts)
	if err != nil {
		return err
	}

	if f.saveConfig {
		if err := manager.Save(cfg); err != nil {
			logger.Warn("保存配置失败: %v", err)
		} else {
			logger.Info("配置已保存到 %s", manager.GetConfigFile())
		}
	}

	if err := os.MkdirAll(f.out, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	pairs, err := batch.Inputs{
		Scene:        f.scene,
		ScenesDir:    f.scenesDir,
		TemplatesDir: f.templatesDir,
		Extensions:   cfg.Batch.Extensions,
	}.Pairs()
	switch {
	case errors.Is(err, batch.ErrNoScenes):
		fmt.Fprintln(stderr, "No scenes found.")
		return &ExitError{Code: 2, Err: err}
	case errors.Is(err, batch.ErrNoTemplates):
		fmt.Fprintln(stderr, "No templates found.")
		return &ExitError{Code: 2, Err: err}
	case err != nil:
		return err
	}

	runner := batch.NewRunner(locator, cfg.Batch.Workers)
	logStart(len(pairs), runner.Workers(), opts)

	if cfg.Output.DrawMatches {
		style := cfg.Output.Style
		runner.OnResult = func(p batch.Pair, res *vision.MatchResult) {
			saveVisualization(runner, f.out, p, res, style)
		}
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	start := time.Now()
	results, runErr := runner.Run(ctx, pairs)
	summary := batch.Summarize(results)

	csvPath := filepath.Join(f.out, "results.csv")
	if err := report.WriteCSV(csvPath, results); err != nil {
		return err
	}
	if cfg.Output.JSON {
		if err := report.WriteJSON(filepath.Join(f.out, "results.json"), results); err != nil {
			return err
		}
	}
	if cfg.Output.Database != "" {
		if err := saveDatabase(cfg.Output.Database, opts, results, summary); err != nil {
			return err
		}
	}

	logger.Info("%s，耗时 %s", summary, time.Since(start).Round(time.Millisecond))
	if self, err := process.Self(); err == nil {
		logger.Debug("进程内存: %s, 线程数: %d", process.FormatBytes(self.RSS), self.NumThreads)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(stdout, "Done. Wrote: %s\n", csvPath)
	if cfg.Output.DrawMatches {
		fmt.Fprintln(stdout, "Visualizations saved as *_vis.png alongside the CSV.")
	}
	return nil
}

func logStart(pairs, workers int, opts vision.Options) {
	logger.Info("subimage v%s: %d 组, 并发 %d, 算法 %s", Version, pairs, workers, opts.Detector)
	if host, err := process.Host(); err == nil {
		logger.Info("CPU: %d 逻辑 / %d 物理, 可用内存 %s / %s",
			host.LogicalCPUs, host.PhysicalCPUs,
			process.FormatBytes(host.AvailableMemory), process.FormatBytes(host.TotalMemory))
	} else {
		logger.Debug("获取主机信息失败: %v", err)
	}
}

func saveVisualization(runner *batch.Runner, outDir string, p batch.Pair, res *vision.MatchResult, style render.Style) {
	if res.Status == vision.StatusError {
		return
	}
	scene, err := runner.Cache().Load(p.Scene)
	if err != nil {
		return
	}
	tmpl, err := runner.Cache().Load(p.Template)
	if err != nil {
		return
	}
	path := filepath.Join(outDir, render.FileName(p.Scene, p.Template))
	if err := render.Save(path, scene, tmpl, res, style); err != nil {
		logger.Warn("保存可视化失败 %s: %v", path, err)
	}
}

func saveDatabase(path string, opts vision.Options, results []*vision.MatchResult, summary batch.Summary) error {
	store, err := report.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.BeginRun(opts)
	if err != nil {
		return err
	}
	if err := store.SaveResults(runID, results); err != nil {
		return err
	}
	if err := store.FinishRun(runID, summary); err != nil {
		return err
	}
	logger.Info("结果已写入数据库 %s (run=%s)", path, runID)
	return nil
}

// Execute 运行命令行，返回退出码
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
	}
	return ExitCode(err)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

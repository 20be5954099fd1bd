package batch

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/zoeyai/subimage/internal/testimg"
	"github.com/zoeyai/subimage/pkg/vision"
)

// writeFixtures 生成 2 个场景和 2 个模板（其中一个文件损坏）
func writeFixtures(t *testing.T) (scenesDir, templatesDir string) {
	t.Helper()
	root := t.TempDir()
	scenesDir = filepath.Join(root, "scenes")
	templatesDir = filepath.Join(root, "templates")

	tmpl := testimg.Texture(160, 120, 5)
	scene := imaging.Paste(testimg.Texture(400, 300, 6), tmpl, image.Pt(120, 90))

	mustSave(t, filepath.Join(scenesDir, "a_scene.png"), scene)
	mustSave(t, filepath.Join(scenesDir, "B_GRADIENT.PNG"), testimg.Gradient(300, 200))
	mustSave(t, filepath.Join(templatesDir, "logo.png"), tmpl)

	if err := os.WriteFile(filepath.Join(templatesDir, "broken.png"), []byte("not an image"), 0644); err != nil {
		t.Fatalf("写入损坏文件失败: %v", err)
	}
	if err := os.WriteFile(filepath.Join(scenesDir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatalf("写入文本文件失败: %v", err)
	}
	if err := os.Mkdir(filepath.Join(scenesDir, "sub.png"), 0755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	return scenesDir, templatesDir
}

func mustSave(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := testimg.Save(path, img); err != nil {
		t.Fatalf("保存图像失败: %v", err)
	}
}

func mustLocator(t *testing.T) *vision.Locator {
	t.Helper()
	loc, err := vision.NewLocator(vision.DefaultOptions)
	if err != nil {
		t.Fatalf("创建定位器失败: %v", err)
	}
	return loc
}

func TestParseExtensions(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", DefaultExtensions},
		{" , ", DefaultExtensions},
		{"png", []string{".png"}},
		{".PNG, jpg ,.Tif", []string{".png", ".jpg", ".tif"}},
	}
	for _, tc := range tests {
		if got := ParseExtensions(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ParseExtensions(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCollectImages(t *testing.T) {
	scenesDir, _ := writeFixtures(t)

	got, err := CollectImages(scenesDir, DefaultExtensions)
	if err != nil {
		t.Fatalf("枚举失败: %v", err)
	}
	want := []string{
		filepath.Join(scenesDir, "B_GRADIENT.PNG"),
		filepath.Join(scenesDir, "a_scene.png"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("枚举结果错误:\n got %v\nwant %v", got, want)
	}

	onlyJpg, err := CollectImages(scenesDir, []string{".jpg"})
	if err != nil {
		t.Fatalf("枚举失败: %v", err)
	}
	if len(onlyJpg) != 0 {
		t.Errorf("扩展名过滤失效: %v", onlyJpg)
	}

	if _, err := CollectImages(filepath.Join(scenesDir, "missing"), nil); err == nil {
		t.Error("目录不存在应返回错误")
	}
}

func TestInputsPairs(t *testing.T) {
	scenesDir, templatesDir := writeFixtures(t)

	pairs, err := Inputs{ScenesDir: scenesDir, TemplatesDir: templatesDir}.Pairs()
	if err != nil {
		t.Fatalf("枚举组合失败: %v", err)
	}
	if len(pairs) != 4 {
		t.Fatalf("组合数量错误: got %d, want 4", len(pairs))
	}
	// 场景优先：同一场景的模板相邻
	if pairs[0].Scene != pairs[1].Scene || pairs[1].Scene == pairs[2].Scene {
		t.Errorf("组合顺序错误: %+v", pairs)
	}
	for i, p := range pairs {
		if p.Index != i {
			t.Errorf("Index 错误: got %d, want %d", p.Index, i)
		}
	}

	single, err := Inputs{Scene: "x.png", ScenesDir: scenesDir, TemplatesDir: templatesDir}.Pairs()
	if err != nil {
		t.Fatalf("单场景枚举失败: %v", err)
	}
	if len(single) != 2 || single[0].Scene != "x.png" {
		t.Errorf("单场景应优先: %+v", single)
	}

	empty := t.TempDir()
	if _, err := (Inputs{ScenesDir: empty, TemplatesDir: templatesDir}).Pairs(); !errors.Is(err, ErrNoScenes) {
		t.Errorf("应返回 ErrNoScenes: %v", err)
	}
	if _, err := (Inputs{ScenesDir: scenesDir, TemplatesDir: empty}).Pairs(); !errors.Is(err, ErrNoTemplates) {
		t.Errorf("应返回 ErrNoTemplates: %v", err)
	}
	if _, err := (Inputs{Scene: "x.png"}).Pairs(); !errors.Is(err, ErrNoTemplates) {
		t.Errorf("缺少模板目录应返回 ErrNoTemplates: %v", err)
	}
}

func TestRunnerGrid(t *testing.T) {
	scenesDir, templatesDir := writeFixtures(t)
	pairs, err := Inputs{ScenesDir: scenesDir, TemplatesDir: templatesDir}.Pairs()
	if err != nil {
		t.Fatalf("枚举组合失败: %v", err)
	}

	runner := NewRunner(mustLocator(t), 3)
	var mu sync.Mutex
	seen := 0
	runner.OnResult = func(Pair, *vision.MatchResult) {
		mu.Lock()
		seen++
		mu.Unlock()
	}

	results, err := runner.Run(context.Background(), pairs)
	if err != nil {
		t.Fatalf("批处理失败: %v", err)
	}
	if len(results) != len(pairs) || seen != len(pairs) {
		t.Fatalf("结果数量错误: results=%d callbacks=%d, want %d", len(results), seen, len(pairs))
	}

	for i, res := range results {
		p := pairs[i]
		if res.Scene != p.Scene || res.Template != p.Template {
			t.Errorf("结果 %d 顺序错误: %s × %s", i, res.Scene, res.Template)
		}
		broken := filepath.Base(p.Template) == "broken.png"
		if broken {
			if res.Status != vision.StatusError || res.Reason != string(vision.ErrInputReadFailure) || res.Error == "" {
				t.Errorf("损坏文件应产生 error 记录: %+v", res)
			}
			continue
		}
		if res.Status == vision.StatusError {
			t.Errorf("有效组合不应出错: %+v", res)
		}
		if filepath.Base(p.Scene) == "a_scene.png" {
			if res.Status != vision.StatusHomography {
				t.Errorf("贴图场景应走单应性路径: %s (%s)", res.Status, res.Reason)
			}
		}
	}

	// 场景处理完即移出缓存，损坏文件不进入缓存，只剩 logo.png
	if runner.Cache().Len() != 1 {
		t.Errorf("缓存数量错误: got %d, want 1", runner.Cache().Len())
	}

	sum := Summarize(results)
	if sum.Total != 4 || sum.Errors != 2 || sum.Homography < 1 {
		t.Errorf("统计错误: %s", sum)
	}
}

func TestRunnerEvictsFinishedScenes(t *testing.T) {
	root := t.TempDir()
	scenesDir := filepath.Join(root, "scenes")
	templatesDir := filepath.Join(root, "templates")
	for i, name := range []string{"s1.png", "s2.png", "s3.png", "s4.png", "s5.png"} {
		mustSave(t, filepath.Join(scenesDir, name), testimg.Texture(160, 120, int64(20+i)))
	}
	mustSave(t, filepath.Join(templatesDir, "t1.png"), testimg.Texture(40, 30, 1))
	mustSave(t, filepath.Join(templatesDir, "t2.png"), testimg.Texture(40, 30, 2))

	pairs, err := Inputs{ScenesDir: scenesDir, TemplatesDir: templatesDir}.Pairs()
	if err != nil {
		t.Fatalf("枚举组合失败: %v", err)
	}
	const templates = 2

	tests := []struct {
		name    string
		workers int
	}{
		{"单线程", 1},
		{"多线程", 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := NewRunner(mustLocator(t), tc.workers)
			var mu sync.Mutex
			peak := 0
			runner.OnResult = func(p Pair, _ *vision.MatchResult) {
				// 回调期间当前场景仍在缓存中
				if _, err := runner.Cache().Load(p.Scene); err != nil {
					t.Errorf("回调中读取场景失败: %v", err)
				}
				mu.Lock()
				peak = max(peak, runner.Cache().Len())
				mu.Unlock()
			}

			if _, err := runner.Run(context.Background(), pairs); err != nil {
				t.Fatalf("批处理失败: %v", err)
			}
			if got := runner.Cache().Len(); got != templates {
				t.Errorf("运行结束后只应保留模板: got %d, want %d", got, templates)
			}
			// 正在处理的场景不超过 workers 个，另加一个正在调度的场景
			if limit := templates + tc.workers + 1; peak > limit {
				t.Errorf("缓存峰值 %d 超过 %d", peak, limit)
			}
			if tc.workers == 1 && peak != templates+1 {
				t.Errorf("单线程时缓存峰值应为 %d, 实际 %d", templates+1, peak)
			}
		})
	}
}

func TestRunnerKeepsSceneUsedAsTemplate(t *testing.T) {
	dir := t.TempDir()
	shared := filepath.Join(dir, "shared.png")
	other := filepath.Join(dir, "other.png")
	mustSave(t, shared, testimg.Texture(120, 90, 7))
	mustSave(t, other, testimg.Texture(120, 90, 8))

	pairs := MakePairs([]string{shared, other}, []string{shared})
	runner := NewRunner(mustLocator(t), 2)
	if _, err := runner.Run(context.Background(), pairs); err != nil {
		t.Fatalf("批处理失败: %v", err)
	}
	if runner.Cache().Len() != 1 {
		t.Errorf("同时作为模板的场景应保留: got %d, want 1", runner.Cache().Len())
	}
}

func TestRunnerCancelled(t *testing.T) {
	pairs := MakePairs([]string{"a.png", "b.png"}, []string{"t.png"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewRunner(mustLocator(t), 1).Run(ctx, pairs)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("应返回 context.Canceled: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("取消后不应调度新组合: %d", len(results))
	}
}

func TestNewRunnerDefaultWorkers(t *testing.T) {
	if NewRunner(mustLocator(t), 0).Workers() <= 0 {
		t.Error("默认并发数应为正数")
	}
}

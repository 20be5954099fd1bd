package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/zoeyai/subimage/internal/logger"
	"github.com/zoeyai/subimage/pkg/imageio"
	"github.com/zoeyai/subimage/pkg/process"
	"github.com/zoeyai/subimage/pkg/vision"
)

// Runner 批量定位执行器
type Runner struct {
	locator *vision.Locator
	cache   *imageio.Cache
	workers int

	// OnResult 每个组合完成后调用，可能在多个 goroutine 中并发调用
	OnResult func(Pair, *vision.MatchResult)
}

// NewRunner 创建执行器
// workers <= 0 时使用逻辑 CPU 数量
func NewRunner(locator *vision.Locator, workers int) *Runner {
	if workers <= 0 {
		workers = process.LogicalCPUs()
	}
	return &Runner{
		locator: locator,
		cache:   imageio.NewCache(),
		workers: workers,
	}
}

// Workers 并发数量
func (r *Runner) Workers() int {
	return r.workers
}

// Cache 执行器使用的图像缓存
func (r *Runner) Cache() *imageio.Cache {
	return r.cache
}

// Run 处理所有组合，结果顺序与 pairs 一致
// 单个组合的失败记录在结果中，不会中断批处理。
// ctx 取消后不再调度新的组合，已开始的组合会执行完，返回已完成的结果和 ctx.Err()。
// 模板在整个运行期间保留在缓存中；场景在其最后一个组合（含 OnResult）完成后移出缓存。
func (r *Runner) Run(ctx context.Context, pairs []Pair) ([]*vision.MatchResult, error) {
	results := make([]*vision.MatchResult, len(pairs))
	jobs := make(chan int)
	scenes := newSceneRefs(pairs)
	defer scenes.releaseAll(r.cache)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res := r.processPair(pairs[i])
				results[i] = res
				if r.OnResult != nil {
					r.OnResult(pairs[i], res)
				}
				scenes.release(r.cache, pairs[i].Scene)
			}
		}()
	}

	var runErr error
schedule:
	for i := range pairs {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break schedule
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if runErr == nil {
		return results, nil
	}

	done := make([]*vision.MatchResult, 0, len(results))
	for _, res := range results {
		if res != nil {
			done = append(done, res)
		}
	}
	logger.Warn("批处理已取消: 完成 %d/%d", len(done), len(pairs))
	return done, runErr
}

func (r *Runner) processPair(p Pair) *vision.MatchResult {
	start := time.Now()
	detector := r.locator.Options().Detector

	res, err := r.locatePair(p)
	if err != nil {
		res = vision.ErrorResult(p.Scene, p.Template, detector, err)
	}
	res.Scene = p.Scene
	res.Template = p.Template

	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if res.Time == 0 {
		res.Time = elapsed
	}
	logger.LogEvent("PAIR", res.Status != vision.StatusError, elapsed, describe(p, res))
	return res
}

func (r *Runner) locatePair(p Pair) (*vision.MatchResult, error) {
	scene, err := r.cache.Load(p.Scene)
	if err != nil {
		return nil, err
	}
	tmpl, err := r.cache.Load(p.Template)
	if err != nil {
		return nil, err
	}
	return r.locator.Locate(scene, tmpl)
}

// sceneRefs 记录每个场景尚未完成的组合数
// 同时作为模板使用的路径不计入，避免被提前移出缓存。
type sceneRefs struct {
	mu        sync.Mutex
	remaining map[string]int
}

func newSceneRefs(pairs []Pair) *sceneRefs {
	templates := make(map[string]bool)
	for _, p := range pairs {
		templates[p.Template] = true
	}
	remaining := make(map[string]int)
	for _, p := range pairs {
		if !templates[p.Scene] {
			remaining[p.Scene]++
		}
	}
	return &sceneRefs{remaining: remaining}
}

func (s *sceneRefs) release(cache *imageio.Cache, scene string) {
	s.mu.Lock()
	n, ok := s.remaining[scene]
	if ok {
		n--
		if n <= 0 {
			delete(s.remaining, scene)
		} else {
			s.remaining[scene] = n
		}
	}
	s.mu.Unlock()

	if ok && n <= 0 {
		cache.Evict(scene)
	}
}

// releaseAll 移除取消后未处理完的场景
func (s *sceneRefs) releaseAll(cache *imageio.Cache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for scene := range s.remaining {
		cache.Evict(scene)
	}
	s.remaining = map[string]int{}
}

func describe(p Pair, res *vision.MatchResult) string {
	detail := fmt.Sprintf("%s × %s → %s", filepath.Base(p.Scene), filepath.Base(p.Template), res.Status)
	switch {
	case res.Homography != nil:
		detail += fmt.Sprintf(" (inliers=%d)", res.Homography.Inliers)
	case res.TemplateMatch != nil:
		detail += fmt.Sprintf(" (score=%.3f)", res.TemplateMatch.Score)
	}
	if res.Reason != "" {
		detail += " [" + res.Reason + "]"
	}
	return detail
}

// Summary 批处理统计
type Summary struct {
	Total         int `json:"total"`
	Homography    int `json:"homography"`
	TemplateMatch int `json:"template_match"`
	Failed        int `json:"failed"`
	Errors        int `json:"errors"`
}

// Summarize 按状态统计结果
func Summarize(results []*vision.MatchResult) Summary {
	var s Summary
	for _, res := range results {
		if res == nil {
			continue
		}
		s.Total++
		switch res.Status {
		case vision.StatusHomography:
			s.Homography++
		case vision.StatusTemplateMatch:
			s.TemplateMatch++
		case vision.StatusFailed:
			s.Failed++
		case vision.StatusError:
			s.Errors++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("共 %d 组: homography=%d template_match=%d failed=%d error=%d",
		s.Total, s.Homography, s.TemplateMatch, s.Failed, s.Errors)
}

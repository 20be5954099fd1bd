package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zoeyai/subimage/pkg/batch"
	"github.com/zoeyai/subimage/pkg/vision"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("运行记录不存在")

// Store 基于 SQLite 的结果持久化
type Store struct {
	DB *sql.DB
}

// RunRecord 一次批处理运行
type RunRecord struct {
	ID         string
	Version    string
	Detector   string
	Options    vision.Options
	StartedAt  time.Time
	FinishedAt *time.Time
	Summary    batch.Summary
}

// OpenStore 打开（或创建）数据库并建表
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("无法打开数据库: %w", err)
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            version TEXT NOT NULL,
            detector TEXT NOT NULL,
            options_json TEXT,
            started_at TEXT NOT NULL,
            finished_at TEXT,
            total INTEGER DEFAULT 0,
            homography INTEGER DEFAULT 0,
            template_match INTEGER DEFAULT 0,
            failed INTEGER DEFAULT 0,
            errors INTEGER DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS results (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            pair_index INTEGER NOT NULL,
            scene TEXT NOT NULL,
            template TEXT NOT NULL,
            status TEXT NOT NULL,
            detector TEXT,
            reason TEXT,
            num_kp_scene INTEGER,
            num_kp_tmpl INTEGER,
            num_matches_raw INTEGER,
            num_matches_good INTEGER,
            inliers INTEGER,
            reproj_error REAL,
            good_match_ratio REAL,
            poly TEXT,
            score REAL,
            error TEXT,
            elapsed_ms REAL,
            detail_json TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// BeginRun 创建运行记录，返回运行 ID
func (s *Store) BeginRun(opts vision.Options) (string, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("序列化配置失败: %w", err)
	}
	id := uuid.NewString()
	_, err = s.DB.Exec(`INSERT INTO runs (id, version, detector, options_json, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, vision.Version, string(opts.Detector), string(optsJSON), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("写入运行记录失败: %w", err)
	}
	return id, nil
}

// SaveResults 在一个事务中写入结果，pair_index 取结果在切片中的位置
func (s *Store) SaveResults(runID string, results []*vision.MatchResult) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO results (
            run_id, pair_index, scene, template, status, detector, reason,
            num_kp_scene, num_kp_tmpl, num_matches_raw, num_matches_good,
            inliers, reproj_error, good_match_ratio, poly, score, error, elapsed_ms, detail_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()

	for i, res := range results {
		if res == nil {
			continue
		}
		detail, err := json.Marshal(res)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("序列化结果失败: %w", err)
		}
		if _, err := stmt.Exec(append([]any{runID, i}, resultColumns(res, string(detail))...)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("写入结果失败: %w", err)
		}
	}
	return tx.Commit()
}

// resultColumns 按 results 表的列顺序（run_id、pair_index 之后）展开结果
func resultColumns(res *vision.MatchResult, detail string) []any {
	var (
		kpScene, kpTmpl, raw, good, inliers any
		reproj, ratio, poly, score          any
	)
	if res.Status != vision.StatusError {
		kpScene = res.Diagnostics.NumKpScene
		kpTmpl = res.Diagnostics.NumKpTemplate
		raw = res.Diagnostics.NumMatchesRaw
		good = res.Diagnostics.NumMatchesGood
	}
	if h := res.Homography; h != nil {
		inliers = h.Inliers
		reproj = h.ReprojError
		ratio = h.GoodMatchRatio
	}
	if p, ok := res.Polygon(); ok {
		if data, err := json.Marshal(p); err == nil {
			poly = string(data)
		}
	}
	if tm := res.TemplateMatch; tm != nil {
		score = tm.Score
	}
	return []any{
		res.Scene, res.Template, string(res.Status), string(res.Detector), res.Reason,
		kpScene, kpTmpl, raw, good,
		inliers, reproj, ratio, poly, score, res.Error, res.Time, detail,
	}
}

// FinishRun 写入完成时间与统计
func (s *Store) FinishRun(runID string, sum batch.Summary) error {
	r, err := s.DB.Exec(`UPDATE runs SET finished_at = ?, total = ?, homography = ?, template_match = ?, failed = ?, errors = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), sum.Total, sum.Homography, sum.TemplateMatch, sum.Failed, sum.Errors, runID)
	if err != nil {
		return fmt.Errorf("更新运行记录失败: %w", err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Run 读取运行记录
func (s *Store) Run(runID string) (*RunRecord, error) {
	var (
		rec      RunRecord
		optsJSON sql.NullString
		started  string
		finished sql.NullString
	)
	err := s.DB.QueryRow(`SELECT id, version, detector, options_json, started_at, finished_at,
            total, homography, template_match, failed, errors FROM runs WHERE id = ?`, runID).
		Scan(&rec.ID, &rec.Version, &rec.Detector, &optsJSON, &started, &finished,
			&rec.Summary.Total, &rec.Summary.Homography, &rec.Summary.TemplateMatch,
			&rec.Summary.Failed, &rec.Summary.Errors)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取运行记录失败: %w", err)
	}

	if optsJSON.Valid {
		if err := json.Unmarshal([]byte(optsJSON.String), &rec.Options); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("解析开始时间失败: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("解析结束时间失败: %w", err)
		}
		rec.FinishedAt = &t
	}
	return &rec, nil
}

// Results 按枚举顺序读取运行的全部结果
func (s *Store) Results(runID string) ([]*vision.MatchResult, error) {
	rows, err := s.DB.Query(`SELECT detail_json FROM results WHERE run_id = ? ORDER BY pair_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("查询结果失败: %w", err)
	}
	defer rows.Close()

	var results []*vision.MatchResult
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("读取结果失败: %w", err)
		}
		var res vision.MatchResult
		if err := json.Unmarshal([]byte(detail), &res); err != nil {
			return nil, fmt.Errorf("解析结果失败: %w", err)
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

// CountByStatus 统计运行中各状态的数量
func (s *Store) CountByStatus(runID string) (map[vision.Status]int, error) {
	rows, err := s.DB.Query(`SELECT status, COUNT(*) FROM results WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("统计结果失败: %w", err)
	}
	defer rows.Close()

	counts := make(map[vision.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[vision.Status(status)] = n
	}
	return counts, rows.Err()
}

package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/segmentio/ksuid"

	"github.com/chaos-io/rmbg/util"
)

var ErrNotFound = errors.New("image not found")

// Record 一次处理结果的索引信息
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store 结果图片落盘，索引存在 SQLite 里
type Store struct {
	dir  string
	db   *sql.DB
	cron *cron.Cron
	now  func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS results (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	format TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	size INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);`

// Open 打开（必要时创建）存储目录和索引库
func Open(dir, dbPath string) (*Store, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), os.ModePerm); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite 单写者
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{dir: dir, db: db, now: time.Now}, nil
}

// Save 编码并保存结果，返回新记录
func (s *Store) Save(ctx context.Context, name string, format util.Format, img image.Image) (*Record, error) {
	var buf bytes.Buffer
	if err := util.EncodeImage(&buf, img, format); err != nil {
		return nil, err
	}

	now := s.now()
	id, err := ksuid.NewRandomWithTime(now)
	if err != nil {
		return nil, fmt.Errorf("new id: %w", err)
	}
	rec := &Record{
		ID:        id.String(),
		Name:      name,
		Format:    string(format),
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
		Size:      int64(buf.Len()),
		CreatedAt: now.UTC(),
	}

	path := s.Path(rec)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, name, format, width, height, size, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Format, rec.Width, rec.Height, rec.Size, now.UnixNano())
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("insert record: %w", err)
	}

	slog.Debug("result saved", "id", rec.ID, "name", name, "size", rec.Size)
	return rec, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if _, err := ksuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, format, width, height, size, created_at FROM results WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List 按时间倒序返回最近 limit 条记录
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, format, width, height, size, created_at FROM results ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Purge 删除 before 之前的记录和文件，返回删除条数
func (s *Store) Purge(ctx context.Context, before time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, format, width, height, size, created_at FROM results WHERE created_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("select expired: %w", err)
	}
	var expired []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan record: %w", err)
		}
		expired = append(expired, rec)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range expired {
		if err := os.Remove(s.Path(rec)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("remove expired image", "id", rec.ID, "err", err)
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, rec.ID); err != nil {
			return n, fmt.Errorf("delete record: %w", err)
		}
		n++
	}
	return n, nil
}

// StartJanitor 按 cron 表达式定期清理超过 retention 的结果
func (s *Store) StartJanitor(schedule string, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n, err := s.Purge(context.Background(), s.now().Add(-retention))
		if err != nil {
			slog.Error("purge expired results", "err", err)
			return
		}
		slog.Info("purged expired results", "count", n, "retention", retention)
	})
	if err != nil {
		return fmt.Errorf("parse cleanup schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Path 结果文件的本地路径
func (s *Store) Path(rec *Record) string {
	return filepath.Join(s.dir, rec.ID+"."+rec.Format)
}

func (s *Store) Close() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var created int64
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Format, &rec.Width, &rec.Height, &rec.Size, &created); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}

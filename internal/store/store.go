// Package store persists completed audit runs and their findings, and
// serves keyword retrieval of historically similar findings for prompt
// enrichment. SQLite by default; postgres for shared deployments.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"veridian/internal/finding"
)

type AuditRun struct {
	ID            uint   `gorm:"primaryKey"`
	ProjectName   string `gorm:"index"`
	ProtocolType  string
	Provider      string
	ContractCount int
	FindingCount  int
	DurationSecs  int64
	CreatedAt     time.Time
}

type FindingRecord struct {
	ID              uint   `gorm:"primaryKey"`
	RunID           uint   `gorm:"index"`
	FindingID       string
	Category        string `gorm:"index"`
	Severity        string `gorm:"index"`
	Title           string
	Description     string
	FilePath        string
	FunctionName    string
	StartLine       int
	EndLine         int
	DetectionMethod string
	Confidence      float64
	CreatedAt       time.Time
}

type Config struct {
	Driver string // "sqlite" (default) or "postgres"
	Path   string // sqlite file path
	DSN    string // postgres connection string
}

type Store struct {
	db *gorm.DB
}

// Open connects and migrates the schema. A nil *Store is a valid "no
// persistence" value for callers that treat the store as optional.
func Open(cfg Config) (*Store, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "data/veridian.db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err = gorm.Open(sqlite.Open(path), gormCfg)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	if err := db.AutoMigrate(&AuditRun{}, &FindingRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveRun records one completed run with its findings.
func (s *Store) SaveRun(ctx context.Context, run *AuditRun, findings []finding.Finding) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	if len(findings) == 0 {
		return nil
	}

	records := make([]FindingRecord, 0, len(findings))
	for _, f := range findings {
		records = append(records, FindingRecord{
			RunID:           run.ID,
			FindingID:       f.ID,
			Category:        string(f.Category),
			Severity:        string(f.Severity),
			Title:           f.Title,
			Description:     f.Description,
			FilePath:        f.Location.FilePath,
			FunctionName:    f.Location.FunctionName,
			StartLine:       f.Location.StartLine,
			EndLine:         f.Location.EndLine,
			DetectionMethod: f.DetectionMethod,
			Confidence:      f.Confidence,
		})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(records, 100).Error; err != nil {
		return fmt.Errorf("failed to save findings: %w", err)
	}
	return nil
}

// RecentRuns lists past runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]AuditRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []AuditRun
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// SearchSimilar retrieves stored findings whose title or description shares
// significant terms with text. Keyword retrieval, not embeddings; good
// enough to remind the model of previously confirmed bug shapes.
func (s *Store) SearchSimilar(ctx context.Context, text string, limit int) ([]FindingRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	terms := significantTerms(text, 8)
	if len(terms) == 0 {
		return nil, nil
	}

	q := s.db.WithContext(ctx).Model(&FindingRecord{})
	conds := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms)*2)
	for _, term := range terms {
		conds = append(conds, "(lower(title) LIKE ? OR lower(description) LIKE ?)")
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}

	var records []FindingRecord
	err := q.Where(strings.Join(conds, " OR "), args...).
		Order("confidence DESC, created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("similar-finding search failed: %w", err)
	}
	return records, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "when": true, "then": true, "function": true,
	"contract": true, "address": true, "uint256": true, "return": true,
	"returns": true, "public": true, "external": true, "internal": true,
}

func significantTerms(text string, max int) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(word) <= 3 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
		if len(terms) >= max {
			break
		}
	}
	return terms
}

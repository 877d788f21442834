// Package gormstore is the SQLite-backed Recorder. One file, WAL mode, a
// couple of connections; enough for an append-mostly audit trail with
// concurrent HTTP reads.
package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"helmsman/internal/store"
)

type tradeEventModel struct {
	ID         string `gorm:"column:id;primaryKey"`
	TraceID    string `gorm:"column:trace_id;index"`
	ModelID    string `gorm:"column:model_id;index:idx_trade_model_symbol,priority:1"`
	Symbol     string `gorm:"column:symbol;index:idx_trade_model_symbol,priority:2"`
	Kind       string `gorm:"column:kind"`
	Side       string `gorm:"column:side"`
	Quantity   string `gorm:"column:quantity"`
	Price      string `gorm:"column:price"`
	Leverage   int    `gorm:"column:leverage"`
	Confidence string `gorm:"column:confidence"`
	Rationale  string `gorm:"column:rationale;type:TEXT"`
	OrderID    string `gorm:"column:order_id"`
	Simulated  bool   `gorm:"column:simulated"`
	PosSide    string `gorm:"column:pos_side"`
	PosSize    string `gorm:"column:pos_size"`
	PosEntry   string `gorm:"column:pos_entry"`
	CreatedAt  int64  `gorm:"column:created_at;index"`
}

func (tradeEventModel) TableName() string { return "trade_events" }

type decisionModel struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement"`
	TraceID    string         `gorm:"column:trace_id"`
	ModelID    string         `gorm:"column:model_id;index:idx_decision_model,priority:1"`
	Symbol     string         `gorm:"column:symbol;index:idx_decision_model,priority:2"`
	Action     string         `gorm:"column:action"`
	Confidence string         `gorm:"column:confidence"`
	Decision   string         `gorm:"column:decision"`
	Reason     string         `gorm:"column:reason;type:TEXT"`
	Snapshot   datatypes.JSON `gorm:"column:snapshot;type:TEXT"`
	RawOutput  string         `gorm:"column:raw_output;type:TEXT"`
	CreatedAt  int64          `gorm:"column:created_at;index"`
}

func (decisionModel) TableName() string { return "decision_log" }

type balanceModel struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ModelID   string `gorm:"column:model_id;index"`
	Equity    string `gorm:"column:equity"`
	Available string `gorm:"column:available"`
	Used      string `gorm:"column:used"`
	CreatedAt int64  `gorm:"column:created_at;index"`
}

func (balanceModel) TableName() string { return "balance_snapshots" }

// Store implements store.Recorder on SQLite via gorm.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("gorm store: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tradeEventModel{}, &decisionModel{}, &balanceModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) RecordTrade(ctx context.Context, rec store.TradeRecord) error {
	row := tradeEventModel{
		ID:         rec.ID,
		TraceID:    rec.TraceID,
		ModelID:    rec.ModelID,
		Symbol:     rec.Symbol,
		Kind:       rec.Kind,
		Side:       rec.Side,
		Quantity:   rec.Quantity,
		Price:      rec.Price,
		Leverage:   rec.Leverage,
		Confidence: rec.Confidence,
		Rationale:  rec.Rationale,
		OrderID:    rec.OrderID,
		Simulated:  rec.Simulated,
		PosSide:    rec.PosSide,
		PosSize:    rec.PosSize,
		PosEntry:   rec.PosEntry,
		CreatedAt:  unix(rec.CreatedAt),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) RecordDecision(ctx context.Context, rec store.DecisionRecord) error {
	row := decisionModel{
		TraceID:    rec.TraceID,
		ModelID:    rec.ModelID,
		Symbol:     rec.Symbol,
		Action:     rec.Action,
		Confidence: rec.Confidence,
		Decision:   rec.Decision,
		Reason:     rec.Reason,
		Snapshot:   datatypes.JSON(rec.Snapshot),
		RawOutput:  rec.RawOutput,
		CreatedAt:  unix(rec.CreatedAt),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) RecordBalance(ctx context.Context, rec store.BalanceRecord) error {
	row := balanceModel{
		ModelID:   rec.ModelID,
		Equity:    rec.Equity,
		Available: rec.Available,
		Used:      rec.Used,
		CreatedAt: unix(rec.CreatedAt),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListTrades(ctx context.Context, modelID string, limit int) ([]store.TradeRecord, error) {
	var rows []tradeEventModel
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(clampLimit(limit))
	if modelID != "" {
		q = q.Where("model_id = ?", modelID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.TradeRecord{
			ID:         r.ID,
			TraceID:    r.TraceID,
			ModelID:    r.ModelID,
			Symbol:     r.Symbol,
			Kind:       r.Kind,
			Side:       r.Side,
			Quantity:   r.Quantity,
			Price:      r.Price,
			Leverage:   r.Leverage,
			Confidence: r.Confidence,
			Rationale:  r.Rationale,
			OrderID:    r.OrderID,
			Simulated:  r.Simulated,
			PosSide:    r.PosSide,
			PosSize:    r.PosSize,
			PosEntry:   r.PosEntry,
			CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}

func (s *Store) ListDecisions(ctx context.Context, modelID string, limit int) ([]store.DecisionRecord, error) {
	var rows []decisionModel
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(clampLimit(limit))
	if modelID != "" {
		q = q.Where("model_id = ?", modelID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.DecisionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.DecisionRecord{
			TraceID:    r.TraceID,
			ModelID:    r.ModelID,
			Symbol:     r.Symbol,
			Action:     r.Action,
			Confidence: r.Confidence,
			Decision:   r.Decision,
			Reason:     r.Reason,
			Snapshot:   []byte(r.Snapshot),
			RawOutput:  r.RawOutput,
			CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}

func (s *Store) ListBalances(ctx context.Context, modelID string, limit int) ([]store.BalanceRecord, error) {
	var rows []balanceModel
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(clampLimit(limit))
	if modelID != "" {
		q = q.Where("model_id = ?", modelID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.BalanceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.BalanceRecord{
			ModelID:   r.ModelID,
			Equity:    r.Equity,
			Available: r.Available,
			Used:      r.Used,
			CreatedAt: time.Unix(r.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/heapscope/pkg/model"
)

// ResultRepository persists analysis results.
type ResultRepository interface {
	// SaveResult stores a full analysis result, replacing any earlier
	// result with the same run UUID.
	SaveResult(ctx context.Context, res *model.AnalysisResult) error

	// GetResultByRunUUID loads a stored result by run UUID.
	GetResultByRunUUID(ctx context.Context, runUUID string) (*model.AnalysisResult, error)

	// ListRuns returns recent run summaries, newest first.
	ListRuns(ctx context.Context, limit int) ([]*AnalysisRun, error)

	// GetFindingsByRunUUID loads the broken-out finding rows of a run.
	GetFindingsByRunUUID(ctx context.Context, runUUID string) ([]model.LeakFinding, error)
}

// GormResultRepository implements ResultRepository using GORM.
type GormResultRepository struct {
	db *gorm.DB
}

// NewGormResultRepository creates a new GormResultRepository.
func NewGormResultRepository(db *gorm.DB) *GormResultRepository {
	return &GormResultRepository{db: db}
}

// SaveResult stores the run row plus its finding and growth rows in one
// transaction. Re-saving a run UUID replaces the earlier rows.
func (r *GormResultRepository) SaveResult(ctx context.Context, res *model.AnalysisResult) error {
	if res == nil || res.RunUUID == "" {
		return errors.New("result must carry a run UUID")
	}

	run, err := newAnalysisRun(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_uuid"}},
			UpdateAll: true,
		}).Create(run).Error
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}

		if err := tx.Where("run_uuid = ?", res.RunUUID).Delete(&FindingRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear findings: %w", err)
		}
		if err := tx.Where("run_uuid = ?", res.RunUUID).Delete(&GrowthRecordRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear growth records: %w", err)
		}

		for _, f := range res.Findings {
			rec, err := newFindingRecord(res.RunUUID, f)
			if err != nil {
				return fmt.Errorf("failed to encode finding: %w", err)
			}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("failed to save finding: %w", err)
			}
		}

		if res.Growth != nil {
			for _, g := range res.Growth.Records {
				row, err := newGrowthRecordRow(res.RunUUID, g)
				if err != nil {
					return fmt.Errorf("failed to encode growth record: %w", err)
				}
				if err := tx.Create(row).Error; err != nil {
					return fmt.Errorf("failed to save growth record: %w", err)
				}
			}
		}

		return nil
	})
}

// GetResultByRunUUID loads a stored result by run UUID.
func (r *GormResultRepository) GetResultByRunUUID(ctx context.Context, runUUID string) (*model.AnalysisResult, error) {
	var run AnalysisRun

	err := r.db.WithContext(ctx).Where("run_uuid = ?", runUUID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found: %s", runUUID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run.ToModel()
}

// ListRuns returns recent run summaries, newest first.
func (r *GormResultRepository) ListRuns(ctx context.Context, limit int) ([]*AnalysisRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var runs []*AnalysisRun
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// GetFindingsByRunUUID loads the broken-out finding rows of a run.
func (r *GormResultRepository) GetFindingsByRunUUID(ctx context.Context, runUUID string) ([]model.LeakFinding, error) {
	var rows []FindingRecord

	err := r.db.WithContext(ctx).
		Where("run_uuid = ?", runUUID).
		Order("confidence DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}

	findings := make([]model.LeakFinding, 0, len(rows))
	for _, row := range rows {
		f, err := row.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to decode finding: %w", err)
		}
		findings = append(findings, f)
	}

	return findings, nil
}

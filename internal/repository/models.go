// Package repository provides database persistence for analysis results.
package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/heapscope/pkg/model"
)

// JSONField stores raw JSON in a database column.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// AnalysisRun represents the analysis_runs table. The full result payload
// is stored as JSON; findings and growth records are additionally broken
// out into their own tables for querying.
type AnalysisRun struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunUUID       string    `gorm:"column:run_uuid;type:varchar(64);uniqueIndex"`
	AnalyzedAt    time.Time `gorm:"column:analyzed_at"`
	SnapshotCount int       `gorm:"column:snapshot_count"`
	FindingCount  int       `gorm:"column:finding_count"`
	Result        JSONField `gorm:"column:result;type:json"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// newAnalysisRun converts a result to its row form.
func newAnalysisRun(res *model.AnalysisResult) (*AnalysisRun, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return &AnalysisRun{
		RunUUID:       res.RunUUID,
		AnalyzedAt:    res.AnalyzedAt,
		SnapshotCount: len(res.Snapshots),
		FindingCount:  len(res.Findings),
		Result:        payload,
	}, nil
}

// ToModel unmarshals the stored result payload.
func (r *AnalysisRun) ToModel() (*model.AnalysisResult, error) {
	var res model.AnalysisResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TableName returns the table name for AnalysisRun.
func (AnalysisRun) TableName() string {
	return "analysis_runs"
}

// FindingRecord represents the leak_findings table.
type FindingRecord struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunUUID     string    `gorm:"column:run_uuid;type:varchar(64);index"`
	Category    string    `gorm:"column:category;type:varchar(64)"`
	Severity    string    `gorm:"column:severity;type:varchar(16)"`
	Confidence  int       `gorm:"column:confidence"`
	NodeIDs     JSONField `gorm:"column:node_ids;type:json"`
	Description string    `gorm:"column:description;type:text"`
	Remediation string    `gorm:"column:remediation;type:text"`
	Path        JSONField `gorm:"column:path;type:json"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for FindingRecord.
func (FindingRecord) TableName() string {
	return "leak_findings"
}

// newFindingRecord converts one finding to its row form.
func newFindingRecord(runUUID string, f model.LeakFinding) (*FindingRecord, error) {
	nodeIDs, err := json.Marshal(f.NodeIDs)
	if err != nil {
		return nil, err
	}
	rec := &FindingRecord{
		RunUUID:     runUUID,
		Category:    string(f.Category),
		Severity:    string(f.Severity),
		Confidence:  f.Confidence,
		NodeIDs:     nodeIDs,
		Description: f.Description,
		Remediation: f.Remediation,
	}
	if f.Path != nil {
		path, err := json.Marshal(f.Path)
		if err != nil {
			return nil, err
		}
		rec.Path = path
	}
	return rec, nil
}

// ToModel converts a FindingRecord back to a LeakFinding.
func (r *FindingRecord) ToModel() (model.LeakFinding, error) {
	f := model.LeakFinding{
		Category:    model.LeakCategory(r.Category),
		Severity:    model.Significance(r.Severity),
		Confidence:  r.Confidence,
		Description: r.Description,
		Remediation: r.Remediation,
	}
	if r.NodeIDs != nil {
		if err := json.Unmarshal(r.NodeIDs, &f.NodeIDs); err != nil {
			return f, err
		}
	}
	if r.Path != nil {
		var path model.RetainerPath
		if err := json.Unmarshal(r.Path, &path); err != nil {
			return f, err
		}
		f.Path = &path
	}
	return f, nil
}

// GrowthRecordRow represents the growth_records table.
type GrowthRecordRow struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunUUID     string    `gorm:"column:run_uuid;type:varchar(64);index"`
	NodeID      uint64    `gorm:"column:node_id"`
	Name        string    `gorm:"column:name;type:varchar(512)"`
	Kind        string    `gorm:"column:kind;type:varchar(32)"`
	Pattern     string    `gorm:"column:pattern;type:varchar(16)"`
	TotalGrowth int64     `gorm:"column:total_growth"`
	SizeHistory JSONField `gorm:"column:size_history;type:json"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for GrowthRecordRow.
func (GrowthRecordRow) TableName() string {
	return "growth_records"
}

// newGrowthRecordRow converts one growth record to its row form.
func newGrowthRecordRow(runUUID string, g model.GrowthRecord) (*GrowthRecordRow, error) {
	history, err := json.Marshal(g.SizeHistory)
	if err != nil {
		return nil, err
	}
	return &GrowthRecordRow{
		RunUUID:     runUUID,
		NodeID:      g.NodeID,
		Name:        g.Name,
		Kind:        g.Kind,
		Pattern:     string(g.Pattern),
		TotalGrowth: g.TotalGrowth,
		SizeHistory: history,
	}, nil
}

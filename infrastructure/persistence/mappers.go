package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/helixml/codestore/domain/record"
)

// recordMapper converts between record.Record and RecordModel.
type recordMapper struct{}

func (recordMapper) ToDomain(m RecordModel) (record.Record, error) {
	var metadata record.Metadata
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return record.Record{}, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
		}
	} else {
		metadata = record.NewMetadata()
	}

	return record.Reconstruct(
		m.ID,
		m.OwnerID,
		m.SourceText,
		m.EntityName,
		m.BackendName,
		m.ModelName,
		m.ContentHash,
		m.FileHash,
		m.FilePathRelative,
		m.FilePathAbsolute,
		m.SummaryText,
		m.VectorDimensions,
		record.Kind(m.Kind),
		m.ParentID,
		m.CreatedAt,
		metadata,
	), nil
}

func (recordMapper) ToModel(r record.Record) (RecordModel, error) {
	metadata, err := json.Marshal(r.Metadata())
	if err != nil {
		return RecordModel{}, fmt.Errorf("encode metadata of %s: %w", r.ID(), err)
	}

	return RecordModel{
		ID:               r.ID(),
		OwnerID:          r.OwnerID(),
		SourceText:       r.SourceText(),
		EntityName:       r.EntityName(),
		BackendName:      r.BackendName(),
		ModelName:        r.ModelName(),
		ContentHash:      r.ContentHash(),
		FileHash:         r.FileHash(),
		FilePathRelative: r.FilePathRelative(),
		FilePathAbsolute: r.FilePathAbsolute(),
		SummaryText:      r.SummaryText(),
		VectorDimensions: r.VectorDimensions(),
		Kind:             string(r.Kind()),
		ParentID:         r.ParentID(),
		Metadata:         string(metadata),
		CreatedAt:        r.CreatedAt(),
	}, nil
}

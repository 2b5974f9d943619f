package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// applyTestFilters composes the listing predicate. GetTestRecords and
// GetTestRecordsCount both go through here so page arithmetic derived
// from the count always agrees with the listing.
func (s *store) applyTestFilters(
	query *gorm.DB, filters *TestFilters,
) *gorm.DB {
	if filters == nil {
		filters = &TestFilters{}
	}

	if filters.StartDate != nil {
		query = query.Where("tests.created_at >= ?", *filters.StartDate)
	}

	if filters.EndDate != nil {
		query = query.Where("tests.created_at <= ?", *filters.EndDate)
	}

	if filters.CPID != "" {
		query = query.Where("tests.cpid = ?", filters.CPID)
	}

	if filters.Signed {
		// Signed mode: only records whose public_key metadata matches
		// one of the caller's keys.
		query = query.
			Joins("JOIN test_meta ON test_meta.test_id = tests.id").
			Where("test_meta.meta_key = ?", MetaPublicKey).
			Where("test_meta.value IN ?", filters.PubKeys)
	} else {
		// Default mode: exclude every record that carries a public_key
		// entry at all. A shared-but-signed record is therefore absent
		// from both listing modes even though it is readable by ID.
		signedIDs := s.db.
			Model(&TestMeta{}).
			Select("test_id").
			Where("meta_key = ?", MetaPublicKey)

		query = query.Where("tests.id NOT IN (?)", signedIDs)
	}

	return query
}

// GetTestRecords returns one page of test records matching the filters,
// newest first. Pages are 1-indexed; page bounds are validated by the
// caller before any query runs.
func (s *store) GetTestRecords(
	ctx context.Context, page, perPage int, filters *TestFilters,
) ([]Test, error) {
	query := s.db.WithContext(ctx).Model(&Test{})
	query = s.applyTestFilters(query, filters)

	var tests []Test
	if err := query.
		Order("tests.created_at DESC").
		Offset(perPage * (page - 1)).
		Limit(perPage).
		Find(&tests).Error; err != nil {
		return nil, fmt.Errorf("listing test records: %w", err)
	}

	return tests, nil
}

// GetTestRecordsCount returns the total number of records matching the
// filters, using the same predicate as GetTestRecords.
func (s *store) GetTestRecordsCount(
	ctx context.Context, filters *TestFilters,
) (int64, error) {
	query := s.db.WithContext(ctx).Model(&Test{})
	query = s.applyTestFilters(query, filters)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting test records: %w", err)
	}

	return count, nil
}

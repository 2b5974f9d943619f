package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvaneck/refstack/pkg/api/store"
)

// seedTest stores a submission and returns the record as persisted.
func seedTest(
	t *testing.T,
	s store.Store,
	cpid string,
	metadata map[string]string,
) *store.Test {
	t.Helper()

	testID, err := s.StoreResults(context.Background(), &store.TestSubmission{
		CPID:     cpid,
		Results:  []store.ResultEntry{{Name: "tempest.api.one"}},
		Metadata: metadata,
	})
	require.NoError(t, err)

	test, err := s.GetTest(context.Background(), testID)
	require.NoError(t, err)

	return test
}

func recordIDs(records []store.Test) []string {
	ids := make([]string, 0, len(records))
	for i := range records {
		ids = append(ids, records[i].ID)
	}

	return ids
}

func TestGetTestRecords_VisibilityModes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	keyOne := "ssh-rsa a2V5LW9uZQ=="
	keyTwo := "ssh-rsa a2V5LXR3bw=="

	unsigned := seedTest(t, s, "cloud", nil)
	signedOwn := seedTest(t, s, "cloud",
		map[string]string{store.MetaPublicKey: keyOne})
	signedOther := seedTest(t, s, "cloud",
		map[string]string{store.MetaPublicKey: keyTwo})
	sharedSigned := seedTest(t, s, "cloud", map[string]string{
		store.MetaPublicKey:     keyOne,
		store.MetaSharedTestRun: "true",
	})

	// Default mode returns only records without a public_key entry.
	records, err := s.GetTestRecords(ctx, 1, 10, &store.TestFilters{})
	require.NoError(t, err)
	assert.Equal(t, []string{unsigned.ID}, recordIDs(records))

	// Signed mode returns exactly the records matching the caller's keys.
	records, err = s.GetTestRecords(ctx, 1, 10, &store.TestFilters{
		Signed:  true,
		PubKeys: []string{keyOne},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{signedOwn.ID, sharedSigned.ID}, recordIDs(records))

	// A caller with no keys in signed mode sees nothing.
	records, err = s.GetTestRecords(ctx, 1, 10, &store.TestFilters{
		Signed:  true,
		PubKeys: []string{},
	})
	require.NoError(t, err)
	assert.Empty(t, records)

	// Pin: a shared-but-signed record is listed in neither mode for a
	// caller who does not own its key, even though it is readable by
	// direct lookup. The listing and the record-level access check
	// intentionally disagree here.
	records, err = s.GetTestRecords(ctx, 1, 10, &store.TestFilters{
		Signed:  true,
		PubKeys: []string{keyTwo},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{signedOther.ID}, recordIDs(records))

	count, err := s.GetTestRecordsCount(ctx, &store.TestFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestGetTestRecords_DateAndCPIDFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := seedTest(t, s, "cloud-a", nil)
	second := seedTest(t, s, "cloud-b", nil)
	third := seedTest(t, s, "cloud-a", nil)

	// CPID is an exact match.
	records, err := s.GetTestRecords(ctx, 1, 10, &store.TestFilters{
		CPID: "cloud-a",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{first.ID, third.ID}, recordIDs(records))

	// Date bounds are inclusive on both ends.
	records, err = s.GetTestRecords(ctx, 1, 10, &store.TestFilters{
		StartDate: &first.CreatedAt,
		EndDate:   &second.CreatedAt,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{first.ID, second.ID}, recordIDs(records))

	records, err = s.GetTestRecords(ctx, 1, 10, &store.TestFilters{
		StartDate: &third.CreatedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID}, recordIDs(records))

	// Count uses the identical predicate.
	count, err := s.GetTestRecordsCount(ctx, &store.TestFilters{
		CPID: "cloud-a",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestGetTestRecords_OrderingAndPagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, seedTest(t, s, "cloud", nil).ID)
	}

	// Newest first: reverse of insertion order.
	records, err := s.GetTestRecords(ctx, 1, 10, nil)
	require.NoError(t, err)
	require.Len(t, records, 5)

	for i := range records {
		assert.Equal(t, ids[len(ids)-1-i], records[i].ID)
	}

	// Page 1 holds the two newest, page 3 the single oldest.
	page1, err := s.GetTestRecords(ctx, 1, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[4], ids[3]}, recordIDs(page1))

	page3, err := s.GetTestRecords(ctx, 3, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, recordIDs(page3))

	count, err := s.GetTestRecordsCount(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

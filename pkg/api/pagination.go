package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pvaneck/refstack/pkg/api/acl"
	"github.com/pvaneck/refstack/pkg/api/store"
)

// errParseInputs marks malformed filter or pagination input. It maps
// to a 400 at the HTTP boundary; out-of-range pages are rejected, not
// clamped.
var errParseInputs = errors.New("invalid input")

// Query parameter names for test record listings.
const (
	paramPage      = "page"
	paramStartDate = "start_date"
	paramEndDate   = "end_date"
	paramCPID      = "cpid"
	paramSigned    = "signed"
)

// parseTestFilters builds the filter set from the request query. When
// the signed flag is present the caller must be authenticated and the
// filters carry the caller's key strings.
func (s *server) parseTestFilters(
	r *http.Request, caller *acl.Caller,
) (*store.TestFilters, error) {
	q := r.URL.Query()
	filters := &store.TestFilters{}
	dateFormat := s.cfg.API.InputDateFormat

	if raw := q.Get(paramStartDate); raw != "" {
		t, err := time.Parse(dateFormat, raw)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: invalid start_date %q", errParseInputs, raw,
			)
		}

		filters.StartDate = &t
	}

	if raw := q.Get(paramEndDate); raw != "" {
		t, err := time.Parse(dateFormat, raw)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: invalid end_date %q", errParseInputs, raw,
			)
		}

		filters.EndDate = &t
	}

	if filters.StartDate != nil && filters.EndDate != nil &&
		filters.StartDate.After(*filters.EndDate) {
		return nil, fmt.Errorf(
			"%w: start_date is after end_date", errParseInputs,
		)
	}

	filters.CPID = q.Get(paramCPID)

	if q.Has(paramSigned) {
		if caller == nil {
			return nil, fmt.Errorf(
				"%w: to see signed test results you need to authenticate",
				errParseInputs,
			)
		}

		keys, err := s.store.GetUserPubKeys(r.Context(), caller.OpenID)
		if err != nil {
			return nil, err
		}

		filters.Signed = true
		filters.PubKeys = make([]string, 0, len(keys))

		for i := range keys {
			filters.PubKeys = append(filters.PubKeys, keys[i].KeyString())
		}
	}

	return filters, nil
}

// totalPages returns how many pages the record count occupies.
func totalPages(perPage int, recordsCount int64) int {
	pages := int(recordsCount) / perPage
	if int(recordsCount)%perPage > 0 {
		pages++
	}

	return pages
}

// getPageNumber parses and validates the requested page against the
// record count. The first page exists even when there are no records;
// any other out-of-range page is an error.
func getPageNumber(
	r *http.Request, perPage int, recordsCount int64,
) (page, pages int, err error) {
	pages = totalPages(perPage, recordsCount)

	raw := r.URL.Query().Get(paramPage)
	if raw == "" {
		return 1, pages, nil
	}

	page, err = strconv.Atoi(raw)
	if err != nil {
		return 0, 0, fmt.Errorf(
			"%w: page number %q is not an integer", errParseInputs, raw,
		)
	}

	if page == 1 {
		return page, pages, nil
	}

	if page <= 0 {
		return 0, 0, fmt.Errorf(
			"%w: page number is less than or equal to zero", errParseInputs,
		)
	}

	if page > pages {
		return 0, 0, fmt.Errorf(
			"%w: page number is greater than the total number of pages",
			errParseInputs,
		)
	}

	return page, pages, nil
}

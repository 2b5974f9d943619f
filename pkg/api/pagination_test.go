package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalPages(t *testing.T) {
	tests := []struct {
		perPage int
		count   int64
		want    int
	}{
		{20, 0, 0},
		{20, 1, 1},
		{20, 20, 1},
		{20, 21, 2},
		{20, 100, 5},
		{20, 101, 6},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, totalPages(tt.perPage, tt.count),
			"perPage=%d count=%d", tt.perPage, tt.count)
	}
}

func TestGetPageNumber(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		count     int64
		wantPage  int
		wantPages int
		wantErr   bool
	}{
		{
			name:      "missing page defaults to first",
			query:     "",
			count:     100,
			wantPage:  1,
			wantPages: 5,
		},
		{
			name:      "last page",
			query:     "page=5",
			count:     100,
			wantPage:  5,
			wantPages: 5,
		},
		{
			name:    "page past the end is rejected",
			query:   "page=6",
			count:   100,
			wantErr: true,
		},
		{
			name:    "page zero is rejected",
			query:   "page=0",
			count:   100,
			wantErr: true,
		},
		{
			name:    "negative page is rejected",
			query:   "page=-3",
			count:   100,
			wantErr: true,
		},
		{
			name:    "non-integer page is rejected",
			query:   "page=abc",
			count:   100,
			wantErr: true,
		},
		{
			name:      "first page exists with no records",
			query:     "page=1",
			count:     0,
			wantPage:  1,
			wantPages: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(
				"GET", "/v1/results?"+tt.query, nil,
			)

			page, pages, err := getPageNumber(r, 20, tt.count)
			if tt.wantErr {
				require.ErrorIs(t, err, errParseInputs)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantPages, pages)
		})
	}
}

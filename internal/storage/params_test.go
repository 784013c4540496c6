package storage

import "testing"

func TestListParams_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ListParams
		want ListParams
	}{
		{
			name: "defaults",
			in:   ListParams{},
			want: ListParams{Page: 1, PageSize: DefaultPageSize, SortField: SortCreatedAt, SortOrder: OrderDesc},
		},
		{
			name: "valid_passthrough",
			in:   ListParams{Page: 3, PageSize: 25, SortField: SortVolume24h, SortOrder: OrderAsc},
			want: ListParams{Page: 3, PageSize: 25, SortField: SortVolume24h, SortOrder: OrderAsc},
		},
		{
			name: "unknown_sort_falls_back_to_created_desc",
			in:   ListParams{Page: 1, PageSize: 10, SortField: "priceUsd; DROP TABLE tokens", SortOrder: OrderAsc},
			want: ListParams{Page: 1, PageSize: 10, SortField: SortCreatedAt, SortOrder: OrderDesc},
		},
		{
			name: "unknown_order_falls_back_to_desc",
			in:   ListParams{Page: 1, PageSize: 10, SortField: SortName, SortOrder: "sideways"},
			want: ListParams{Page: 1, PageSize: 10, SortField: SortName, SortOrder: OrderDesc},
		},
		{
			name: "page_size_clamped",
			in:   ListParams{Page: 0, PageSize: 10_000, SortField: SortMarketCap, SortOrder: OrderDesc},
			want: ListParams{Page: 1, PageSize: MaxPageSize, SortField: SortMarketCap, SortOrder: OrderDesc},
		},
		{
			name: "negative_page",
			in:   ListParams{Page: -5, PageSize: -1, SortField: SortSymbol, SortOrder: OrderAsc},
			want: ListParams{Page: 1, PageSize: DefaultPageSize, SortField: SortSymbol, SortOrder: OrderAsc},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.Normalize()
			if got != tc.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestCleanupStats_Total(t *testing.T) {
	stats := CleanupStats{AgedOut: 3, Unenriched: 2, NoMarket: 1}
	if stats.Total() != 6 {
		t.Errorf("expected total 6, got %d", stats.Total())
	}
}

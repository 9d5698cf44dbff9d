package dto

type ProductFilters struct {
	Category        string
	IncludeArchived bool
	SearchQuery     string // name, sku or barcode
	SortBy          string // name, price, created_at
	SortOrder       string // asc, desc
	Page            int
	PageSize        int
}

package dto

type OrderFilters struct {
	CustomerID string
	Status     string
	Page       int
	PageSize   int
}

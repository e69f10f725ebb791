package pagination

// Pagination is the page-numbered request shape used by list endpoints.
// Pages are 1-indexed.
type Pagination struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=10"`
}

func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}
	if p.Limit > 250 {
		p.Limit = 250
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

type PageInfo struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalNumber int64 `json:"total_number"`
	TotalPages  int   `json:"total_pages"`
}

func BuildPageInfo(p Pagination, total int64) PageInfo {
	pages := int(total) / p.Limit
	if int(total)%p.Limit != 0 {
		pages++
	}

	return PageInfo{
		Page:        p.Page,
		Limit:       p.Limit,
		TotalNumber: total,
		TotalPages:  pages,
	}
}

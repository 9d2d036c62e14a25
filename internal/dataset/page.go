package dataset

// PageSize is the fixed number of rows in one dataset view page.
const PageSize = 10

// Page is one window of the dataset for display.
type Page struct {
	Number     int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	TotalRows  int      `json:"totalRows"`
	Records    []Record `json:"records"`
}

// Paginate returns the 1-based page n. Out-of-range page numbers are
// clamped to the nearest valid page.
func Paginate(records []Record, n int) Page {
	total := len(records)
	pages := (total + PageSize - 1) / PageSize
	if pages == 0 {
		return Page{Number: 1, TotalPages: 0, TotalRows: 0, Records: []Record{}}
	}
	if n < 1 {
		n = 1
	}
	if n > pages {
		n = pages
	}
	start := (n - 1) * PageSize
	end := start + PageSize
	if end > total {
		end = total
	}
	out := make([]Record, end-start)
	copy(out, records[start:end])
	return Page{Number: n, TotalPages: pages, TotalRows: total, Records: out}
}

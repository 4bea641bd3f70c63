package filterspec

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// View is a filter plus a position in its result pages. Any change to the
// filter puts the view back on the first page.
type View struct {
	Filter   FilterSpec
	Page     int
	PageSize int
}

func NewView(pageSize int) View {
	return View{
		Filter:   Default(),
		Page:     1,
		PageSize: clampPageSize(pageSize),
	}
}

// SetFilter replaces the filter and resets to page 1, even when the new
// filter equals the old one.
func (v View) SetFilter(f FilterSpec) View {
	v.Filter = f.Normalize()
	v.Page = 1
	return v
}

func (v View) Clear() View {
	return v.SetFilter(Default())
}

func (v View) SetPage(page, pageSize int) View {
	if page < 1 {
		page = 1
	}

	if pageSize != 0 && clampPageSize(pageSize) != v.PageSize {
		v.PageSize = clampPageSize(pageSize)
		page = 1
	}

	v.Page = page

	return v
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

package domain

// Rating is the remote store's enumerated lead classification. The sentinel
// values are fixed by the remote schema and must be preserved exactly.
type Rating int

const (
	RatingCold Rating = 100000000
	RatingWarm Rating = 100000001
	RatingHot  Rating = 100000002
)

var validRatings = []Rating{RatingCold, RatingWarm, RatingHot}

// Valid reports whether r is one of the three schema sentinels.
func (r Rating) Valid() bool {
	switch r {
	case RatingCold, RatingWarm, RatingHot:
		return true
	}
	return false
}

// Column returns the board column a rating places its lead into.
func (r Rating) Column() Column {
	switch r {
	case RatingWarm:
		return ColumnWarm
	case RatingHot:
		return ColumnHot
	default:
		return ColumnCold
	}
}

// Ratings returns the three sentinels in board order.
func Ratings() []Rating {
	return append([]Rating(nil), validRatings...)
}

// Column identifies one of the three board columns. Column placement is a
// pure function of Rating; the two are never tracked independently.
type Column string

const (
	ColumnCold Column = "cold"
	ColumnWarm Column = "warm"
	ColumnHot  Column = "hot"
)

// Columns returns the board columns in display order.
func Columns() []Column {
	return []Column{ColumnCold, ColumnWarm, ColumnHot}
}

// Rating returns the sentinel value leads in this column carry.
func (c Column) Rating() (Rating, error) {
	switch c {
	case ColumnCold:
		return RatingCold, nil
	case ColumnWarm:
		return RatingWarm, nil
	case ColumnHot:
		return RatingHot, nil
	}
	return 0, ErrInvalidColumn
}

// Valid reports whether c names a board column.
func (c Column) Valid() bool {
	_, err := c.Rating()
	return err == nil
}

// Label returns the human-readable column title.
func (c Column) Label() string {
	switch c {
	case ColumnWarm:
		return "Warm"
	case ColumnHot:
		return "Hot"
	default:
		return "Cold"
	}
}

package domain

import "testing"

// TestColumnRatingMapping verifies the fixed column-to-sentinel mapping.
func TestColumnRatingMapping(t *testing.T) {
	cases := []struct {
		column Column
		want   Rating
	}{
		{ColumnCold, 100000000},
		{ColumnWarm, 100000001},
		{ColumnHot, 100000002},
	}
	for _, tc := range cases {
		got, err := tc.column.Rating()
		if err != nil {
			t.Fatalf("Rating(%s) error = %v", tc.column, err)
		}
		if got != tc.want {
			t.Fatalf("Rating(%s) = %d, want %d", tc.column, got, tc.want)
		}
		if got.Column() != tc.column {
			t.Fatalf("Column(%d) = %s, want %s", got, got.Column(), tc.column)
		}
	}
}

func TestColumnRatingRejectsUnknownColumn(t *testing.T) {
	if _, err := Column("tepid").Rating(); err != ErrInvalidColumn {
		t.Fatalf("Rating(tepid) error = %v, want ErrInvalidColumn", err)
	}
	if Column("tepid").Valid() {
		t.Fatal("Valid(tepid) = true, want false")
	}
}

func TestRatingValid(t *testing.T) {
	for _, r := range Ratings() {
		if !r.Valid() {
			t.Fatalf("Valid(%d) = false, want true", r)
		}
	}
	if Rating(100000003).Valid() {
		t.Fatal("Valid(100000003) = true, want false")
	}
	if Rating(0).Valid() {
		t.Fatal("Valid(0) = true, want false")
	}
}

func TestColumnsOrder(t *testing.T) {
	cols := Columns()
	want := []Column{ColumnCold, ColumnWarm, ColumnHot}
	if len(cols) != len(want) {
		t.Fatalf("Columns() len = %d, want %d", len(cols), len(want))
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("Columns()[%d] = %s, want %s", i, cols[i], want[i])
		}
	}
}

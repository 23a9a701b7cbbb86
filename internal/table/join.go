package table

// join.go - left outer join with column-collision suffixing

// DefaultSuffixes are appended to colliding column names from the left and
// right inputs of a join.
var DefaultSuffixes = [2]string{"_x", "_y"}

// JoinSpec describes an equi-join between two tables.
type JoinSpec struct {
	// LeftOn is the key column in the left table.
	LeftOn string
	// RightOn is the key column in the right table.
	RightOn string
	// Suffixes disambiguate columns present on both sides.
	// Zero value means DefaultSuffixes.
	Suffixes [2]string
}

func (s JoinSpec) suffixes() [2]string {
	if s.Suffixes == [2]string{} {
		return DefaultSuffixes
	}
	return s.Suffixes
}

// sharedKey reports whether both sides join on the same column name, in
// which case the key appears once in the output.
func (s JoinSpec) sharedKey() bool {
	return s.LeftOn == s.RightOn
}

// Side identifies which join input a result column comes from.
type Side int

const (
	// LeftSide is the accumulated (left) input.
	LeftSide Side = iota
	// RightSide is the joined (right) input.
	RightSide
)

// ColumnRef maps an output column of a join back to its input.
type ColumnRef struct {
	Name  string
	Side  Side
	Index int
}

// JoinLayout computes the output columns of a left join without touching
// any rows. Left columns come first in their original order, followed by
// right columns. When both sides join on the same column name the right key
// is dropped; every other name present on both sides receives the left or
// right suffix.
func JoinLayout(left, right []string, spec JoinSpec) ([]ColumnRef, error) {
	if indexOf(left, spec.LeftOn) < 0 {
		return nil, &ColumnNotFoundError{Table: "left", Column: spec.LeftOn}
	}
	if indexOf(right, spec.RightOn) < 0 {
		return nil, &ColumnNotFoundError{Table: "right", Column: spec.RightOn}
	}

	inLeft := make(map[string]bool, len(left))
	for _, c := range left {
		inLeft[c] = true
	}
	inRight := make(map[string]bool, len(right))
	for _, c := range right {
		inRight[c] = true
	}

	overlaps := func(c string) bool {
		if spec.sharedKey() && c == spec.LeftOn {
			return false
		}
		return inLeft[c] && inRight[c]
	}

	sfx := spec.suffixes()
	refs := make([]ColumnRef, 0, len(left)+len(right))
	for i, c := range left {
		name := c
		if overlaps(c) {
			name = c + sfx[0]
		}
		refs = append(refs, ColumnRef{Name: name, Side: LeftSide, Index: i})
	}
	for i, c := range right {
		if spec.sharedKey() && c == spec.RightOn {
			continue
		}
		name := c
		if overlaps(c) {
			name = c + sfx[1]
		}
		refs = append(refs, ColumnRef{Name: name, Side: RightSide, Index: i})
	}

	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		if seen[r.Name] {
			return nil, &DuplicateColumnError{Table: "join result", Column: r.Name}
		}
		seen[r.Name] = true
	}

	return refs, nil
}

// JoinStats describes the cardinality of one join.
type JoinStats struct {
	LeftRows  int `json:"left_rows"`
	RightRows int `json:"right_rows"`
	OutRows   int `json:"out_rows"`
	// Unmatched counts left rows with no right match.
	Unmatched int `json:"unmatched"`
	// FannedOutRows counts left rows that matched more than one right row.
	FannedOutRows int `json:"fanned_out_rows"`
}

// ExtraRows is the number of rows the join added over its left input.
func (s JoinStats) ExtraRows() int {
	return s.OutRows - s.LeftRows
}

// FannedOut reports whether the join produced more rows than its left input.
func (s JoinStats) FannedOut() bool {
	return s.FannedOutRows > 0
}

// LeftJoin keeps every row of left, pairing it with each matching row of
// right in right-table order. Unmatched left rows appear once with absent
// right values. Absent keys never match.
func LeftJoin(left, right *Table, spec JoinSpec) (*Table, JoinStats, error) {
	stats := JoinStats{LeftRows: left.Len(), RightRows: right.Len()}

	refs, err := JoinLayout(left.Columns, right.Columns, spec)
	if err != nil {
		return nil, stats, err
	}

	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	out, err := New(left.Name, names)
	if err != nil {
		return nil, stats, err
	}

	rk := right.ColumnIndex(spec.RightOn)
	matches := make(map[string][]int, right.Len())
	for i, row := range right.Rows {
		if v := row[rk]; v.Valid {
			matches[v.Text] = append(matches[v.Text], i)
		}
	}

	lk := left.ColumnIndex(spec.LeftOn)
	build := func(l, r Row) Row {
		row := make(Row, len(refs))
		for i, ref := range refs {
			switch {
			case ref.Side == LeftSide:
				row[i] = l[ref.Index]
			case r != nil:
				row[i] = r[ref.Index]
			default:
				row[i] = Null
			}
		}
		return row
	}

	out.Rows = make([]Row, 0, left.Len())
	for _, l := range left.Rows {
		var hits []int
		if key := l[lk]; key.Valid {
			hits = matches[key.Text]
		}
		if len(hits) == 0 {
			stats.Unmatched++
			out.Rows = append(out.Rows, build(l, nil))
			continue
		}
		if len(hits) > 1 {
			stats.FannedOutRows++
		}
		for _, h := range hits {
			out.Rows = append(out.Rows, build(l, right.Rows[h]))
		}
	}
	stats.OutRows = out.Len()

	return out, stats, nil
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

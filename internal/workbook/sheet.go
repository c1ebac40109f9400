package workbook

import "strings"

// Sheet is a header-row table read from one worksheet.
type Sheet struct {
	Name   string
	Header []string
	Rows   []Row

	index map[string]int
}

// Row is one data row of a Sheet. Number is the 1-based row number in the worksheet.
type Row struct {
	Number int
	Cells  []string

	index map[string]int
}

// NewSheet builds a sheet from a header and raw rows. Data rows are numbered from 2.
func NewSheet(name string, header []string, rows [][]string) *Sheet {
	s := &Sheet{
		Name:   strings.TrimSpace(name),
		Header: append([]string(nil), header...),
		index:  make(map[string]int, len(header)),
	}
	for i, h := range header {
		key := columnKey(h)
		if key == "" {
			continue
		}
		if _, dup := s.index[key]; !dup {
			s.index[key] = i
		}
	}
	s.Rows = make([]Row, 0, len(rows))
	for i, cells := range rows {
		s.Rows = append(s.Rows, Row{
			Number: i + 2,
			Cells:  append([]string(nil), cells...),
			index:  s.index,
		})
	}
	return s
}

// HasColumn reports whether the header carries col, ignoring case, spaces and underscores.
func (s *Sheet) HasColumn(col string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[columnKey(col)]
	return ok
}

// MissingColumns returns the entries of required that the header does not carry.
func (s *Sheet) MissingColumns(required []string) []string {
	var missing []string
	for _, col := range required {
		if !s.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// Get returns the trimmed cell value of col, or "" when the column or cell is absent.
func (r Row) Get(col string) string {
	idx, ok := r.index[columnKey(col)]
	if !ok || idx >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[idx])
}

// Blank reports whether every cell of the row is empty.
func (r Row) Blank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func columnKey(col string) string {
	col = strings.ToLower(strings.TrimSpace(col))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(col)
}

package database

import (
	"reldb/pkg/types"
)

// Column is one named column of a table schema.
type Column struct {
	Name string
	Desc types.ColDesc
}

// Schema is the fixed column layout of a table. Records pack the
// columns in declaration order, so each column has a stable byte
// offset.
type Schema struct {
	Cols []Column
}

// RecordSize returns the packed record width.
func (s *Schema) RecordSize() int {
	total := 0
	for _, c := range s.Cols {
		total += int(c.Desc.Len)
	}
	return total
}

// Descs returns the column descriptors in declaration order.
func (s *Schema) Descs() []types.ColDesc {
	out := make([]types.ColDesc, len(s.Cols))
	for i, c := range s.Cols {
		out[i] = c.Desc
	}
	return out
}

// ColumnIndex finds a column position by name.
func (s *Schema) ColumnIndex(name string) (int, bool) {
	for i, c := range s.Cols {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// ColumnOffset returns the byte offset of a column within a record.
func (s *Schema) ColumnOffset(i int) int {
	off := 0
	for j := 0; j < i; j++ {
		off += int(s.Cols[j].Desc.Len)
	}
	return off
}

// Package sqlbuilderutil derives sqlbuilder tables from sorm model structs,
// so query code can refer to columns by field name or column name.
package sqlbuilderutil

import (
	"fmt"
	"sort"
	"strings"

	"fknsrs.biz/p/reflectutil"
	"fknsrs.biz/p/sqlbuilder"

	"fknsrs.biz/p/ytmentions/internal/stringutil"
)

type Table struct {
	*sqlbuilder.Table
	name    string
	nameMap map[string]string
	columns []string
}

// Column looks up a column by field name, column name, or either one in any
// case. It reports false for names the model doesn't have.
func (t *Table) Column(name string) (*sqlbuilder.BasicColumn, bool) {
	columnName, ok := t.nameMap[name]
	if !ok {
		columnName, ok = t.nameMap[strings.ToLower(name)]
	}
	if !ok {
		return nil, false
	}

	return t.Table.C(columnName), true
}

// C is Column for names known to exist. It panics otherwise.
func (t *Table) C(name string) *sqlbuilder.BasicColumn {
	c, ok := t.Column(name)
	if !ok {
		panic(fmt.Errorf("sqlbuilderutil.Table.C: %s has no column %q", t.name, name))
	}

	return c
}

// ColumnNames lists the table's column names, sorted.
func (t *Table) ColumnNames() []string {
	return append([]string(nil), t.columns...)
}

func MakeTable(v interface{}) (*Table, error) {
	s, err := reflectutil.GetDescription(v)
	if err != nil {
		return nil, fmt.Errorf("sqlbuilderutil.MakeTable: could not get struct description: %w", err)
	}

	var tableName string
	var columnNames []string

	nameMap := make(map[string]string)

	for _, f := range s.Fields().WithoutTagValue("sql", "-") {
		var columnName string

		sqlTag := f.Tag("sql")

		if sqlTag != nil && sqlTag.Value() != "" {
			columnName = sqlTag.Value()
		} else {
			columnName = stringutil.PascalToSnake(f.Name())
		}

		columnNames = append(columnNames, columnName)

		nameMap[f.Name()] = columnName
		nameMap[strings.ToLower(f.Name())] = columnName
		nameMap[columnName] = columnName

		if sqlTag != nil {
			if tableParameter := sqlTag.Parameter("table"); tableParameter != nil {
				tableName = tableParameter.Value()
			}
		}
	}

	if tableName == "" {
		tableName = stringutil.PascalToSnake(s.Name())
	}

	sorted := append([]string(nil), columnNames...)
	sort.Strings(sorted)

	return &Table{
		Table:   sqlbuilder.NewTable(tableName, columnNames...),
		name:    tableName,
		nameMap: nameMap,
		columns: sorted,
	}, nil
}

func MustMakeTable(v interface{}) *Table {
	t, err := MakeTable(v)
	if err != nil {
		panic(err)
	}
	return t
}

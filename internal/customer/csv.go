package customer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	idColumn      = "CustomerID"
	idColumnAlias = "customerID"
)

// table is a parsed CSV file keyed on CustomerID. Rows hold every column by
// trimmed header name; columns keeps header order.
type table struct {
	columns []string
	rows    map[string]map[string]string
}

// parseTable parses a CSV export. Values are kept as strings. When an ID
// repeats, the first row wins.
func parseTable(name string, data []byte) (*table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: empty file", name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: reading header: %w", name, err)
	}

	columns := make([]string, len(header))
	idIdx, aliasIdx := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		columns[i] = h
		switch h {
		case idColumn:
			idIdx = i
		case idColumnAlias:
			aliasIdx = i
		}
	}
	if idIdx < 0 {
		if aliasIdx < 0 {
			return nil, fmt.Errorf("'%s' column not found in %s. Found: %q", idColumn, name, columns)
		}
		idIdx = aliasIdx
		columns[aliasIdx] = idColumn
	}

	t := &table{columns: columns, rows: make(map[string]map[string]string)}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", name, line, err)
		}
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		id := row[idColumn]
		if id == "" {
			continue
		}
		if _, dup := t.rows[id]; !dup {
			t.rows[id] = row
		}
	}
	return t, nil
}

// extra returns the columns of row not in known, in header order.
func (t *table) extra(row map[string]string, known ...string) []Field {
	var out []Field
	for _, col := range t.columns {
		isKnown := col == idColumn
		for _, k := range known {
			if col == k {
				isKnown = true
				break
			}
		}
		if !isKnown && col != "" {
			out = append(out, Field{Name: col, Value: row[col]})
		}
	}
	return out
}

func (t *table) identity(id string) (Identity, bool) {
	row, ok := t.rows[id]
	if !ok {
		return Identity{}, false
	}
	return Identity{
		CustomerID: id,
		FirstName:  row["FirstName"],
		LastName:   row["LastName"],
		Extra:      t.extra(row, "FirstName", "LastName"),
	}, true
}

var pensionColumns = []string{
	"PensionID", "PensionType", "Provider", "FundValue", "MonthlyContribution",
	"EmployerContribution", "RetirementAge", "StartDate",
}

func (t *table) pension(id string) *PensionRecord {
	row, ok := t.rows[id]
	if !ok {
		return nil
	}
	return &PensionRecord{
		CustomerID:           id,
		PensionID:            row["PensionID"],
		PensionType:          row["PensionType"],
		Provider:             row["Provider"],
		FundValue:            row["FundValue"],
		MonthlyContribution:  row["MonthlyContribution"],
		EmployerContribution: row["EmployerContribution"],
		RetirementAge:        row["RetirementAge"],
		StartDate:            row["StartDate"],
		Extra:                t.extra(row, pensionColumns...),
	}
}

var insuranceColumns = []string{
	"PolicyID", "PolicyType", "Insurer", "CoverAmount", "MonthlyPremium", "StartDate", "RenewalDate",
}

func (t *table) insurance(id string) *InsuranceRecord {
	row, ok := t.rows[id]
	if !ok {
		return nil
	}
	return &InsuranceRecord{
		CustomerID:     id,
		PolicyID:       row["PolicyID"],
		PolicyType:     row["PolicyType"],
		Insurer:        row["Insurer"],
		CoverAmount:    row["CoverAmount"],
		MonthlyPremium: row["MonthlyPremium"],
		StartDate:      row["StartDate"],
		RenewalDate:    row["RenewalDate"],
		Extra:          t.extra(row, insuranceColumns...),
	}
}

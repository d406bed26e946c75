// Package customer loads customer identity and product holdings from the
// CSV exports kept alongside the reference documents.
package customer

import (
	"fmt"
	"strings"
)

// Field is a column not mapped onto a typed record field.
type Field struct {
	Name  string
	Value string
}

// Identity is a row of all-users.csv.
type Identity struct {
	CustomerID string
	FirstName  string
	LastName   string
	Extra      []Field
}

// FullName returns "First Last" with missing parts dropped.
func (i Identity) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// PensionRecord is a row of users-pensions.csv.
type PensionRecord struct {
	CustomerID           string
	PensionID            string
	PensionType          string
	Provider             string
	FundValue            string
	MonthlyContribution  string
	EmployerContribution string
	RetirementAge        string
	StartDate            string
	Extra                []Field
}

// Format renders the record as "Label: value" lines.
func (p PensionRecord) Format() string {
	return formatFields([]Field{
		{"CustomerID", p.CustomerID},
		{"PensionID", p.PensionID},
		{"PensionType", p.PensionType},
		{"Provider", p.Provider},
		{"FundValue", p.FundValue},
		{"MonthlyContribution", p.MonthlyContribution},
		{"EmployerContribution", p.EmployerContribution},
		{"RetirementAge", p.RetirementAge},
		{"StartDate", p.StartDate},
	}, p.Extra)
}

// InsuranceRecord is a row of user-insurance.csv.
type InsuranceRecord struct {
	CustomerID     string
	PolicyID       string
	PolicyType     string
	Insurer        string
	CoverAmount    string
	MonthlyPremium string
	StartDate      string
	RenewalDate    string
	Extra          []Field
}

// Format renders the record as "Label: value" lines.
func (r InsuranceRecord) Format() string {
	return formatFields([]Field{
		{"CustomerID", r.CustomerID},
		{"PolicyID", r.PolicyID},
		{"PolicyType", r.PolicyType},
		{"Insurer", r.Insurer},
		{"CoverAmount", r.CoverAmount},
		{"MonthlyPremium", r.MonthlyPremium},
		{"StartDate", r.StartDate},
		{"RenewalDate", r.RenewalDate},
	}, r.Extra)
}

func formatFields(known, extra []Field) string {
	var b strings.Builder
	for _, fs := range [][]Field{known, extra} {
		for _, f := range fs {
			if f.Value == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s: %s", f.Name, f.Value)
		}
	}
	return b.String()
}

// Customer is everything known about one authenticated customer.
type Customer struct {
	Identity  Identity
	Pension   *PensionRecord
	Insurance *InsuranceRecord
}

// ID returns the customer's ID.
func (c *Customer) ID() string { return c.Identity.CustomerID }

// HasPension reports whether the customer holds a pension.
func (c *Customer) HasPension() bool { return c.Pension != nil }

// HasInsurance reports whether the customer holds an insurance policy.
func (c *Customer) HasInsurance() bool { return c.Insurance != nil }

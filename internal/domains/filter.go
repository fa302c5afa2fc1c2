// ABOUTME: Query filter clauses and the declarative filters list operations are built from.
// ABOUTME: Values are quoted with backslash escaping before substitution into the query text.

package domains

import (
	"fmt"
	"strings"
)

var escaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Escape backslash-escapes quotes and backslashes in a filter value.
func Escape(v string) string {
	return escaper.Replace(v)
}

// Condition is one `<field> <operator> '<value>'` clause.
type Condition struct {
	Field    string
	Operator string
	Value    string
}

// Render formats the clause with its value escaped.
func (c Condition) Render() string {
	return fmt.Sprintf("%s %s '%s'", c.Field, c.Operator, Escape(c.Value))
}

// BuildQuery selects every column of entity, restricted by conds joined with AND.
func BuildQuery(entity string, conds []Condition) string {
	q := "SELECT * FROM " + entity
	if len(conds) == 0 {
		return q
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.Render()
	}
	return q + " WHERE " + strings.Join(parts, " AND ")
}

// Filter binds one optional parameter to the conditions it contributes.
// today is the current date in DateLayout.
type Filter struct {
	Param Param
	Build func(value, today string) []Condition
}

func (f Filter) conditions(args Args, today string) []Condition {
	v, ok := args.Text(f.Param.Name)
	if !ok {
		return nil
	}
	return f.Build(v, today)
}

func compare(field, op string) func(string, string) []Condition {
	return func(v, _ string) []Condition {
		return []Condition{{Field: field, Operator: op, Value: v}}
	}
}

// Equals filters field = value.
func Equals(name, field, description string) Filter {
	return Filter{
		Param: Param{Name: name, Type: TypeString, Description: description},
		Build: compare(field, "="),
	}
}

// OneOf filters field = value, with value restricted to options.
func OneOf(name, field, description string, options ...string) Filter {
	return Filter{
		Param: Param{Name: name, Type: TypeString, Description: description, Enum: options},
		Build: compare(field, "="),
	}
}

// DateFrom filters field >= date.
func DateFrom(name, field string) Filter {
	return Filter{
		Param: Param{Name: name, Type: TypeString, Date: true, Description: "Earliest " + field + " (YYYY-MM-DD)"},
		Build: compare(field, ">="),
	}
}

// DateTo filters field <= date.
func DateTo(name, field string) Filter {
	return Filter{
		Param: Param{Name: name, Type: TypeString, Date: true, Description: "Latest " + field + " (YYYY-MM-DD)"},
		Build: compare(field, "<="),
	}
}

// Like filters field LIKE '%value%'.
func Like(name, field, description string, required bool) Filter {
	return Filter{
		Param: Param{Name: name, Type: TypeString, Description: description, Required: required},
		Build: func(v, _ string) []Condition {
			return []Condition{{Field: field, Operator: "LIKE", Value: "%" + v + "%"}}
		},
	}
}

// Flag filters field = 'true' or 'false'.
func Flag(name, field, description string) Filter {
	return Filter{
		Param: Param{Name: name, Type: TypeBoolean, Description: description},
		Build: compare(field, "="),
	}
}

// StatusRule expands one status value into conditions.
type StatusRule func(today string) []Condition

// Status filters by a named status, each value expanding through rules.
// order fixes the advertised enum order.
func Status(name, description string, order []string, rules map[string]StatusRule) Filter {
	return Filter{
		Param: Param{Name: name, Type: TypeString, Description: description, Enum: order},
		Build: func(v, today string) []Condition {
			rule, ok := rules[v]
			if !ok {
				return nil
			}
			return rule(today)
		},
	}
}

// Balance status rules shared by invoices and bills.
var (
	paidRule StatusRule = func(string) []Condition {
		return []Condition{{Field: "Balance", Operator: "=", Value: "0"}}
	}
	unpaidRule StatusRule = func(string) []Condition {
		return []Condition{{Field: "Balance", Operator: ">", Value: "0"}}
	}
	overdueRule StatusRule = func(today string) []Condition {
		return []Condition{
			{Field: "Balance", Operator: ">", Value: "0"},
			{Field: "DueDate", Operator: "<", Value: today},
		}
	}
)

// model/rule.go
package model

// Rule names understood by the allocation engine. Values live in the
// business_rules table as strings and must parse as positive integers.
const (
	RuleMaxRentals = "rent_max_count"
	RuleMaxMonths  = "rent_max_time"
)

type BusinessRule struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

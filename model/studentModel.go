// model/student.go
package model

// Student links the rental ledger to a person profile. The profile itself
// (contact, address, siblings) is reference data owned elsewhere.
type Student struct {
	ID        int32  `json:"id"`
	PersonID  int32  `json:"person_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

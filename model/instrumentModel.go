// model/instrument.go
package model

type InstrumentType struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Instrument is a catalog row. Count is the physical stock owned by the
// school, including units currently rented out; it never changes when a
// rental is opened or closed.
type Instrument struct {
	ID     int32   `json:"id"`
	TypeID int32   `json:"type_id"`
	Type   string  `json:"type,omitempty"`
	Brand  string  `json:"brand"`
	Model  string  `json:"model"`
	Price  float64 `json:"price"`
	Count  int32   `json:"count"`
}

// InstrumentAvailability pairs a catalog row with its derived availability
// (stock minus active rentals). Available is never stored in the database.
type InstrumentAvailability struct {
	Instrument
	Available int64 `json:"available"`
}

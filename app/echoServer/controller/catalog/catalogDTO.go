package catalog

type CreateInstrumentReq struct {
	TypeID int32   `json:"type_id" validate:"required,gt=0"`
	Brand  string  `json:"brand" validate:"required"`
	Model  string  `json:"model" validate:"required"`
	Price  float64 `json:"price" validate:"gte=0"`
	Count  int32   `json:"count" validate:"gte=0"`
}

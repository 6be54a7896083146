package catalogsvc

import (
	"context"
	"errors"
	"strings"

	"github.com/wmuth/SoundGoodDB/model"
)

type Repo interface {
	ListWithAvailability(ctx context.Context, typePattern string) ([]model.InstrumentAvailability, error)
	Detail(ctx context.Context, id int32) (*model.InstrumentAvailability, error)
	Create(ctx context.Context, typeID int32, brand, mdl string, price float64, count int32) (int32, error)
}

type Service interface {
	// List returns the catalog with derived availability, optionally
	// filtered by instrument type prefix ("gui" matches "guitar").
	List(ctx context.Context, typeFilter string) ([]model.InstrumentAvailability, error)
	Detail(ctx context.Context, id int32) (*model.InstrumentAvailability, error)
	Create(ctx context.Context, typeID int32, brand, mdl string, price float64, count int32) (int32, error)
}

type service struct{ r Repo }

func New(r Repo) Service { return &service{r: r} }

func (s *service) List(ctx context.Context, typeFilter string) ([]model.InstrumentAvailability, error) {
	pattern := ""
	if f := strings.TrimSpace(typeFilter); f != "" {
		pattern = strings.ToLower(f) + "%"
	}
	return s.r.ListWithAvailability(ctx, pattern)
}

func (s *service) Detail(ctx context.Context, id int32) (*model.InstrumentAvailability, error) {
	return s.r.Detail(ctx, id)
}

func (s *service) Create(ctx context.Context, typeID int32, brand, mdl string, price float64, count int32) (int32, error) {
	if typeID <= 0 || brand == "" || mdl == "" || price < 0 || count < 0 {
		return 0, errors.New("invalid payload")
	}
	return s.r.Create(ctx, typeID, brand, mdl, price, count)
}

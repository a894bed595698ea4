package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mmeshcher/autoecole-booking/internal/model"
)

// SchoolService читает каталог автошкол и их формул.
type SchoolService struct {
	api API
}

// NewSchoolService создаёт сервис каталога.
func NewSchoolService(api API) *SchoolService {
	return &SchoolService{api: api}
}

// List возвращает автошколы, при необходимости отфильтрованные по городу.
func (s *SchoolService) List(ctx context.Context, city string) ([]model.School, error) {
	path := "/schools"
	if city != "" {
		path += "?" + url.Values{"city": {city}}.Encode()
	}

	var schools []model.School
	if err := call(ctx, s.api, "list schools", http.MethodGet, path, nil, &schools); err != nil {
		return nil, err
	}
	if schools == nil {
		schools = []model.School{}
	}
	return schools, nil
}

// Get возвращает автошколу по идентификатору.
func (s *SchoolService) Get(ctx context.Context, id string) (model.School, error) {
	var school model.School
	if err := call(ctx, s.api, "get school", http.MethodGet, "/schools/"+url.PathEscape(id), nil, &school); err != nil {
		return model.School{}, err
	}
	return school, nil
}

// Offers возвращает формулы автошколы.
func (s *SchoolService) Offers(ctx context.Context, schoolID string) ([]model.Offer, error) {
	var offers []model.Offer
	if err := call(ctx, s.api, "list offers", http.MethodGet, "/offers/school/"+url.PathEscape(schoolID), nil, &offers); err != nil {
		return nil, err
	}
	if offers == nil {
		offers = []model.Offer{}
	}
	return offers, nil
}

// FindOffer ищет формулу по идентификатору среди формул автошколы.
func (s *SchoolService) FindOffer(ctx context.Context, schoolID, offerID string) (model.Offer, bool, error) {
	offers, err := s.Offers(ctx, schoolID)
	if err != nil {
		return model.Offer{}, false, err
	}
	for _, o := range offers {
		if o.ID == offerID {
			return o, true, nil
		}
	}
	return model.Offer{}, false, nil
}

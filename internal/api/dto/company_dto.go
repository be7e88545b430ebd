package dto

import "github.com/spec-kit/support-desk/internal/domain"

// CompanyRequest payload for company creation and updates.
type CompanyRequest struct {
	Name      string `json:"name"`
	CountryID *int64 `json:"country_id,omitempty"`
	IsActive  *bool  `json:"is_active,omitempty"`
}

// CompanyResponse is the public view of a company.
type CompanyResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CountryID *int64 `json:"country_id,omitempty"`
	IsActive  bool   `json:"is_active"`
}

// NewCompanyResponse maps the domain model.
func NewCompanyResponse(company *domain.Company) CompanyResponse {
	return CompanyResponse{
		ID:        company.ID,
		Name:      company.Name,
		CountryID: company.CountryID,
		IsActive:  company.IsActive,
	}
}

// CountryResponse is one reference-data entry.
type CountryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

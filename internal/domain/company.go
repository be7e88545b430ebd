package domain

import "time"

// Company is the tenant unit. All presence, dispatch and ticket state is
// partitioned by company.
type Company struct {
	ID        int64
	Name      string
	CountryID *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

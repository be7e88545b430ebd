package domain

// Country is reference data used by company registration forms.
type Country struct {
	ID   int64
	Name string
	Code string
}

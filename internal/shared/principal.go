package shared

import "github.com/google/uuid"

// Principal is the authenticated actor on whose behalf an operation runs.
// It is always passed explicitly into service calls, never read from
// ambient state.
type Principal struct {
	UserID     uuid.UUID
	Name       string
	CompanyIDs []uuid.UUID
}

// MemberOf reports whether the principal belongs to the given company.
func (p *Principal) MemberOf(companyID uuid.UUID) bool {
	if p == nil {
		return false
	}
	for _, id := range p.CompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}

// MemberOfAny reports whether the principal belongs to at least one of the
// given companies.
func (p *Principal) MemberOfAny(companyIDs []uuid.UUID) bool {
	for _, id := range companyIDs {
		if p.MemberOf(id) {
			return true
		}
	}
	return false
}

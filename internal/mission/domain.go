// Package mission provides read-only access to missions. The engine never
// mutates missions; it only needs them to validate entry associations and to
// resolve which companies may read a report.
package mission

import (
	"time"

	"github.com/google/uuid"
)

// Mission model.
type Mission struct {
	ID         uuid.UUID
	Name       string
	CompanyIDs []uuid.UUID
	CreatedAt  time.Time
}

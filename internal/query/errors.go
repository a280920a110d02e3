package query

import (
	"errors"

	"github.com/stockdesk/backend/internal/guard"
	"github.com/stockdesk/backend/internal/llm"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/config"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuotaExceeded    = guard.ErrQuotaExceeded
	ErrBudgetExhausted  = guard.ErrBudgetExhausted
	ErrNotFound         = models.ErrNotFound
	ErrModelUnavailable = llm.ErrModelUnavailable
	ErrMisconfigured    = config.ErrMisconfigured
	ErrInternal         = errors.New("internal error")
)

var publicErrors = []error{
	ErrInvalidInput,
	ErrQuotaExceeded,
	ErrBudgetExhausted,
	ErrNotFound,
	ErrModelUnavailable,
	ErrMisconfigured,
}

// IsPublic reports whether err carries a sentinel callers may see.
func IsPublic(err error) bool {
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

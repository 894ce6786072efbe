package repo

import (
	"context"

	"github.com/LeventeLantos/loyalty-outreach/internal/model"
)

type RunRepository interface {
	SaveRun(ctx context.Context, s model.RunSummary) error
	ListRuns(ctx context.Context, limit, offset int) ([]model.RunSummary, error)
}

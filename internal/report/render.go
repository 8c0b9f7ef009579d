package report

import "github.com/autotech-nz/paymark-reporter/internal/model"

// Render produces both artifacts for a run.
func Render(txns []model.Transaction, dateLabel string) model.Artifacts {
	return model.Artifacts{
		CSV:        CSV(txns),
		SummarySVG: SVG(Compute(txns), dateLabel),
		Count:      len(txns),
	}
}

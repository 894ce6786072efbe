package service

import "github.com/LeventeLantos/loyalty-outreach/internal/model"

// activeBatch returns the rows waiting on their SMS step, in sheet order.
func activeBatch(contacts []model.Contact) []model.Contact {
	var out []model.Contact
	for _, c := range contacts {
		if model.IsActive(c.Status) {
			out = append(out, c)
		}
	}
	return out
}

// selectNewBatch returns the first limit untouched rows in sheet order.
func selectNewBatch(contacts []model.Contact, limit int) []model.Contact {
	var out []model.Contact
	for _, c := range contacts {
		if len(out) >= limit {
			break
		}
		if model.IsUntouched(c.Status) {
			out = append(out, c)
		}
	}
	return out
}

// Package views binds the generic record projection to contracts,
// signature requests and documents.
package views

import (
	"escra/internal/domain"
	"escra/internal/projection"
)

var Contracts = projection.Schema[domain.Contract]{
	ID:       func(c domain.Contract) string { return c.ID },
	Status:   func(c domain.Contract) string { return c.Status },
	Assignee: func(c domain.Contract) string { return c.Assignee },
	Contract: func(c domain.Contract) string { return c.ID },
	Parties:  func(c domain.Contract) []string { return c.PartyNames() },
	Search: []func(domain.Contract) string{
		func(c domain.Contract) string { return c.Title },
		func(c domain.Contract) string { return c.ID },
		func(c domain.Contract) string { return c.Type },
	},
	Fields: map[string]projection.Field[domain.Contract]{
		"id":       projection.NumericIDField(func(c domain.Contract) string { return c.ID }),
		"title":    projection.StringField(func(c domain.Contract) string { return c.Title }),
		"type":     projection.StringField(func(c domain.Contract) string { return c.Type }),
		"status":   projection.StringField(func(c domain.Contract) string { return c.Status }),
		"parties":  projection.ListField(func(c domain.Contract) []string { return c.PartyNames() }),
		"assignee": projection.StringField(func(c domain.Contract) string { return c.Assignee }),
		"value": projection.NumberField(func(c domain.Contract) (float64, bool) {
			if c.Value == nil {
				return 0, false
			}
			return *c.Value, true
		}),
		"created_at": projection.DateField(func(c domain.Contract) string { return c.CreatedAt }),
		"updated_at": projection.DateField(func(c domain.Contract) string { return c.UpdatedAt }),
	},
}

var Signatures = projection.Schema[domain.SignatureRequest]{
	ID:       func(s domain.SignatureRequest) string { return s.ID },
	Status:   func(s domain.SignatureRequest) string { return s.Status },
	Assignee: func(s domain.SignatureRequest) string { return s.Assignee },
	Contract: func(s domain.SignatureRequest) string { return s.ContractID },
	Parties:  func(s domain.SignatureRequest) []string { return s.Parties },
	Search: []func(domain.SignatureRequest) string{
		func(s domain.SignatureRequest) string { return s.Document },
		func(s domain.SignatureRequest) string { return s.Contract },
		func(s domain.SignatureRequest) string { return s.ID },
		func(s domain.SignatureRequest) string { return s.ContractID },
	},
	Fields: map[string]projection.Field[domain.SignatureRequest]{
		"id":          projection.NumericIDField(func(s domain.SignatureRequest) string { return s.ID }),
		"contract_id": projection.NumericIDField(func(s domain.SignatureRequest) string { return s.ContractID }),
		"document":    projection.StringField(func(s domain.SignatureRequest) string { return s.Document }),
		"contract":    projection.StringField(func(s domain.SignatureRequest) string { return s.Contract }),
		"status":      projection.StringField(func(s domain.SignatureRequest) string { return s.Status }),
		"assignee":    projection.StringField(func(s domain.SignatureRequest) string { return s.Assignee }),
		"parties":     projection.ListField(func(s domain.SignatureRequest) []string { return s.Parties }),
		"date_sent":   projection.DateField(func(s domain.SignatureRequest) string { return s.DateSent }),
		"due_date":    projection.DateField(func(s domain.SignatureRequest) string { return s.DueDate }),
	},
}

var Documents = projection.Schema[domain.Document]{
	ID:       func(d domain.Document) string { return d.ID },
	Status:   func(d domain.Document) string { return d.Status },
	Assignee: func(d domain.Document) string { return d.UploadedBy },
	Contract: func(d domain.Document) string { return d.ContractID },
	Search: []func(domain.Document) string{
		func(d domain.Document) string { return d.Name },
		func(d domain.Document) string { return d.ContractID },
		func(d domain.Document) string { return d.ID },
	},
	Fields: map[string]projection.Field[domain.Document]{
		"id":          projection.StringField(func(d domain.Document) string { return d.ID }),
		"name":        projection.StringField(func(d domain.Document) string { return d.Name }),
		"type":        projection.StringField(func(d domain.Document) string { return d.Type }),
		"status":      projection.StringField(func(d domain.Document) string { return d.Status }),
		"uploaded_by": projection.StringField(func(d domain.Document) string { return d.UploadedBy }),
		"contract_id": projection.NumericIDField(func(d domain.Document) string { return d.ContractID }),
		"created_at":  projection.DateField(func(d domain.Document) string { return d.CreatedAt }),
	},
}

// Package seed loads demo datasets written in YAML into engine datasets.
package seed

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"escra/internal/domain"
	"escra/internal/engine"
	"escra/internal/projection"
)

//go:embed demo.yml
var demoYAML []byte

type file struct {
	Contracts  []contractRow  `yaml:"contracts"`
	Signatures []signatureRow `yaml:"signatures"`
	Documents  []documentRow  `yaml:"documents"`
	Tasks      []taskRow      `yaml:"tasks"`
}

type contractRow struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Type     string `yaml:"type"`
	Status   string `yaml:"status"`
	Parties  string `yaml:"parties"`
	Assignee string `yaml:"assignee"`
	Value    string `yaml:"value"`
}

type signatureRow struct {
	ID         string   `yaml:"id"`
	Document   string   `yaml:"document"`
	Parties    []string `yaml:"parties"`
	Status     string   `yaml:"status"`
	Signatures string   `yaml:"signatures"`
	ContractID string   `yaml:"contract_id"`
	Assignee   string   `yaml:"assignee"`
	DateSent   string   `yaml:"date_sent"`
	DueDate    string   `yaml:"due_date"`
	Provider   string   `yaml:"provider"`
}

type documentRow struct {
	Ref        string `yaml:"ref"`
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Size       string `yaml:"size"`
	UploadedBy string `yaml:"uploaded_by"`
	Uploaded   string `yaml:"uploaded"`
	ContractID string `yaml:"contract_id"`
}

// taskRow lists subtasks by title; a "[x] " prefix marks one complete.
type taskRow struct {
	ID          string   `yaml:"id"`
	ContractID  string   `yaml:"contract_id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`
	Status      string   `yaml:"status"`
	Assignee    string   `yaml:"assignee"`
	DueDate     string   `yaml:"due_date"`
	Subtasks    []string `yaml:"subtasks"`
}

// Demo returns the built-in demo dataset.
func Demo() (engine.Dataset, error) {
	return Parse(demoYAML)
}

// Parse converts a YAML dataset. Contract parties are written "A & B",
// signature progress as "k of n"; recipients are derived from both.
func Parse(data []byte) (engine.Dataset, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return engine.Dataset{}, fmt.Errorf("parse dataset: %w", err)
	}
	var ds engine.Dataset
	for _, row := range f.Contracts {
		ds.Contracts = append(ds.Contracts, row.contract())
	}
	docIDs := map[string]string{}
	for _, row := range f.Documents {
		d, err := row.document()
		if err != nil {
			return engine.Dataset{}, err
		}
		docIDs[row.ContractID+"/"+row.Name] = d.ID
		ds.Documents = append(ds.Documents, d)
	}
	for _, row := range f.Signatures {
		s, err := row.signature()
		if err != nil {
			return engine.Dataset{}, err
		}
		s.DocumentID = docIDs[s.ContractID+"/"+s.Document]
		ds.Signatures = append(ds.Signatures, s)
	}
	for _, row := range f.Tasks {
		ds.Tasks = append(ds.Tasks, row.task())
	}
	return ds, nil
}

func (row taskRow) task() domain.Task {
	t := domain.Task{
		ID:          row.ID,
		ContractID:  row.ContractID,
		Title:       row.Title,
		Description: row.Description,
		Type:        row.Type,
		Status:      row.Status,
		Assignee:    row.Assignee,
		DueDate:     row.DueDate,
		Subtasks:    []domain.Subtask{},
	}
	if t.Status == "" {
		t.Status = domain.TaskToDo
	}
	for i, title := range row.Subtasks {
		done := strings.HasPrefix(title, "[x] ")
		t.Subtasks = append(t.Subtasks, domain.Subtask{
			ID:        fmt.Sprintf("sub-%d", i+1),
			Title:     strings.TrimPrefix(title, "[x] "),
			Completed: done,
		})
	}
	return t
}

func (row contractRow) contract() domain.Contract {
	c := domain.Contract{
		ID:       row.ID,
		Title:    row.Title,
		Type:     row.Type,
		Status:   row.Status,
		Assignee: row.Assignee,
		Parties:  []domain.Party{},
	}
	for _, name := range strings.Split(row.Parties, "&") {
		if name = strings.TrimSpace(name); name != "" {
			c.Parties = append(c.Parties, domain.Party{Name: name, Email: emailFor(name)})
		}
	}
	if row.Value != "" {
		v := projection.ParseAmount(row.Value)
		c.Value = &v
	}
	return c
}

var progressPattern = regexp.MustCompile(`^\s*(\d+)\s+of\s+(\d+)\s*$`)

func (row signatureRow) signature() (domain.SignatureRequest, error) {
	signed := 0
	if row.Signatures != "" {
		m := progressPattern.FindStringSubmatch(row.Signatures)
		if m == nil {
			return domain.SignatureRequest{}, fmt.Errorf("signature %s: progress %q is not \"k of n\"", row.ID, row.Signatures)
		}
		signed, _ = strconv.Atoi(m[1])
		if total, _ := strconv.Atoi(m[2]); total != len(row.Parties) {
			return domain.SignatureRequest{}, fmt.Errorf("signature %s: progress %q does not match %d parties", row.ID, row.Signatures, len(row.Parties))
		}
	}
	recipients := make([]domain.Recipient, 0, len(row.Parties))
	declined := row.Status == domain.SignatureRejected
	for i, name := range row.Parties {
		r := domain.Recipient{Name: name, Email: emailFor(name), Status: domain.RecipientPending}
		switch {
		case i < signed:
			r.Status = domain.RecipientSigned
			r.SignedAt = row.DateSent + "T12:00:00Z"
		case declined:
			r.Status = domain.RecipientDeclined
			declined = false
		}
		recipients = append(recipients, r)
	}
	created := row.DateSent + "T09:00:00Z"
	return domain.SignatureRequest{
		ID:         row.ID,
		Document:   row.Document,
		Parties:    append([]string{}, row.Parties...),
		Status:     row.Status,
		ContractID: row.ContractID,
		Assignee:   row.Assignee,
		DateSent:   row.DateSent,
		DueDate:    row.DueDate,
		Provider:   row.Provider,
		Recipients: recipients,
		CreatedAt:  created,
		UpdatedAt:  created,
	}, nil
}

var mimeTypes = map[string]string{
	"PDF":  "application/pdf",
	"DOCX": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func (row documentRow) document() (domain.Document, error) {
	size, err := parseSize(row.Size)
	if err != nil {
		return domain.Document{}, fmt.Errorf("document %s: %w", row.Ref, err)
	}
	return domain.Document{
		// Stable ids so the same dataset always names the same documents.
		ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte("escra/"+row.Ref)).String(),
		ContractID: row.ContractID,
		Name:       row.Name,
		Type:       row.Type,
		Status:     "Active",
		UploadedBy: row.UploadedBy,
		Size:       size,
		MimeType:   mimeTypes[row.Type],
		CreatedAt:  row.Uploaded + "T09:00:00Z",
	}, nil
}

var sizeUnits = map[string]float64{"B": 1, "KB": 1 << 10, "MB": 1 << 20, "GB": 1 << 30}

// parseSize reads sizes such as "2.4 MB".
func parseSize(s string) (int64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("size %q: %w", s, err)
	}
	unit := "B"
	if len(fields) > 1 {
		unit = strings.ToUpper(fields[1])
	}
	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("size %q: unknown unit %q", s, unit)
	}
	return int64(n * mult), nil
}

func emailFor(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' && b.Len() > 0:
			b.WriteRune('.')
		}
	}
	return strings.TrimSuffix(b.String(), ".") + "@example.com"
}

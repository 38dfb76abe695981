package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"escra/internal/config"
	"escra/internal/db"
	"escra/internal/domain"
	"escra/internal/engine"
	"escra/internal/engine/auth"
	"escra/internal/metrics"
	"escra/internal/migrate"
	"escra/internal/projection"
	"escra/internal/repo"
)

var john = auth.Actor{ID: "John Smith"}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.User.Name = "John Smith"
	eng := engine.New(conn, cfg, nil)
	eng.Metrics = metrics.New(prometheus.NewRegistry())
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) contract(t *testing.T, title string) domain.Contract {
	t.Helper()
	c, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{
		Title:   title,
		Parties: []domain.Party{{Name: "Acme Corp", Role: "Buyer"}, {Name: "Jane Doe", Role: "Seller"}},
		Actor:   john,
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return c
}

func (env testEnv) request(t *testing.T, contractID string, emails ...string) domain.SignatureRequest {
	t.Helper()
	var recipients []domain.Recipient
	for _, e := range emails {
		recipients = append(recipients, domain.Recipient{Email: e})
	}
	s, err := env.Engine.CreateSignature(env.Ctx, engine.SignatureCreateOptions{
		ContractID: contractID,
		Document:   "Purchase Agreement",
		Recipients: recipients,
		DueDate:    "2024-03-10",
		ActorID:    "John Smith",
	})
	if err != nil {
		t.Fatalf("create signature: %v", err)
	}
	return s
}

func TestContractLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.contract(t, "Property Sale - 123 Main St")
	if c.ID != "1" || c.Status != domain.ContractInitiation {
		t.Fatalf("unexpected contract %+v", c)
	}
	c, err := env.Engine.AdvanceContract(env.Ctx, c.ID, "", false, john)
	if err != nil || c.Status != domain.ContractPreparation {
		t.Fatalf("advance: %v %s", err, c.Status)
	}
	// skipping stages needs force
	_, err = env.Engine.AdvanceContract(env.Ctx, c.ID, domain.ContractSignatures, false, john)
	if !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	c, err = env.Engine.AdvanceContract(env.Ctx, c.ID, domain.ContractCompleted, true, john)
	if err != nil || c.Status != domain.ContractCompleted {
		t.Fatalf("force complete: %v", err)
	}
	if _, err := env.Engine.AdvanceContract(env.Ctx, c.ID, "", false, john); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("completed contract moved: %v", err)
	}
	if _, err := env.Engine.AdvanceContract(env.Ctx, c.ID, "Closing", true, john); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, repo.EventFilter{EntityKind: "contract", EntityID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evts))
	}
}

func TestContractExplicitIDReservesSequence(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{ID: "1234", Title: "Lease", Type: "Commercial Lease", Actor: auth.Actor{ID: "a"}})
	if err != nil || c.ID != "1234" {
		t.Fatalf("explicit id: %v", err)
	}
	next := env.contract(t, "Next")
	if next.ID != "1235" {
		t.Fatalf("expected 1235, got %s", next.ID)
	}
	if _, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{ID: "abc", Title: "x", Actor: auth.Actor{ID: "a"}}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if _, err := env.Engine.CreateContract(env.Ctx, engine.ContractCreateOptions{Title: "x", Type: "Barter", Actor: auth.Actor{ID: "a"}}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid type, got %v", err)
	}
}

func TestSignatureCompletesWhenAllSign(t *testing.T) {
	env := newTestEnv(t)
	c := env.contract(t, "Property Sale - 123 Main St")
	s := env.request(t, c.ID, "a@example.com", "b@example.com")
	if s.Contract != c.Title || s.DateSent != "2024-03-01" || s.Signatures != "0 of 2" || s.Provider != domain.ProviderEscra {
		t.Fatalf("unexpected request %+v", s)
	}
	s, err := env.Engine.SignRecipient(env.Ctx, s.ID, "A@example.com", "a@example.com")
	if err != nil || s.Status != domain.SignaturePending || s.Signatures != "1 of 2" {
		t.Fatalf("first signature: %v %+v", err, s)
	}
	if _, err := env.Engine.SignRecipient(env.Ctx, s.ID, "a@example.com", "a@example.com"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("double sign: %v", err)
	}
	s, err = env.Engine.SignRecipient(env.Ctx, s.ID, "b@example.com", "b@example.com")
	if err != nil || s.Status != domain.SignatureCompleted {
		t.Fatalf("second signature: %v %+v", err, s)
	}
	stored, err := env.Engine.Repo.GetSignature(env.Ctx, s.ID)
	if err != nil || stored.Signatures != "2 of 2" {
		t.Fatalf("stored: %v %+v", err, stored)
	}
	if _, err := env.Engine.VoidSignature(env.Ctx, s.ID, "John Smith"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("void completed: %v", err)
	}
}

func TestSignatureDeclineRejects(t *testing.T) {
	env := newTestEnv(t)
	c := env.contract(t, "Lease")
	s := env.request(t, c.ID, "a@example.com", "b@example.com")
	s, err := env.Engine.DeclineRecipient(env.Ctx, s.ID, "b@example.com", "b@example.com")
	if err != nil || s.Status != domain.SignatureRejected {
		t.Fatalf("decline: %v %+v", err, s)
	}
	if _, err := env.Engine.SignRecipient(env.Ctx, s.ID, "a@example.com", "a"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("sign after reject: %v", err)
	}
	other := env.request(t, c.ID, "c@example.com")
	if _, err := env.Engine.SignRecipient(env.Ctx, other.ID, "nobody@example.com", "x"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown recipient: %v", err)
	}
}

func TestCreateSignatureValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.contract(t, "Lease")
	cases := []engine.SignatureCreateOptions{
		{ContractID: c.ID, Recipients: []domain.Recipient{{Email: "a@example.com"}}, ActorID: "x"},
		{ContractID: c.ID, Document: "Doc", ActorID: "x"},
		{ContractID: c.ID, Document: "Doc", Recipients: []domain.Recipient{{Email: "nope"}}, ActorID: "x"},
		{ContractID: c.ID, Document: "Doc", Recipients: []domain.Recipient{{Email: "a@example.com"}, {Email: "A@example.com"}}, ActorID: "x"},
		{ContractID: c.ID, Document: "Doc", Recipients: []domain.Recipient{{Email: "a@example.com"}}, DueDate: "2024-02-01", ActorID: "x"},
		{ContractID: c.ID, Document: "Doc", Recipients: []domain.Recipient{{Email: "a@example.com"}}, Provider: "hellosign", ActorID: "x"},
	}
	for i, opts := range cases {
		if _, err := env.Engine.CreateSignature(env.Ctx, opts); !errors.Is(err, engine.ErrInvalid) {
			t.Fatalf("case %d: expected invalid, got %v", i, err)
		}
	}
	_, err := env.Engine.CreateSignature(env.Ctx, engine.SignatureCreateOptions{
		ContractID: "999", Document: "Doc", Recipients: []domain.Recipient{{Email: "a@example.com"}}, ActorID: "x",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing contract: %v", err)
	}
}

func TestExpireOverdue(t *testing.T) {
	env := newTestEnv(t)
	c := env.contract(t, "Lease")
	overdue := env.request(t, c.ID, "a@example.com")
	open, err := env.Engine.CreateSignature(env.Ctx, engine.SignatureCreateOptions{
		ContractID: c.ID, Document: "Addendum", Recipients: []domain.Recipient{{Email: "b@example.com"}}, ActorID: "John Smith",
	})
	if err != nil {
		t.Fatal(err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC) }
	n, err := env.Engine.ExpireOverdue(env.Ctx)
	if err != nil || n != 1 {
		t.Fatalf("expire: %d %v", n, err)
	}
	got, _ := env.Engine.Repo.GetSignature(env.Ctx, overdue.ID)
	if got.Status != domain.SignatureExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	got, _ = env.Engine.Repo.GetSignature(env.Ctx, open.ID)
	if got.Status != domain.SignaturePending {
		t.Fatalf("request without due date expired")
	}
	n, err = env.Engine.ExpireOverdue(env.Ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: %d %v", n, err)
	}
}

func TestRunExpiryStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx, cancel := context.WithCancel(env.Ctx)
	done := make(chan struct{})
	go func() {
		env.Engine.RunExpiry(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestListSignaturesProjects(t *testing.T) {
	env := newTestEnv(t)
	c := env.contract(t, "Lease")
	first := env.request(t, c.ID, "a@example.com")
	second := env.request(t, c.ID, "b@example.com")
	if _, err := env.Engine.VoidSignature(env.Ctx, first.ID, "John Smith"); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.ListSignatures(env.Ctx, projection.Query{
		Filters: projection.Filters{TabScope: []string{domain.SignaturePending}, CurrentUser: "John Smith"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Items[0].ID != second.ID {
		t.Fatalf("unexpected result %+v", res)
	}
	res, err = env.Engine.ListSignatures(env.Ctx, projection.Query{Sort: &projection.Sort{Key: "id", Direction: projection.Desc}})
	if err != nil || res.Total != 2 || res.Items[0].ID != second.ID {
		t.Fatalf("sorted: %v %+v", err, res)
	}
	_, err = env.Engine.ListSignatures(env.Ctx, projection.Query{Sort: &projection.Sort{Key: "color", Direction: projection.Asc}})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("unknown key: %v", err)
	}
}

func TestDocumentsAndCounts(t *testing.T) {
	env := newTestEnv(t)
	c := env.contract(t, "Lease")
	d, err := env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{ContractID: c.ID, Name: "deed.pdf", Size: 2048, ActorID: "John Smith"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Type != "PDF" || d.Status != "Draft" || d.UploadedBy != "John Smith" {
		t.Fatalf("unexpected document %+v", d)
	}
	if _, err := env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{ContractID: "404", Name: "x.pdf", ActorID: "a"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing contract: %v", err)
	}
	s, err := env.Engine.CreateSignature(env.Ctx, engine.SignatureCreateOptions{
		ContractID: c.ID, DocumentID: d.ID, Recipients: []domain.Recipient{{Name: "Jane Doe", Email: "jane@example.com"}}, ActorID: "John Smith",
	})
	if err != nil || s.Document != "deed.pdf" || s.Parties[0] != "Jane Doe" {
		t.Fatalf("signature from document: %v %+v", err, s)
	}
	counts, err := env.Engine.StatusCounts(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["contracts"]["Initiation"] != 1 || counts["signatures"]["Pending"] != 1 || counts["documents"]["Draft"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if err := env.Engine.DeleteDocument(env.Ctx, d.ID, "John Smith"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteDocument(env.Ctx, d.ID, "John Smith"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if err := env.Engine.DeleteSignature(env.Ctx, s.ID, "John Smith"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteContract(env.Ctx, c.ID, john); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Repo.GetContract(env.Ctx, c.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("contract still present: %v", err)
	}
}

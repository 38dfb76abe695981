package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escra/internal/config"
	"escra/internal/db"
	"escra/internal/domain"
	"escra/internal/engine"
	"escra/internal/metrics"
	"escra/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	Engine engine.Engine
	token  string
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}
	reg := prometheus.NewRegistry()
	e := engine.New(conn, cfg, nil)
	e.Metrics = metrics.New(reg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/api",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowUserHeader: true},
		Gatherer: reg,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	token, err := SignToken(testSecret, "u-1", "John Smith", "", time.Hour)
	require.NoError(t, err)
	return &testServer{Server: srv, Engine: e, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	return doJSON(t, s.Client(), method, s.URL+path, body, map[string]string{"Authorization": "Bearer " + s.token})
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func (s *testServer) seedContract(t *testing.T, title string) domain.Contract {
	t.Helper()
	res, data := s.do(t, http.MethodPost, "/api/contracts", map[string]any{
		"title":   title,
		"type":    "Property Sale",
		"parties": []map[string]string{{"name": "Acme Corp"}, {"name": "Jane Doe"}},
		"value":   1250000,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	return decode[domain.Contract](t, data)
}

func (s *testServer) seedSignature(t *testing.T, contractID, document string, emails ...string) domain.SignatureRequest {
	t.Helper()
	var recipients []map[string]string
	for _, e := range emails {
		recipients = append(recipients, map[string]string{"email": e})
	}
	res, data := s.do(t, http.MethodPost, "/api/signatures", map[string]any{
		"contract_id": contractID,
		"document":    document,
		"recipients":  recipients,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	return decode[domain.SignatureRequest](t, data)
}

func TestHealthAndAuth(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/signatures", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	envelope := decode[map[string]apiErrorBody](t, data)
	assert.Equal(t, "unauthorized", envelope["error"].Code)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/signatures", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/status", nil, map[string]string{"X-User-Name": "Sarah Johnson"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "Sarah Johnson", decode[StatusResponse](t, data).User)

	res, data = srv.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "John Smith", decode[StatusResponse](t, data).User)
}

func TestSignatureListProjection(t *testing.T) {
	srv := newTestServer(t)
	c := srv.seedContract(t, "Property Sale - 123 Main St")
	first := srv.seedSignature(t, c.ID, "Purchase Agreement", "a@example.com")
	second := srv.seedSignature(t, c.ID, "Wire Instructions", "b@example.com")
	third := srv.seedSignature(t, c.ID, "Closing Disclosure", "c@example.com")

	res, data := srv.do(t, http.MethodPost, "/api/signatures/"+first.ID+"/void", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.SignatureVoided, decode[domain.SignatureRequest](t, data).Status)

	res, data = srv.do(t, http.MethodGet, "/api/signatures?tab=inbox&sort=id&dir=desc", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list := decode[signatureList](t, data)
	require.Len(t, list.Signatures, 2)
	assert.Equal(t, []string{third.ID, second.ID}, []string{list.Signatures[0].ID, list.Signatures[1].ID})
	assert.Equal(t, "Property Sale - 123 Main St", list.Signatures[0].Contract)

	res, data = srv.do(t, http.MethodGet, "/api/signatures?q=wire&assignee=__ME__", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list = decode[signatureList](t, data)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, second.ID, list.Signatures[0].ID)

	res, data = srv.do(t, http.MethodGet, "/api/signatures?status=Voided&status=Completed", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 1, decode[signatureList](t, data).Total)

	res, data = srv.do(t, http.MethodGet, "/api/signatures?sort=-id&limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list = decode[signatureList](t, data)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Signatures, 1)
	assert.Equal(t, second.ID, list.Signatures[0].ID)

	res, data = srv.do(t, http.MethodGet, "/api/signatures?sender=to_me", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 0, decode[signatureList](t, data).Total)

	// the raw body keys the list under "signatures"
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "signatures")
}

func TestListRejectsBadParameters(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{
		"/api/signatures?sort=color",
		"/api/signatures?tab=archive",
		"/api/contracts?sender=everyone",
		"/api/documents?sort=id&dir=sideways",
	} {
		res, data := srv.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, "%s: %s", path, data)
		assert.Equal(t, "bad_request", decode[map[string]apiErrorBody](t, data)["error"].Code, path)
	}
}

func TestSignAndDeclineFlow(t *testing.T) {
	srv := newTestServer(t)
	c := srv.seedContract(t, "Lease")
	s := srv.seedSignature(t, c.ID, "Lease Agreement", "a@example.com", "b@example.com")

	res, data := srv.do(t, http.MethodPost, "/api/signatures/"+s.ID+"/recipients/a@example.com/sign", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "1 of 2", decode[domain.SignatureRequest](t, data).Signatures)

	res, data = srv.do(t, http.MethodPost, "/api/signatures/"+s.ID+"/recipients/b@example.com/decline", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.SignatureRejected, decode[domain.SignatureRequest](t, data).Status)

	res, _ = srv.do(t, http.MethodPost, "/api/signatures/"+s.ID+"/void", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = srv.do(t, http.MethodGet, "/api/signatures/999", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = srv.do(t, http.MethodDelete, "/api/signatures/"+s.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestContractStatusAndDocuments(t *testing.T) {
	srv := newTestServer(t)
	c := srv.seedContract(t, "Lease")
	require.NotNil(t, c.Value)
	assert.Equal(t, 1250000.0, *c.Value)

	res, data := srv.do(t, http.MethodPatch, "/api/contracts/"+c.ID+"/status", map[string]any{})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.ContractPreparation, decode[domain.Contract](t, data).Status)

	res, _ = srv.do(t, http.MethodPatch, "/api/contracts/"+c.ID+"/status", map[string]any{"status": "Completed"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, data = srv.do(t, http.MethodPost, "/api/documents", map[string]any{"contract_id": c.ID, "name": "deed.pdf", "size": 1024})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	doc := decode[domain.Document](t, data)
	assert.Equal(t, "John Smith", doc.UploadedBy)

	res, data = srv.do(t, http.MethodGet, "/api/documents?tab=active&assignee=__ME__", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 1, decode[documentList](t, data).Total)

	res, data = srv.do(t, http.MethodPost, "/api/contracts", map[string]any{"type": "Property Sale"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodGet, "/api/events?entity_kind=contract&limit=1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page := decode[paginatedEvents](t, data)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "contract.status", page.Items[0].Type)
	assert.NotEmpty(t, page.NextCursor)
}

func TestOpenAPIAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/api/signatures")

	srv.seedContract(t, "Lease")
	res, _ = srv.do(t, http.MethodGet, "/api/contracts", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), `escra_projections_total{collection="contracts"} 1`)
	assert.Contains(t, string(data), `escra_mutations_total{type="contract.created"} 1`)
}

func TestWebhookDeliverySigned(t *testing.T) {
	var mu sync.Mutex
	var got []webhookEvent
	var sigs []string
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		got = append(got, evt)
		sigs = append(sigs, strings.TrimPrefix(r.Header.Get("X-Escra-Signature"), "sha256=")+"|"+signPayload("hook-secret", body))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Webhooks = []config.WebhookConfig{{URL: receiver.URL, Secret: "hook-secret", Events: []string{"signature.*"}}}
	})
	before := srv.seedContract(t, "Before")

	d := NewWebhookDispatcher(srv.Engine, nil)
	ctx := context.Background()
	d.dispatchAll(ctx) // pins cursors at the current log head

	srv.seedSignature(t, before.ID, "Deed", "a@example.com")
	srv.seedContract(t, "After")
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "signature.created", got[0].Type)
	parts := strings.SplitN(sigs[0], "|", 2)
	assert.Equal(t, parts[1], parts[0])
}

func TestEventFilterMatch(t *testing.T) {
	f := newEventFilter([]string{"contract.created", "signature.*"})
	assert.True(t, f.match("contract.created"))
	assert.False(t, f.match("contract.deleted"))
	assert.True(t, f.match("signature.declined"))
	assert.True(t, newEventFilter(nil).match("document.created"))
}

func TestContractAccessControl(t *testing.T) {
	srv := newTestServer(t)
	c := srv.seedContract(t, "Mine")
	assert.Equal(t, "John Smith", c.CreatedBy)
	sarah := map[string]string{"X-User-Name": "Sarah Johnson"}
	url := srv.URL + "/api/contracts/" + c.ID

	res, _ := doJSON(t, srv.Client(), http.MethodGet, url, nil, sarah)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, url, nil, sarah)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/contracts", nil, sarah)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 0, decode[contractList](t, data).Total)

	res, data = srv.do(t, http.MethodPatch, "/api/contracts/"+c.ID, map[string]any{"shared_with": []string{"Sarah Johnson"}})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, []string{"Sarah Johnson"}, decode[domain.Contract](t, data).SharedWith)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, url, nil, sarah)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res, data = doJSON(t, srv.Client(), http.MethodDelete, url, nil, sarah)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "forbidden", decode[map[string]apiErrorBody](t, data)["error"].Code)

	viewer := map[string]string{"X-User-Name": "Sarah Johnson", "X-User-Role": "viewer"}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/contracts", map[string]any{"title": "x"}, viewer)
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, _ = srv.do(t, http.MethodPut, "/api/roles/Vic", map[string]any{"role": "viewer"})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	_, err := SignToken(testSecret, "u-2", "Ada", "owner", time.Hour)
	assert.Error(t, err)
	adminToken, err := SignToken(testSecret, "u-2", "Ada", "admin", time.Hour)
	require.NoError(t, err)
	admin := map[string]string{"Authorization": "Bearer " + adminToken}
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/roles/Vic", map[string]any{"role": "viewer"}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "Ada", decode[map[string]string](t, data)["assigned_by"])
	res, data = srv.do(t, http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[roleList](t, data).Roles, 1)

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, url, nil, admin)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestContractTasksCommentsAndActivity(t *testing.T) {
	srv := newTestServer(t)
	c := srv.seedContract(t, "New Property Acquisition")
	base := "/api/contracts/" + c.ID

	res, data := srv.do(t, http.MethodPost, base+"/tasks", map[string]any{
		"title":    "Title Search",
		"due_date": "2025-05-21",
		"subtasks": []string{"Request title documents", "Check for liens"},
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	task := decode[domain.Task](t, data)
	assert.Equal(t, "TSK-001", task.ID)
	assert.Equal(t, "0 of 2", task.Progress)
	assert.Equal(t, domain.Unassigned, task.Assignee)

	res, data = srv.do(t, http.MethodPatch, base+"/tasks/"+task.ID, map[string]any{"status": "Done", "toggle_subtasks": []string{"sub-1"}})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	task = decode[domain.Task](t, data)
	assert.Equal(t, domain.TaskDone, task.Status)
	assert.Equal(t, "1 of 2", task.Progress)

	res, _ = srv.do(t, http.MethodPatch, base+"/tasks/"+task.ID, map[string]any{"status": "Someday"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data = srv.do(t, http.MethodGet, base+"/tasks", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[taskList](t, data).Tasks, 1)

	res, data = srv.do(t, http.MethodPost, base+"/comments", map[string]any{"content": "Title came back clean."})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodGet, base+"/comments", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	comments := decode[commentList](t, data).Comments
	require.Len(t, comments, 1)
	assert.Equal(t, "John Smith", comments[0].Author)

	res, data = srv.do(t, http.MethodPatch, base, map[string]any{"description": "Two-party acquisition"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "Two-party acquisition", decode[domain.Contract](t, data).Description)
	res, _ = srv.do(t, http.MethodPatch, base, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data = srv.do(t, http.MethodGet, base+"/activity?limit=10", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	feed := decode[paginatedEvents](t, data).Items
	require.Len(t, feed, 5)
	assert.Equal(t, "contract.updated", feed[0].Type)
	assert.Equal(t, "comment.added", feed[1].Type)
	assert.Equal(t, task.ID, feed[2].Payload["task_id"])

	res, _ = srv.do(t, http.MethodDelete, base+"/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = srv.do(t, http.MethodDelete, base+"/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = srv.do(t, http.MethodGet, "/api/contracts/999/tasks", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

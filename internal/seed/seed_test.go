package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escra/internal/config"
	"escra/internal/db"
	"escra/internal/domain"
	"escra/internal/engine"
	"escra/internal/engine/auth"
	"escra/internal/migrate"
	"escra/internal/projection"
	"escra/internal/repo"
)

func TestDemoDataset(t *testing.T) {
	ds, err := Demo()
	require.NoError(t, err)
	assert.Len(t, ds.Contracts, 18)
	assert.Len(t, ds.Signatures, 10)
	assert.Len(t, ds.Documents, 10)
	require.Len(t, ds.Tasks, 6)
	assert.Equal(t, "1 of 3", domain.SubtaskProgress(ds.Tasks[1].Subtasks))
	assert.Equal(t, "Request title documents", ds.Tasks[1].Subtasks[0].Title)
	assert.Equal(t, "9550", ds.Tasks[5].ContractID)

	first := ds.Contracts[0]
	assert.Equal(t, []string{"Robert Chen", "Eastside Properties"}, first.PartyNames())
	require.NotNil(t, first.Value)
	assert.Equal(t, 680000.0, *first.Value)

	sig := ds.Signatures[0]
	assert.Equal(t, "1 of 2", domain.Progress(sig.Recipients))
	assert.Equal(t, "robert.chen@example.com", sig.Recipients[0].Email)
	assert.Equal(t, ds.Documents[0].ID, sig.DocumentID)
	assert.Equal(t, int64(2516582), ds.Documents[0].Size)

	rejected := ds.Signatures[2]
	assert.Equal(t, domain.RecipientDeclined, rejected.Recipients[0].Status)
	assert.Equal(t, domain.RecipientPending, rejected.Recipients[1].Status)

	again, err := Demo()
	require.NoError(t, err)
	assert.Equal(t, ds.Documents[3].ID, again.Documents[3].ID)
}

func TestParseRejectsBadProgress(t *testing.T) {
	_, err := Parse([]byte(`signatures: [{id: "1", document: D, parties: [A], signatures: "2 of 3"}]`))
	assert.ErrorContains(t, err, "does not match")

	_, err = Parse([]byte(`documents: [{ref: X, name: D, size: 3 parsecs}]`))
	assert.ErrorContains(t, err, "unknown unit")
}

func TestSeedEngine(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.User.Name = "John Smith"
	e := engine.New(conn, cfg, nil)

	ds, err := Demo()
	require.NoError(t, err)
	res, err := e.Seed(ctx, ds, "seed")
	require.NoError(t, err)
	assert.Equal(t, engine.SeedResult{Contracts: 18, Signatures: 10, Documents: 10, Tasks: 6}, res)

	sigs, err := e.ListSignatures(ctx, projection.Query{})
	require.NoError(t, err)
	require.Equal(t, 10, sigs.Total)
	assert.Equal(t, "1234", sigs.Items[0].ID)
	assert.Equal(t, "New Property Acquisition", sigs.Items[0].Contract)

	mine, err := e.ListSignatures(ctx, projection.Query{Filters: projection.Filters{
		Assignees:   []string{projection.Me},
		CurrentUser: e.CurrentUser(),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, mine.Total)

	john := auth.Actor{ID: "John Smith"}
	created, err := e.CreateContract(ctx, engine.ContractCreateOptions{Title: "Next", Actor: john})
	require.NoError(t, err)
	assert.Equal(t, "10009", created.ID)

	tasks, err := e.ListTasks(ctx, "9548", john)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "TSK-003", tasks[0].ID)
	assert.Equal(t, "0 of 3", tasks[0].Progress)

	task, err := e.CreateTask(ctx, engine.TaskCreateOptions{ContractID: "9548", Title: "Final walkthrough", Actor: john})
	require.NoError(t, err)
	assert.Equal(t, "TSK-011", task.ID)

	// 9550 belongs to Sarah Johnson; the demo contracts without an assignee have no owner
	_, err = e.ListTasks(ctx, "9550", john)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	visible, err := e.ListContracts(ctx, projection.Query{}, john)
	require.NoError(t, err)
	assert.Equal(t, 10, visible.Total)

	_, err = e.Seed(ctx, ds, "seed")
	assert.ErrorIs(t, err, repo.ErrDuplicate)
}

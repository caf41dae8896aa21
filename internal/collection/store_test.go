package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/status"
)

const testPath = Path("artifacts/app/users/u1/extracted_data")

func receiptDoc(id string) model.Document {
	return model.Document{ID: id, Record: &model.Receipt{Date: "2025-01-01", MerchantName: "M" + id, TotalAmount: 10, Currency: "BDT"}}
}

func TestUserPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, testPath, UserPath("app", "u1"))
}

func TestStore_ApplyTransitions(t *testing.T) {
	t.Parallel()
	board := status.NewBoard("")
	s := NewStore(NewMemory(), testPath, board)

	assert.Equal(t, TransitionInitial, s.Apply(Snapshot{Seq: 1}))
	assert.Equal(t, TransitionGrew, s.Apply(Snapshot{Seq: 2, Docs: []model.Document{receiptDoc("a")}}))
	assert.Equal(t, TransitionSilent, s.Apply(Snapshot{Seq: 3, Docs: []model.Document{receiptDoc("a")}}))

	assert.Equal(t, []string{
		"Data loaded (0 items). Ready for input.",
		"✓ Data updated! 1 item(s) now in database. All data displayed below.",
	}, board.Texts())
}

func TestStore_InitialLoadWithData(t *testing.T) {
	t.Parallel()
	board := status.NewBoard("")
	s := NewStore(NewMemory(), testPath, board)

	s.Apply(Snapshot{Seq: 7, Docs: []model.Document{receiptDoc("a"), receiptDoc("b")}})
	assert.Equal(t, []string{"✓ Data loaded successfully (2 item(s)). All data is displayed in the table below."}, board.Texts())
	assert.Equal(t, 2, s.Len())
}

func TestStore_ShrinkIsSilent(t *testing.T) {
	t.Parallel()
	board := status.NewBoard("")
	s := NewStore(NewMemory(), testPath, board)
	s.Apply(Snapshot{Seq: 1, Docs: []model.Document{receiptDoc("a"), receiptDoc("b")}})
	assert.Equal(t, TransitionSilent, s.Apply(Snapshot{Seq: 2}))
	assert.Len(t, board.Texts(), 1)
	assert.Zero(t, s.Len())
}

func TestStore_DropsStaleSnapshot(t *testing.T) {
	t.Parallel()
	s := NewStore(NewMemory(), testPath, nil)
	s.Apply(Snapshot{Seq: 5, Docs: []model.Document{receiptDoc("a"), receiptDoc("b")}})

	assert.Equal(t, TransitionStale, s.Apply(Snapshot{Seq: 4, Docs: []model.Document{receiptDoc("old")}}))
	assert.Equal(t, TransitionStale, s.Apply(Snapshot{Seq: 5}))
	assert.Equal(t, 2, s.Len())
}

func TestStore_SelectionResetOnSnapshot(t *testing.T) {
	t.Parallel()
	s := NewStore(NewMemory(), testPath, nil)
	s.Apply(Snapshot{Seq: 1, Docs: []model.Document{receiptDoc("a")}})

	js, err := s.Select(0)
	require.NoError(t, err)
	assert.Contains(t, js, `"id": "a"`)
	assert.Contains(t, js, `"Source": "Receipt"`)
	idx, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	s.Apply(Snapshot{Seq: 2, Docs: []model.Document{receiptDoc("a")}})
	_, ok = s.Selected()
	assert.False(t, ok)

	_, err = s.Select(3)
	assert.Error(t, err)
}

func TestStore_OnChangeAndReady(t *testing.T) {
	t.Parallel()
	s := NewStore(NewMemory(), testPath, nil)
	var counts []int
	s.OnChange(func(docs []model.Document) { counts = append(counts, len(docs)) })

	select {
	case <-s.Ready():
		t.Fatal("ready before first snapshot")
	default:
	}

	s.Apply(Snapshot{Seq: 1})
	s.Apply(Snapshot{Seq: 2, Docs: []model.Document{receiptDoc("a")}})
	s.Apply(Snapshot{Seq: 1})

	require.NoError(t, s.WaitReady(context.Background()))
	assert.Equal(t, []int{0, 1}, counts)
}

func TestStore_AppendIsNotOptimistic(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	s := NewStore(mem, testPath, nil)
	s.Apply(Snapshot{Seq: 1})

	id, err := s.Append(context.Background(), &model.Voice{UserName: "Rahim"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Zero(t, s.Len(), "local view changes only via snapshots")

	docs, err := mem.List(context.Background(), testPath)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestStore_AppendErrors(t *testing.T) {
	t.Parallel()
	var pe *PersistenceError

	_, err := NewStore(nil, "", nil).Append(context.Background(), &model.Voice{})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "append", pe.Op)

	mem := NewMemory()
	mem.FailCreate = errors.New("permission denied")
	_, err = NewStore(mem, testPath, nil).Append(context.Background(), &model.Voice{})
	require.ErrorAs(t, err, &pe)
	assert.ErrorContains(t, err, "permission denied")
}

func TestStore_RunFollowsBackend(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	board := status.NewBoard("")
	s := NewStore(mem, testPath, board)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, s.WaitReady(ctx))
	_, err := s.Append(ctx, &model.Receipt{Date: "2025-01-01"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Contains(t, board.Texts(), "✓ Data updated! 1 item(s) now in database. All data displayed below.")
}

func TestStore_ClearAll(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	board := status.NewBoard("")
	s := NewStore(mem, testPath, board)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := mem.Create(ctx, testPath, &model.Voice{})
		require.NoError(t, err)
	}
	s.Apply(Snapshot{Seq: 100, Docs: []model.Document{receiptDoc("a")}})
	_, _ = s.Select(0)

	require.NoError(t, s.ClearAll(ctx))
	docs, _ := mem.List(ctx, testPath)
	assert.Empty(t, docs)
	_, ok := s.Selected()
	assert.False(t, ok)
	latest, _ := board.Latest()
	assert.Equal(t, MsgCleared, latest.Text)
}

func TestStore_ClearAllPartialFailure(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	board := status.NewBoard("")
	s := NewStore(mem, testPath, board)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := mem.Create(ctx, testPath, &model.Voice{})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	mem.FailDelete = func(id string) error {
		if id == ids[1] {
			return errors.New("unavailable")
		}
		return nil
	}

	err := s.ClearAll(ctx)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	latest, _ := board.Latest()
	assert.Equal(t, MsgClearFailed, latest.Text)
	assert.True(t, latest.IsError)

	docs, _ := mem.List(ctx, testPath)
	assert.Len(t, docs, 1, "other deletes still ran")
}

func TestStore_ClearAllListFailure(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	mem.FailList = errors.New("offline")
	board := status.NewBoard("")

	err := NewStore(mem, testPath, board).ClearAll(context.Background())
	require.Error(t, err)
	latest, _ := board.Latest()
	assert.Equal(t, MsgClearFailed, latest.Text)
}

func TestStore_NotReady(t *testing.T) {
	t.Parallel()
	board := status.NewBoard("")
	s := NewStore(nil, "", board)
	require.Error(t, s.ClearAll(context.Background()))
	require.Error(t, s.Run(context.Background()))
	latest, _ := board.Latest()
	assert.Equal(t, MsgNotReady, latest.Text)
}

package trace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
)

func appendN(t *testing.T, store Store, sessionID, studentID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		sender := SenderStudent
		if i%2 == 1 {
			sender = SenderTutor
		}
		err := store.AppendMessage(context.Background(), &Message{
			SessionID:  sessionID,
			StudentID:  studentID,
			ActivityID: "act-1",
			Sender:     sender,
			Content:    string(rune('a' + i)),
			Phase:      "EXPLORATION",
		})
		require.NoError(t, err)
	}
}

func TestMemoryStore_AppendAssignsIDAndTimestamp(t *testing.T) {
	store := NewMemoryStore()
	msg := &Message{SessionID: "s1", StudentID: "stu-1", Sender: SenderStudent, Content: "hi"}
	require.NoError(t, store.AppendMessage(context.Background(), msg))

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestMemoryStore_AppendRequiresSession(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendMessage(context.Background(), &Message{StudentID: "stu-1"})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindRequest))
}

func TestMemoryStore_SessionMessagesOrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	appendN(t, store, "s1", "stu-1", 5)
	appendN(t, store, "s2", "stu-2", 2)

	msgs, err := store.SessionMessages(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, "a", msgs[0].Content)
	assert.Equal(t, "e", msgs[4].Content)

	// Positive limit keeps the newest tail, still oldest first.
	msgs, err = store.SessionMessages(context.Background(), "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "d", msgs[0].Content)
	assert.Equal(t, "e", msgs[1].Content)
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	store := NewMemoryStore()
	appendN(t, store, "s1", "stu-1", 1)

	msgs, err := store.SessionMessages(context.Background(), "s1", 0)
	require.NoError(t, err)
	msgs[0].Content = "mutated"

	again, err := store.SessionMessages(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Content)
}

func TestMemoryStore_StudentMessagesFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.AppendMessage(ctx, &Message{
		SessionID: "s1", StudentID: "stu-1", ActivityID: "act-1", Sender: SenderStudent, Content: "first",
	}))
	require.NoError(t, store.AppendMessage(ctx, &Message{
		SessionID: "s2", StudentID: "stu-1", ActivityID: "act-2", Sender: SenderStudent, Content: "second",
	}))
	require.NoError(t, store.AppendMessage(ctx, &Message{
		SessionID: "s3", StudentID: "stu-2", ActivityID: "act-1", Sender: SenderStudent, Content: "other student",
	}))

	msgs, err := store.StudentMessages(ctx, MessageFilter{StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	msgs, err = store.StudentMessages(ctx, MessageFilter{StudentID: "stu-1", ActivityID: "act-2"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "second", msgs[0].Content)

	msgs, err = store.StudentMessages(ctx, MessageFilter{StudentID: "stu-1", Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStore_Sessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetSession(ctx, "missing")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))

	require.NoError(t, store.SaveSession(ctx, &SessionRecord{ID: "s1", StudentID: "stu-1", ActivityID: "act-1", Active: true}))
	require.NoError(t, store.SaveSession(ctx, &SessionRecord{ID: "s2", StudentID: "stu-2", ActivityID: "act-1", Active: false}))

	record, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, record.Active)
	assert.False(t, record.UpdatedAt.IsZero())

	active, err := store.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s1", active[0].ID)
}

func TestMemoryStore_JobsAndSweepCutoff(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SaveJob(ctx, &JobRecord{ID: "j1", TeacherID: "t1", Phase: "GENERATING"}))

	record, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "GENERATING", record.Phase)

	stale, err := store.JobsUpdatedBefore(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = store.JobsUpdatedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

func TestMemoryStore_Audits(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := &AuditRecord{StudentID: "stu-1", Category: "misconception", Evidence: []string{"quote"}}
	require.NoError(t, store.SaveAudit(ctx, record))
	require.NotEmpty(t, record.ID)

	got, err := store.GetAudit(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "misconception", got.Category)

	got.Evidence[0] = "mutated"
	again, err := store.GetAudit(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "quote", again.Evidence[0])
}

func TestBoundedStore_ClampsReadLimits(t *testing.T) {
	store := NewBoundedStore(NewMemoryStore(), 3)
	appendN(t, store, "s1", "stu-1", 6)

	msgs, err := store.SessionMessages(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3, "unbounded reads fall back to the ceiling")

	msgs, err = store.SessionMessages(context.Background(), "s1", 100)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	msgs, err = store.StudentMessages(context.Background(), MessageFilter{StudentID: "stu-1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "limits under the ceiling pass through")
}

func TestNewStore_UnknownDriver(t *testing.T) {
	_, err := NewStore(config.TraceStoreConfig{Driver: "cassandra"})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindRequest))
}

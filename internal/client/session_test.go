package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabsync/internal/capabilities"
	"collabsync/internal/client/cache"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/protocol"
)

type sessionEnv struct {
	channel *fakeChannel
	api     *fakeAPI
	store   *cache.MemoryStore
	session *Session
	events  chan string
}

func newSessionEnv(t *testing.T) *sessionEnv {
	t.Helper()
	registry, err := capabilities.NewRegistry()
	require.NoError(t, err)

	env := &sessionEnv{
		channel: newFakeChannel(),
		api: &fakeAPI{doc: models.Document{
			ID:           "doc-1",
			MajorVersion: 1,
			Content:      content("server"),
			UpdatedAt:    time.Now().UTC().Add(-time.Hour),
		}},
		store:  cache.NewMemoryStore(),
		events: make(chan string, 16),
	}

	env.channel.setRespond(func(event string, payload any) (protocol.AckData, error) {
		switch event {
		case protocol.EventJoinRoom:
			return protocol.AckData{
				Success: true,
				ActiveParticipants: []models.Participant{
					{SessionID: "s-1", UserID: "alice", Name: "Alice", Role: models.RoleEditor},
				},
				RoomState: &models.RoomState{DocumentID: "doc-1", MajorVersion: 1, Content: content("room")},
			}, nil
		case protocol.EventSaveDocument:
			draft := 1.1
			return protocol.AckData{Success: true, RoomState: &models.RoomState{DocumentID: "doc-1", MajorVersion: 1, DraftVersion: &draft, Content: content("saved")}}, nil
		}
		return protocol.AckData{Success: true}, nil
	})

	env.session = NewSession(SessionConfig{
		DocumentID: "doc-1",
		FormID:     "proposal",
		User:       models.UserRef{ID: "alice", Name: "Alice"},
		Notify:     func(event string) { env.events <- event },
	}, env.channel, env.api, NewPersistence(env.store, time.Hour, testLogger()), registry, testLogger())
	return env
}

func TestSession_OpenJoinsAndAdoptsRoomState(t *testing.T) {
	env := newSessionEnv(t)

	require.NoError(t, env.session.Open(context.Background()))

	assert.Len(t, env.channel.sent(protocol.EventJoinRoom), 1)
	require.NoError(t, env.session.WaitJoined(context.Background()))
	assert.Equal(t, models.RoleEditor, env.session.Role())
	assert.Len(t, env.session.Participants(), 1)
	assert.JSONEq(t, string(content("room")), string(env.session.Snapshot().Content))
	assert.False(t, env.session.HasUnsavedChanges())

	// editors may resolve others' comments
	env.session.Comments().Load([]models.Comment{{ID: "c-1", DocumentID: "doc-1", AuthorID: "bob"}})
	assert.NoError(t, env.session.Comments().Resolve(context.Background(), "c-1"))
}

func TestSession_OpenSurfacesFetchFailure(t *testing.T) {
	env := newSessionEnv(t)
	env.api.getErr = assert.AnError

	err := env.session.Open(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, env.channel.sent(protocol.EventJoinRoom))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, env.session.WaitJoined(ctx), context.DeadlineExceeded)
}

func TestSession_RemoteUpdateMarksDirty(t *testing.T) {
	env := newSessionEnv(t)
	require.NoError(t, env.session.Open(context.Background()))

	env.channel.emit(t, protocol.EventContentUpdated, protocol.ContentUpdated{
		DocumentID: "doc-1",
		Content:    content("from bob"),
		WordCount:  2,
		UpdatedBy:  models.UserRef{ID: "bob", Name: "Bob"},
	})

	assert.Equal(t, protocol.EventContentUpdated, <-env.events)
	assert.JSONEq(t, string(content("from bob")), string(env.session.Snapshot().Content))
	assert.True(t, env.session.HasUnsavedChanges())

	env.channel.emit(t, protocol.EventParticipantJoined, protocol.ParticipantsChanged{
		DocumentID: "doc-1",
		ActiveParticipants: []models.Participant{
			{SessionID: "s-1", UserID: "alice"},
			{SessionID: "s-2", UserID: "bob"},
		},
	})
	assert.Equal(t, protocol.EventParticipantJoined, <-env.events)
	assert.Len(t, env.session.Participants(), 2)

	env.channel.emit(t, protocol.EventVersionCreated, protocol.VersionCreated{DocumentID: "doc-1", MajorVersion: 2})
	assert.Equal(t, protocol.EventVersionCreated, <-env.events)
	assert.Equal(t, 2, env.session.Snapshot().MajorVersion)
	assert.Nil(t, env.session.Snapshot().DraftVersion)
}

func TestSession_SaveFlushesThenConfirms(t *testing.T) {
	env := newSessionEnv(t)
	require.NoError(t, env.session.Open(context.Background()))

	env.session.Edit(content("typed"), 1, 5)
	assert.True(t, env.session.HasUnsavedChanges())

	snap, err := env.session.Save(context.Background())
	require.NoError(t, err)

	updates := env.channel.sent(protocol.EventUpdateContent)
	require.Len(t, updates, 1)
	update := updates[0].payload.(models.ContentUpdate)
	assert.JSONEq(t, string(content("typed")), string(update.Content))
	assert.Equal(t, "proposal", update.FormID)

	require.NotNil(t, snap.DraftVersion)
	assert.Equal(t, 1.1, *snap.DraftVersion)
	assert.False(t, env.session.HasUnsavedChanges())
}

func TestSession_CloseWhileDisconnectedSavesDraftOverREST(t *testing.T) {
	env := newSessionEnv(t)
	require.NoError(t, env.session.Open(context.Background()))

	env.session.Edit(content("offline work"), 2, 12)
	env.channel.setState(StateDisconnected)

	err := env.session.Close(context.Background())
	require.Error(t, err, "the pending update cannot reach the room")

	require.Len(t, env.api.draftSaves, 1)
	assert.JSONEq(t, string(content("offline work")), string(env.api.draftSaves[0].Content))
	assert.False(t, env.session.HasUnsavedChanges())

	rec, err := env.store.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(content("offline work")), string(rec.Content))
	assert.Equal(t, 1.1, rec.SavedVersion)
}

func TestSession_RejoinPushesLocalChanges(t *testing.T) {
	env := newSessionEnv(t)
	require.NoError(t, env.session.Open(context.Background()))

	env.session.Edit(content("ahead"), 1, 5)
	env.session.rejoin(context.Background())

	updates := env.channel.sent(protocol.EventUpdateContent)
	require.Len(t, updates, 1)
	var sent json.RawMessage = updates[0].payload.(models.ContentUpdate).Content
	assert.JSONEq(t, string(content("ahead")), string(sent))
	assert.JSONEq(t, string(content("ahead")), string(env.session.Snapshot().Content))
}

// roomAt makes the join ack carry text as the room state, updated at at.
func (env *sessionEnv) roomAt(text string, at time.Time) {
	env.channel.setRespond(func(event string, payload any) (protocol.AckData, error) {
		if event == protocol.EventJoinRoom {
			return protocol.AckData{
				Success:   true,
				RoomState: &models.RoomState{DocumentID: "doc-1", MajorVersion: 1, Content: content(text), UpdatedAt: at},
			}, nil
		}
		return protocol.AckData{Success: true}, nil
	})
}

func TestSession_RejoinAfterOnlyRemoteEditsAdoptsRoom(t *testing.T) {
	env := newSessionEnv(t)
	require.NoError(t, env.session.Open(context.Background()))

	env.channel.emit(t, protocol.EventContentUpdated, protocol.ContentUpdated{
		DocumentID: "doc-1",
		Content:    content("bob-v1"),
		UpdatedBy:  models.UserRef{ID: "bob", Name: "Bob"},
	})
	<-env.events
	require.True(t, env.session.HasUnsavedChanges())

	// bob kept typing while this client was away
	env.roomAt("bob-v2", time.Now().UTC())
	env.session.rejoin(context.Background())

	assert.Empty(t, env.channel.sent(protocol.EventUpdateContent), "nothing typed here, nothing to push")
	assert.JSONEq(t, string(content("bob-v2")), string(env.session.Snapshot().Content))
}

func TestSession_RejoinPrefersNewerRoomOverOlderLocalEdit(t *testing.T) {
	env := newSessionEnv(t)
	require.NoError(t, env.session.Open(context.Background()))

	env.channel.setState(StateDisconnected)
	env.session.Edit(content("stale local"), 2, 11)
	require.Error(t, env.session.batcher.FlushNow(context.Background()))
	env.channel.setState(StateConnected)

	env.roomAt("newer room", time.Now().UTC().Add(time.Minute))
	env.session.rejoin(context.Background())

	assert.Len(t, env.channel.sent(protocol.EventUpdateContent), 1, "only the failed attempt")
	assert.JSONEq(t, string(content("newer room")), string(env.session.Snapshot().Content))
	_, pending := env.session.batcher.Pending()
	assert.False(t, pending, "the older edit must not reach the room later")
}

func TestSession_RejoinSkipsEditsTheRoomAlreadyHas(t *testing.T) {
	env := newSessionEnv(t)
	require.NoError(t, env.session.Open(context.Background()))

	env.session.Edit(content("typed"), 1, 5)
	require.NoError(t, env.session.batcher.FlushNow(context.Background()))
	require.Len(t, env.channel.sent(protocol.EventUpdateContent), 1)

	env.roomAt("typed", time.Time{})
	env.session.rejoin(context.Background())

	assert.Len(t, env.channel.sent(protocol.EventUpdateContent), 1)
}

func TestSession_OpenWithNewerCachePushesOnJoin(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()

	// an earlier session left unsent work in the cache
	prior := NewPersistence(env.store, time.Hour, testLogger())
	require.NoError(t, prior.Save(ctx, Snapshot{DocumentID: "doc-1", MajorVersion: 1, Content: content("offline draft")}, false))

	env.roomAt("server", env.api.doc.UpdatedAt)
	require.NoError(t, env.session.Open(ctx))

	updates := env.channel.sent(protocol.EventUpdateContent)
	require.Len(t, updates, 1)
	update := updates[0].payload.(models.ContentUpdate)
	assert.JSONEq(t, string(content("offline draft")), string(update.Content))
	assert.Equal(t, 2, update.WordCount)
	assert.True(t, env.session.HasUnsavedChanges())
}

func TestSession_DraftDiscardedFallsBackToMajor(t *testing.T) {
	env := newSessionEnv(t)
	require.NoError(t, env.session.Open(context.Background()))

	env.session.Edit(content("on the draft"), 3, 12)

	env.channel.emit(t, protocol.EventDraftDiscarded, protocol.DraftDiscarded{
		DocumentID:   "doc-1",
		MajorVersion: 1,
		Content:      content("major one"),
		WordCount:    2,
		UpdatedAt:    time.Now().UTC(),
		DiscardedBy:  models.UserRef{ID: "bob", Name: "Bob"},
	})
	assert.Equal(t, protocol.EventDraftDiscarded, <-env.events)

	snap := env.session.Snapshot()
	assert.JSONEq(t, string(content("major one")), string(snap.Content))
	assert.Nil(t, snap.DraftVersion)
	assert.False(t, env.session.HasUnsavedChanges())
	_, pending := env.session.batcher.Pending()
	assert.False(t, pending, "edits on the discarded draft must not recreate it")

	rec, err := env.store.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.SavedVersion)
}

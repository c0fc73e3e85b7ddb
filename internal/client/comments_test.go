package client

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/protocol"
)

var alice = models.UserRef{ID: "alice", Name: "Alice"}

func newComments(t *testing.T, ch *fakeChannel, canResolve bool) *CommentManager {
	t.Helper()
	m := NewCommentManager("doc-1", alice, canResolve, ch, testLogger())
	m.Subscribe(ch)
	return m
}

func TestCommentManager_FailedAddKeepsTemporaryComment(t *testing.T) {
	ch := newFakeChannel()
	ch.setRespond(func(string, any) (protocol.AckData, error) {
		return protocol.AckData{}, ErrDisconnected
	})
	m := newComments(t, ch, false)

	c, err := m.AddComment(context.Background(), "Check the totals")
	require.ErrorIs(t, err, ErrDisconnected)

	assert.True(t, strings.HasPrefix(c.ID, "temp-"), "id = %s", c.ID)
	assert.True(t, c.Temporary)

	list := m.Comments()
	require.Len(t, list, 1)
	assert.Equal(t, "Check the totals", list[0].Content)
	assert.Equal(t, "alice", list[0].AuthorID)

	// temporary comments survive a reload from the server
	m.Load(nil)
	assert.Len(t, m.Comments(), 1)
}

func TestCommentManager_AddDeduplicatesEcho(t *testing.T) {
	ch := newFakeChannel()
	stored := models.Comment{ID: "c-1", DocumentID: "doc-1", AuthorID: "alice", Content: "hi"}
	ch.setRespond(func(event string, payload any) (protocol.AckData, error) {
		require.Equal(t, protocol.EventAddComment, event)
		return protocol.AckData{Success: true, Comment: &stored}, nil
	})
	m := newComments(t, ch, false)

	c, err := m.AddComment(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "c-1", c.ID)

	ch.emit(t, protocol.EventNewComment, protocol.NewComment{DocumentID: "doc-1", Comment: stored})
	assert.Len(t, m.Comments(), 1)
}

func TestCommentManager_EmptyContentIsRejected(t *testing.T) {
	ch := newFakeChannel()
	m := newComments(t, ch, false)

	_, err := m.AddComment(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, ch.sent(protocol.EventAddComment))
}

func TestCommentManager_ReplyReconciles(t *testing.T) {
	ch := newFakeChannel()
	m := newComments(t, ch, false)
	m.Load([]models.Comment{{ID: "c-1", DocumentID: "doc-1", AuthorID: "bob", Content: "question"}})

	ch.setRespond(func(string, any) (protocol.AckData, error) {
		return protocol.AckData{Success: true, Reply: &models.Reply{ID: "r-1", CommentID: "c-1", AuthorID: "alice", Content: "answer"}}, nil
	})

	r, err := m.Reply(context.Background(), "c-1", "answer")
	require.NoError(t, err)
	assert.Equal(t, "r-1", r.ID)

	replies := m.Comments()[0].Replies
	require.Len(t, replies, 1)
	assert.Equal(t, "r-1", replies[0].ID)
	assert.False(t, replies[0].Temporary)

	// a second delivery of the same reply is ignored
	ch.emit(t, protocol.EventCommentReplyAdded, protocol.CommentReplyAdded{DocumentID: "doc-1", CommentID: "c-1", Reply: r})
	assert.Len(t, m.Comments()[0].Replies, 1)
}

func TestCommentManager_FailedReplyStaysLocal(t *testing.T) {
	ch := newFakeChannel()
	m := newComments(t, ch, false)
	m.Load([]models.Comment{{ID: "c-1", DocumentID: "doc-1", AuthorID: "bob"}})
	ch.setState(StateDisconnected)

	r, err := m.Reply(context.Background(), "c-1", "offline answer")
	require.ErrorIs(t, err, ErrDisconnected)
	assert.True(t, r.Temporary)

	replies := m.Comments()[0].Replies
	require.Len(t, replies, 1)
	assert.Equal(t, r.ID, replies[0].ID)

	_, err = m.Reply(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommentManager_ResolvePermissions(t *testing.T) {
	tests := []struct {
		name       string
		author     string
		canResolve bool
		wantErr    error
	}{
		{name: "author", author: "alice"},
		{name: "privileged role", author: "bob", canResolve: true},
		{name: "neither", author: "bob", wantErr: domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newFakeChannel()
			m := newComments(t, ch, tt.canResolve)
			m.Load([]models.Comment{{ID: "c-1", DocumentID: "doc-1", AuthorID: tt.author}})

			err := m.Resolve(context.Background(), "c-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, m.Comments()[0].Resolved)
				assert.Empty(t, ch.sent(protocol.EventResolveComment))
				return
			}
			require.NoError(t, err)
			assert.True(t, m.Comments()[0].Resolved)
			assert.Len(t, ch.sent(protocol.EventResolveComment), 1)

			// resolving again is a silent no-op
			require.NoError(t, m.Resolve(context.Background(), "c-1"))
			assert.Len(t, ch.sent(protocol.EventResolveComment), 1)
		})
	}
}

func TestCommentManager_ResolvedEventIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	m := newComments(t, ch, false)
	m.Load([]models.Comment{{ID: "c-1", DocumentID: "doc-1", AuthorID: "bob"}})

	ev := protocol.CommentResolved{DocumentID: "doc-1", CommentID: "c-1", ResolvedBy: models.UserRef{ID: "bob"}}
	ch.emit(t, protocol.EventCommentResolved, ev)
	first := m.Comments()[0]

	ev.ResolvedBy = models.UserRef{ID: "carol"}
	ch.emit(t, protocol.EventCommentResolved, ev)
	second := m.Comments()[0]

	assert.True(t, second.Resolved)
	require.NotNil(t, second.ResolvedBy)
	assert.Equal(t, "bob", *second.ResolvedBy)
	assert.Equal(t, first.ResolvedAt, second.ResolvedAt)
}

func TestCommentManager_IgnoresOtherDocuments(t *testing.T) {
	ch := newFakeChannel()
	m := newComments(t, ch, false)

	ch.emit(t, protocol.EventNewComment, protocol.NewComment{DocumentID: "doc-2", Comment: models.Comment{ID: "x"}})
	assert.Empty(t, m.Comments())
}

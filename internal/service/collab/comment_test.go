package collab

import (
	"context"
	"errors"
	"strings"
	"testing"

	"collabsync/internal/config"
	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
)

func TestCommentService_CreateAndReply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "owner")
	env.db.grant(doc.ID, "rev", models.RoleReviewer)

	comment, err := env.comments.CreateComment(ctx, models.UserRef{ID: "rev", Name: "Rita"}, &models.CreateCommentRequest{
		DocumentID: doc.ID,
		Content:    "Budget looks high",
	})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if comment.ID == "" || comment.AuthorName != "Rita" || comment.Resolved {
		t.Errorf("comment = %+v", comment)
	}

	reply, err := env.comments.AddReply(ctx, models.UserRef{ID: "owner", Name: "Olga"}, &models.ReplyRequest{
		DocumentID: doc.ID,
		CommentID:  comment.ID,
		Content:    "Agreed, trimming",
	})
	if err != nil {
		t.Fatalf("AddReply() error = %v", err)
	}
	if reply.CommentID != comment.ID {
		t.Errorf("reply.CommentID = %s, want %s", reply.CommentID, comment.ID)
	}

	threads, err := env.comments.ListComments(ctx, "owner", doc.ID)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(threads) != 1 || len(threads[0].Replies) != 1 {
		t.Fatalf("threads = %+v, want one thread with one reply", threads)
	}
}

func TestCommentService_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "owner")
	author := models.UserRef{ID: "owner"}

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "too long", content: strings.Repeat("x", config.MaxCommentLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.comments.CreateComment(ctx, author, &models.CreateCommentRequest{DocumentID: doc.ID, Content: tt.content})
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCommentService_ReplyToUnknownComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "owner")
	other := env.createDocument(t, "owner")

	foreign, err := env.comments.CreateComment(ctx, models.UserRef{ID: "owner"}, &models.CreateCommentRequest{DocumentID: other.ID, Content: "elsewhere"})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	for _, id := range []string{"missing", foreign.ID} {
		_, err := env.comments.AddReply(ctx, models.UserRef{ID: "owner"}, &models.ReplyRequest{DocumentID: doc.ID, CommentID: id, Content: "hi"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("AddReply(%s) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestCommentService_ResolveIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "owner")
	env.db.grant(doc.ID, "viewer", models.RoleViewer)
	env.db.grant(doc.ID, "other-viewer", models.RoleViewer)

	comment, err := env.comments.CreateComment(ctx, models.UserRef{ID: "viewer"}, &models.CreateCommentRequest{DocumentID: doc.ID, Content: "typo"})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	// viewers lack the resolve capability unless they wrote the comment
	if _, _, err := env.comments.ResolveComment(ctx, "other-viewer", doc.ID, comment.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ResolveComment() by other viewer error = %v, want ErrForbidden", err)
	}

	resolved, changed, err := env.comments.ResolveComment(ctx, "viewer", doc.ID, comment.ID)
	if err != nil {
		t.Fatalf("ResolveComment() by author error = %v", err)
	}
	if !changed || !resolved.Resolved || *resolved.ResolvedBy != "viewer" {
		t.Errorf("first resolve = %+v changed=%v", resolved, changed)
	}

	again, changed, err := env.comments.ResolveComment(ctx, "owner", doc.ID, comment.ID)
	if err != nil {
		t.Fatalf("second ResolveComment() error = %v", err)
	}
	if changed {
		t.Error("second resolve reported a change")
	}
	if *again.ResolvedBy != "viewer" {
		t.Errorf("ResolvedBy = %s, want original resolver", *again.ResolvedBy)
	}
}

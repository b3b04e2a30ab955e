package services

import (
	"context"
	"strings"
	"testing"

	"civicpulse-be/apperr"
	"civicpulse-be/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostComment_TooLongCreatesNothing(t *testing.T) {
	f := setupCore(t)
	issue := f.report(t, "reporter")

	_, err := f.core.Comments.PostComment(citizen("neighbor"), issue.ID, strings.Repeat("a", 1001))
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	comments, err := f.core.Comments.ListComments(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.Empty(t, f.notificationsFor(t, "reporter"))
}

func TestPostComment_TrimsAndBounds(t *testing.T) {
	f := setupCore(t)
	issue := f.report(t, "reporter")
	ctx := citizen("neighbor")

	_, err := f.core.Comments.PostComment(ctx, issue.ID, " \n\t ")
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	// exactly the limit once surrounding whitespace is trimmed
	c, err := f.core.Comments.PostComment(ctx, issue.ID, "  "+strings.Repeat("é", 1000)+"  ")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 1000), c.Text)
}

func TestPostComment_SnapshotsStatus(t *testing.T) {
	f := setupCore(t)
	issue := f.report(t, "reporter")
	_, err := f.core.Lifecycle.TransitionStatus(admin("admin"), issue.ID, models.InProgress)
	require.NoError(t, err)

	c, err := f.core.Comments.PostComment(citizen("neighbor"), issue.ID, "Crew on site this morning")
	require.NoError(t, err)
	assert.Equal(t, models.InProgress, c.StatusSnapshot)
	assert.Equal(t, "neighbor", c.AuthorID)
}

func TestPostComment_Errors(t *testing.T) {
	f := setupCore(t)
	issue := f.report(t, "reporter")

	_, err := f.core.Comments.PostComment(context.Background(), issue.ID, "hello")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.core.Comments.PostComment(citizen("neighbor"), "missing", "hello")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEditComment_AuthorOnly(t *testing.T) {
	f := setupCore(t)
	issue := f.report(t, "reporter")
	c, err := f.core.Comments.PostComment(citizen("neighbor"), issue.ID, "Light flickers")
	require.NoError(t, err)

	_, err = f.core.Comments.EditComment(citizen("reporter"), c.ID, "hijacked")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.core.Comments.EditComment(citizen("neighbor"), c.ID, strings.Repeat("b", 1001))
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	edited, err := f.core.Comments.EditComment(citizen("neighbor"), c.ID, "Light is fully out now")
	require.NoError(t, err)
	assert.Equal(t, "Light is fully out now", edited.Text)
	require.NotNil(t, edited.EditedAt)

	_, err = f.core.Comments.EditComment(citizen("neighbor"), "missing", "x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteComment_AuthorOnly(t *testing.T) {
	f := setupCore(t)
	issue := f.report(t, "reporter")
	c, err := f.core.Comments.PostComment(citizen("neighbor"), issue.ID, "Duplicate of another report")
	require.NoError(t, err)

	assert.ErrorIs(t, f.core.Comments.DeleteComment(admin("admin"), c.ID), apperr.ErrForbidden)
	require.NoError(t, f.core.Comments.DeleteComment(citizen("neighbor"), c.ID))
	assert.ErrorIs(t, f.core.Comments.DeleteComment(citizen("neighbor"), c.ID), apperr.ErrNotFound)
}

func TestListComments_NewestFirst(t *testing.T) {
	f := setupCore(t)
	issue := f.report(t, "reporter")
	for _, text := range []string{"first", "second", "third"} {
		_, err := f.core.Comments.PostComment(citizen("neighbor"), issue.ID, text)
		require.NoError(t, err)
	}

	comments, err := f.core.Comments.ListComments(context.Background(), issue.ID)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "third", comments[0].Text)
	assert.Equal(t, "first", comments[2].Text)
}

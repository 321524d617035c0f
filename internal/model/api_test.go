package model_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavle/tavle/internal/model"
)

// ptr is a convenience helper for pointer literals in test cases.
func ptr[T any](v T) *T { return &v }

// ---- CreateCardRequest ----------------------------------------------------

func TestCreateCardRequest_TitleBoundaries(t *testing.T) {
	base := model.CreateCardRequest{BoardID: uuid.New(), ListID: uuid.New()}

	cases := []struct {
		name  string
		title string
		valid bool
	}{
		{"empty rejected", "", false},
		{"one char accepted", "x", true},
		{"at limit accepted", strings.Repeat("x", model.MaxTitleLen), true},
		{"over limit rejected", strings.Repeat("x", model.MaxTitleLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			req.Title = tc.title
			fe := req.Validate()
			if tc.valid {
				assert.Empty(t, fe)
			} else {
				require.NotEmpty(t, fe)
				assert.Contains(t, fe, "title")
			}
		})
	}
}

func TestCreateCardRequest_MissingIDs(t *testing.T) {
	fe := model.CreateCardRequest{Title: "ok"}.Validate()
	require.NotEmpty(t, fe)
	assert.Contains(t, fe, "boardId")
	assert.Contains(t, fe, "listId")
}

// ---- UpdateCardRequest ----------------------------------------------------

func TestUpdateCardRequest_DescriptionBoundaries(t *testing.T) {
	base := model.UpdateCardRequest{ID: uuid.New(), BoardID: uuid.New()}

	cases := []struct {
		name  string
		desc  string
		valid bool
	}{
		{"below minimum rejected", "xx", false},
		{"at minimum accepted", "xxx", true},
		{"at maximum accepted", strings.Repeat("x", model.MaxDescriptionLen), true},
		{"over maximum rejected", strings.Repeat("x", model.MaxDescriptionLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			req.Description = ptr(tc.desc)
			fe := req.Validate()
			if tc.valid {
				assert.Empty(t, fe)
			} else {
				require.NotEmpty(t, fe)
				assert.Contains(t, fe, "description")
			}
		})
	}
}

func TestUpdateCardRequest_UnknownPriority(t *testing.T) {
	req := model.UpdateCardRequest{
		ID:       uuid.New(),
		BoardID:  uuid.New(),
		Priority: ptr(model.Priority("WHENEVER")),
	}
	fe := req.Validate()
	require.NotEmpty(t, fe)
	assert.Contains(t, fe, "priority")
}

func TestUpdateCardRequest_NilFieldsAreValid(t *testing.T) {
	fe := model.UpdateCardRequest{ID: uuid.New(), BoardID: uuid.New()}.Validate()
	assert.Empty(t, fe)
}

// ---- AddReactionRequest ---------------------------------------------------

func TestAddReactionRequest_EmojiValidation(t *testing.T) {
	commentID := uuid.New()

	cases := []struct {
		name  string
		emoji string
		valid bool
	}{
		{"real emoji", "👍", true},
		{"multi-codepoint emoji", "👍🏽", true},
		{"ascii word rejected", "thumbsup", false},
		{"empty rejected", "", false},
		{"digits rejected", "100", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fe := model.AddReactionRequest{CommentID: commentID, Emoji: tc.emoji}.Validate()
			if tc.valid {
				assert.Empty(t, fe)
			} else {
				require.NotEmpty(t, fe)
				assert.Contains(t, fe, "emoji")
			}
		})
	}
}

// ---- Reorder requests -----------------------------------------------------

func TestReorderCardsRequest_RejectsIncompleteItems(t *testing.T) {
	req := model.ReorderCardsRequest{
		BoardID: uuid.New(),
		Items: []model.CardOrderItem{
			{ID: uuid.New(), Order: "m", ListID: uuid.New()},
			{ID: uuid.New(), Order: ""}, // missing order and list
		},
	}
	fe := req.Validate()
	require.NotEmpty(t, fe)
	assert.Contains(t, fe, "items")
}

func TestReorderCardsRequest_EmptyItems(t *testing.T) {
	fe := model.ReorderCardsRequest{BoardID: uuid.New()}.Validate()
	require.NotEmpty(t, fe)
	assert.Contains(t, fe, "items")
}

// ---- Label / webhook requests --------------------------------------------

func TestCreateLabelRequest_ColorFormat(t *testing.T) {
	assert.Empty(t, model.CreateLabelRequest{Name: "bug", Color: "#1e90ff"}.Validate())
	assert.Contains(t, model.CreateLabelRequest{Name: "bug", Color: "blue"}.Validate(), "color")
	assert.Contains(t, model.CreateLabelRequest{Name: "", Color: "#1e90ff"}.Validate(), "name")
}

func TestCreateWebhookRequest_Validation(t *testing.T) {
	ok := model.CreateWebhookRequest{
		URL:    "https://hooks.example.com/tavle",
		Secret: strings.Repeat("s", 32),
		Events: []string{"card.created"},
	}
	assert.Empty(t, ok.Validate())

	fe := model.CreateWebhookRequest{Secret: "short"}.Validate()
	require.NotEmpty(t, fe)
	assert.Contains(t, fe, "url")
	assert.Contains(t, fe, "secret")
	assert.Contains(t, fe, "events")
}

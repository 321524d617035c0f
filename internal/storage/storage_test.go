package storage_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavle/tavle/internal/lexorank"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
	"github.com/tavle/tavle/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	db, err := tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		tc.Terminate()
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	db.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

// seedOrg provisions a fresh org with one member and returns both.
func seedOrg(t *testing.T, plan model.Plan) (model.Organization, model.User) {
	t.Helper()
	ctx := context.Background()

	org, err := testDB.CreateOrganization(ctx, model.Organization{
		ID:   "org-" + uuid.NewString()[:8],
		Name: "Test Org",
		Slug: "test-" + uuid.NewString()[:8],
		Plan: plan,
	})
	require.NoError(t, err)

	user, err := testDB.CreateUser(ctx, model.User{
		ExternalIdentityID: "ext-" + uuid.NewString(),
		Email:              "user@example.com",
		DisplayName:        "Test User",
	})
	require.NoError(t, err)

	_, err = testDB.CreateMembership(ctx, model.Membership{
		UserID:   user.ID,
		OrgID:    org.ID,
		Role:     model.RoleMember,
		IsActive: true,
	})
	require.NoError(t, err)

	return org, user
}

// seedBoard creates a board with one list for the org.
func seedBoard(t *testing.T, orgID string) (model.Board, model.List) {
	t.Helper()
	ctx := context.Background()

	board, err := testDB.CreateBoard(ctx, orgID, "Board", nil)
	require.NoError(t, err)
	list, err := testDB.CreateList(ctx, orgID, board.ID, "Todo")
	require.NoError(t, err)
	return board, list
}

func TestTenantScoping(t *testing.T) {
	ctx := context.Background()
	orgA, _ := seedOrg(t, model.PlanPro)
	orgB, _ := seedOrg(t, model.PlanPro)
	board, list := seedBoard(t, orgA.ID)

	// Another org cannot see the board, by id or by list.
	_, err := testDB.GetBoard(ctx, orgB.ID, board.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	card, err := testDB.CreateCard(ctx, orgA.ID, list.ID, "Card")
	require.NoError(t, err)

	_, err = testDB.GetCard(ctx, orgB.ID, card.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Cross-org writes are not found either, and write nothing.
	title := "hijacked"
	_, _, err = testDB.UpdateCard(ctx, orgB.ID, card.ID, storage.CardPatch{Title: &title})
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := testDB.GetCard(ctx, orgA.ID, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "Card", got.Title)

	_, err = testDB.DeleteBoard(ctx, orgB.ID, board.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBoardPlanLimit(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanFree)

	limits := model.LimitsFor(model.PlanFree)
	for i := 0; i < limits.Boards; i++ {
		_, err := testDB.CreateBoard(ctx, org.ID, fmt.Sprintf("Board %d", i), nil)
		require.NoError(t, err)
	}

	_, err := testDB.CreateBoard(ctx, org.ID, "One too many", nil)
	require.ErrorIs(t, err, storage.ErrLimitExceeded)

	// Upgrading lifts the cap.
	require.NoError(t, testDB.SetOrganizationPlan(ctx, org.ID, model.PlanPro))
	_, err = testDB.CreateBoard(ctx, org.ID, "Now it fits", nil)
	require.NoError(t, err)
}

func TestCardTailAppendOrdering(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)
	_, list := seedBoard(t, org.ID)

	var created []model.Card
	for _, title := range []string{"first", "second", "third"} {
		c, err := testDB.CreateCard(ctx, org.ID, list.ID, title)
		require.NoError(t, err)
		created = append(created, c)
	}

	cards, err := testDB.ListCards(ctx, org.ID, list.ID)
	require.NoError(t, err)
	require.Len(t, cards, 3)

	for i, c := range cards {
		assert.Equal(t, created[i].ID, c.ID)
		if i > 0 {
			assert.Less(t, cards[i-1].Order, c.Order, "rank strings must be strictly increasing")
		}
	}
}

func TestReorderCardsAcrossLists(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)
	board, todo := seedBoard(t, org.ID)
	done, err := testDB.CreateList(ctx, org.ID, board.ID, "Done")
	require.NoError(t, err)

	card, err := testDB.CreateCard(ctx, org.ID, todo.ID, "Movable")
	require.NoError(t, err)

	moves, err := testDB.ReorderCards(ctx, org.ID, board.ID, []model.CardOrderItem{
		{ID: card.ID, Order: card.Order, ListID: done.ID},
	})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, todo.ID, moves[0].FromListID)
	assert.Equal(t, done.ID, moves[0].ToListID)
	assert.Equal(t, "Movable", moves[0].Title)

	// A reorder that does not change lists reports no moves.
	moves, err = testDB.ReorderCards(ctx, org.ID, board.ID, []model.CardOrderItem{
		{ID: card.ID, Order: card.Order + "x", ListID: done.ID},
	})
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestReorderCardsRejectsForeignItems(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)
	board, list := seedBoard(t, org.ID)
	otherBoard, otherList := seedBoard(t, org.ID)

	card, err := testDB.CreateCard(ctx, org.ID, list.ID, "Stays put")
	require.NoError(t, err)
	foreign, err := testDB.CreateCard(ctx, org.ID, otherList.ID, "Foreign")
	require.NoError(t, err)
	_ = otherBoard

	// One foreign card poisons the whole batch; nothing is written.
	_, err = testDB.ReorderCards(ctx, org.ID, board.ID, []model.CardOrderItem{
		{ID: card.ID, Order: "zzz", ListID: list.ID},
		{ID: foreign.ID, Order: "zzz", ListID: list.ID},
	})
	require.ErrorIs(t, err, storage.ErrForeignItems)

	unchanged, err := testDB.GetCard(ctx, org.ID, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card.Order, unchanged.Order)

	// A target list outside the board is foreign too.
	_, err = testDB.ReorderCards(ctx, org.ID, board.ID, []model.CardOrderItem{
		{ID: card.ID, Order: "zzz", ListID: otherList.ID},
	})
	require.ErrorIs(t, err, storage.ErrForeignItems)
}

func TestCommentAuthorship(t *testing.T) {
	ctx := context.Background()
	org, author := seedOrg(t, model.PlanPro)
	_, list := seedBoard(t, org.ID)
	card, err := testDB.CreateCard(ctx, org.ID, list.ID, "Card")
	require.NoError(t, err)

	other, err := testDB.CreateUser(ctx, model.User{
		ExternalIdentityID: "ext-" + uuid.NewString(),
		Email:              "other@example.com",
		DisplayName:        "Other",
	})
	require.NoError(t, err)

	comment, err := testDB.CreateComment(ctx, org.ID, author.ID, card.ID, "mine", nil, false)
	require.NoError(t, err)

	// Only the author can edit; anyone else gets the not-found answer.
	_, err = testDB.UpdateComment(ctx, org.ID, other.ID, comment.ID, "stolen")
	require.ErrorIs(t, err, storage.ErrNotFound)

	updated, err := testDB.UpdateComment(ctx, org.ID, author.ID, comment.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Text)

	// authorOnly delete by a non-author fails; an unrestricted delete works.
	_, err = testDB.DeleteComment(ctx, org.ID, other.ID, comment.ID, true)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = testDB.DeleteComment(ctx, org.ID, other.ID, comment.ID, false)
	require.NoError(t, err)
}

func TestDraftCommentVisibility(t *testing.T) {
	ctx := context.Background()
	org, author := seedOrg(t, model.PlanPro)
	_, list := seedBoard(t, org.ID)
	card, err := testDB.CreateCard(ctx, org.ID, list.ID, "Card")
	require.NoError(t, err)

	_, err = testDB.CreateComment(ctx, org.ID, author.ID, card.ID, "draft", nil, true)
	require.NoError(t, err)
	_, err = testDB.CreateComment(ctx, org.ID, author.ID, card.ID, "published", nil, false)
	require.NoError(t, err)

	other, err := testDB.CreateUser(ctx, model.User{
		ExternalIdentityID: "ext-" + uuid.NewString(),
		Email:              "reader@example.com",
		DisplayName:        "Reader",
	})
	require.NoError(t, err)

	// The author sees both; everyone else sees only published comments.
	comments, err := testDB.ListComments(ctx, org.ID, author.ID, card.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)

	comments, err = testDB.ListComments(ctx, org.ID, other.ID, card.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "published", comments[0].Text)
}

func TestReactionUniqueness(t *testing.T) {
	ctx := context.Background()
	org, user := seedOrg(t, model.PlanPro)
	_, list := seedBoard(t, org.ID)
	card, err := testDB.CreateCard(ctx, org.ID, list.ID, "Card")
	require.NoError(t, err)
	comment, err := testDB.CreateComment(ctx, org.ID, user.ID, card.ID, "hi", nil, false)
	require.NoError(t, err)

	_, err = testDB.AddReaction(ctx, org.ID, user.ID, comment.ID, "👍")
	require.NoError(t, err)

	_, err = testDB.AddReaction(ctx, org.ID, user.ID, comment.ID, "👍")
	require.ErrorIs(t, err, storage.ErrConflict)

	// A different emoji from the same user is a new reaction.
	_, err = testDB.AddReaction(ctx, org.ID, user.ID, comment.ID, "🎉")
	require.NoError(t, err)

	require.NoError(t, testDB.RemoveReaction(ctx, org.ID, user.ID, comment.ID, "👍"))

	reactions, err := testDB.ListReactions(ctx, org.ID, comment.ID)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, "🎉", reactions[0].Emoji)
}

func TestChecklistCompletion(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)
	_, list := seedBoard(t, org.ID)
	card, err := testDB.CreateCard(ctx, org.ID, list.ID, "Card")
	require.NoError(t, err)

	checklist, err := testDB.CreateChecklist(ctx, org.ID, card.ID, "Release steps")
	require.NoError(t, err)

	one, err := testDB.AddChecklistItem(ctx, org.ID, checklist.ID, "tag")
	require.NoError(t, err)
	two, err := testDB.AddChecklistItem(ctx, org.ID, checklist.ID, "ship")
	require.NoError(t, err)

	_, completed, err := testDB.SetChecklistItemComplete(ctx, org.ID, one.ID, true)
	require.NoError(t, err)
	assert.False(t, completed, "one open item remains")

	_, completed, err = testDB.SetChecklistItemComplete(ctx, org.ID, two.ID, true)
	require.NoError(t, err)
	assert.True(t, completed, "last item completes the checklist")

	// Re-completing an already complete item does not re-trigger.
	_, completed, err = testDB.SetChecklistItemComplete(ctx, org.ID, two.ID, true)
	require.NoError(t, err)
	assert.False(t, completed)
}

func TestLabelLifecycle(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)
	_, list := seedBoard(t, org.ID)
	card, err := testDB.CreateCard(ctx, org.ID, list.ID, "Card")
	require.NoError(t, err)

	label, err := testDB.CreateLabel(ctx, org.ID, "bug", "#ff0000")
	require.NoError(t, err)

	_, err = testDB.CreateLabel(ctx, org.ID, "bug", "#00ff00")
	require.ErrorIs(t, err, storage.ErrConflict, "label names are unique per org")

	_, err = testDB.AssignLabel(ctx, org.ID, card.ID, label.ID)
	require.NoError(t, err)

	labels, err := testDB.ListCardLabels(ctx, org.ID, card.ID)
	require.NoError(t, err)
	require.Len(t, labels, 1)

	// Deleting the label detaches it everywhere.
	require.NoError(t, testDB.DeleteLabel(ctx, org.ID, label.ID))
	labels, err = testDB.ListCardLabels(ctx, org.ID, card.ID)
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestWebhookSecretPreservedOnUpdate(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)

	hook, err := testDB.CreateWebhook(ctx, model.Webhook{
		OrgID:     org.ID,
		URL:       "https://example.com/hook",
		Secret:    "original-secret",
		Events:    []string{"card.created"},
		IsEnabled: true,
	})
	require.NoError(t, err)

	// Empty secret on update means "keep the stored one".
	hook.URL = "https://example.com/hook2"
	hook.Secret = ""
	updated, err := testDB.UpdateWebhook(ctx, hook)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook2", updated.URL)
	assert.Equal(t, "original-secret", updated.Secret)

	// A non-empty secret rotates it.
	hook.Secret = "rotated"
	updated, err = testDB.UpdateWebhook(ctx, hook)
	require.NoError(t, err)
	assert.Equal(t, "rotated", updated.Secret)
}

func TestWebhookEventFilter(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)

	_, err := testDB.CreateWebhook(ctx, model.Webhook{
		OrgID:     org.ID,
		URL:       "https://example.com/created",
		Secret:    "s1",
		Events:    []string{"card.created"},
		IsEnabled: true,
	})
	require.NoError(t, err)

	disabled, err := testDB.CreateWebhook(ctx, model.Webhook{
		OrgID:     org.ID,
		URL:       "https://example.com/disabled",
		Secret:    "s2",
		Events:    []string{"card.created"},
		IsEnabled: true,
	})
	require.NoError(t, err)
	disabled.IsEnabled = false
	_, err = testDB.UpdateWebhook(ctx, disabled)
	require.NoError(t, err)

	hooks, err := testDB.ListEnabledWebhooksForEvent(ctx, org.ID, "card.created")
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, "https://example.com/created", hooks[0].URL)

	hooks, err = testDB.ListEnabledWebhooksForEvent(ctx, org.ID, "card.deleted")
	require.NoError(t, err)
	assert.Empty(t, hooks)
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	org, user := seedOrg(t, model.PlanPro)
	board, _ := seedBoard(t, org.ID)

	err := testDB.InsertAuditLog(ctx, model.AuditLog{
		OrgID:       org.ID,
		UserID:      user.ID,
		EntityType:  "board",
		EntityID:    board.ID.String(),
		EntityTitle: board.Title,
		Action:      model.AuditCreate,
	})
	require.NoError(t, err)

	entries, err := testDB.ListAuditLogs(ctx, org.ID, "board", board.ID.String(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.AuditCreate, entries[0].Action)
	assert.Equal(t, user.ID, entries[0].UserID)

	// Other orgs never see the trail.
	other, _ := seedOrg(t, model.PlanPro)
	entries, err = testDB.ListAuditLogs(ctx, other.ID, "", "", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSoftDeletedOrgHidesEverything(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)
	board, list := seedBoard(t, org.ID)
	card, err := testDB.CreateCard(ctx, org.ID, list.ID, "Card")
	require.NoError(t, err)

	require.NoError(t, testDB.SoftDeleteOrganization(ctx, org.ID))

	_, err = testDB.GetBoard(ctx, org.ID, board.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = testDB.GetCard(ctx, org.ID, card.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = testDB.GetOrganization(ctx, org.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCardsDueBetween(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)
	_, list := seedBoard(t, org.ID)

	card, err := testDB.CreateCard(ctx, org.ID, list.ID, "Due soon")
	require.NoError(t, err)

	due := time.Now().UTC().Add(6 * time.Hour)
	_, _, err = testDB.UpdateCard(ctx, org.ID, card.ID, storage.CardPatch{DueDate: &due})
	require.NoError(t, err)

	found, err := testDB.CardsDueBetween(ctx, time.Now().UTC(), time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)

	var hit bool
	for _, dc := range found {
		if dc.Card.ID == card.ID {
			hit = true
			assert.Equal(t, org.ID, dc.OrgID)
		}
	}
	assert.True(t, hit, "card with a due date in the window must be returned")
}

func TestMembershipAdministration(t *testing.T) {
	ctx := context.Background()
	org, user := seedOrg(t, model.PlanPro)

	require.NoError(t, testDB.SetMembershipRole(ctx, user.ID, org.ID, model.RoleAdmin))
	m, err := testDB.GetMembership(ctx, user.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, m.Role)

	require.NoError(t, testDB.SetMembershipActive(ctx, user.ID, org.ID, false))
	m, err = testDB.GetMembership(ctx, user.ID, org.ID)
	require.NoError(t, err)
	assert.False(t, m.IsActive)

	ok, err := testDB.UserIsMember(ctx, org.ID, user.ID)
	require.NoError(t, err)
	assert.False(t, ok, "deactivated members do not count")
}

func TestReorderCardsRebalancesOverflowedRanks(t *testing.T) {
	ctx := context.Background()
	org, _ := seedOrg(t, model.PlanPro)
	board, list := seedBoard(t, org.ID)

	first, err := testDB.CreateCard(ctx, org.ID, list.ID, "first")
	require.NoError(t, err)
	second, err := testDB.CreateCard(ctx, org.ID, list.ID, "second")
	require.NoError(t, err)

	// Drop a card onto a rank at the length ceiling, the state a list
	// reaches once midpoint insertions have run out of room.
	exhausted := strings.Repeat("z", lexorank.MaxLength)
	_, err = testDB.ReorderCards(ctx, org.ID, board.ID, []model.CardOrderItem{
		{ID: first.ID, Order: exhausted, ListID: list.ID},
	})
	require.NoError(t, err)

	cards, err := testDB.ListCards(ctx, org.ID, list.ID)
	require.NoError(t, err)
	require.Len(t, cards, 2)

	// The list came back with fresh short ranks, requested order intact:
	// second now sorts before first.
	assert.Equal(t, second.ID, cards[0].ID)
	assert.Equal(t, first.ID, cards[1].ID)
	for _, c := range cards {
		assert.Less(t, len(c.Order), lexorank.MaxLength)
	}
}

package messaging

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusnet/backend/internal/models"
	"github.com/campusnet/backend/internal/moderation"
	"github.com/campusnet/backend/internal/realtime"
	"github.com/campusnet/backend/internal/repositories"
)

type blockSet map[[2]string]bool

func (b blockSet) IsBlocked(_ context.Context, x, y string) (bool, error) {
	return b[[2]string{x, y}] || b[[2]string{y, x}], nil
}

type fixture struct {
	svc   Service
	hub   *realtime.Hub
	store *repositories.MemoryStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		hub:   realtime.NewHub(16),
		store: repositories.NewMemoryStore(),
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(f.hub.Close)
	f.svc = Service{
		Store:     f.store,
		Blocks:    blockSet{},
		Filter:    moderation.MustFilter(moderation.DefaultTerms),
		Publisher: f.hub,
		NowFunc:   func() time.Time { return f.now },
	}
	return f
}

func receive(t *testing.T, events <-chan realtime.Event) realtime.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return realtime.Event{}
}

func TestGetOrCreateConversationIsSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ab, err := f.svc.GetOrCreateConversation(ctx, "zoe", "adam")
	require.NoError(t, err)
	ba, err := f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)

	assert.Equal(t, "adam_zoe", ab.ID)
	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, []string{"adam", "zoe"}, ba.Participants)
	assert.Equal(t, ab.CreatedAt, ba.CreatedAt)
}

func TestGetOrCreateConversationValidation(t *testing.T) {
	f := newFixture(t)
	f.svc.Blocks = blockSet{{"adam", "zoe"}: true}
	ctx := context.Background()

	_, err := f.svc.GetOrCreateConversation(ctx, "adam", "adam")
	assert.ErrorIs(t, err, ErrSelfConversation)
	_, err = f.svc.GetOrCreateConversation(ctx, "", "adam")
	assert.ErrorIs(t, err, ErrMissingUser)
	_, err = f.svc.GetOrCreateConversation(ctx, "zoe", "adam")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestSendMessageMasksAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)
	events, cancel := f.hub.Subscribe(realtime.ConversationTopic(conv.ID))
	defer cancel()

	msg, err := f.svc.SendMessage(ctx, "adam", conv.ID, SendInput{Content: "this is a fuck test"})
	require.NoError(t, err)
	assert.Equal(t, "this is a **** test", msg.Content)
	assert.Equal(t, models.MessageTypeText, msg.Type)

	ev := receive(t, events)
	assert.Equal(t, realtime.EventMessage, ev.Type)
	assert.Equal(t, msg, ev.Payload)

	stored, err := f.store.FindConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, msg.Preview(), *stored.LastMessage)
	assert.Equal(t, msg.CreatedAt, stored.UpdatedAt)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)

	cases := []struct {
		name   string
		sender string
		convID string
		in     SendInput
		want   error
	}{
		{"empty", "adam", conv.ID, SendInput{Content: "   "}, ErrEmptyMessage},
		{"too long", "adam", conv.ID, SendInput{Content: strings.Repeat("a", MaxContentLength+1)}, ErrMessageTooLong},
		{"bad type", "adam", conv.ID, SendInput{Content: "hi", Type: "video"}, ErrInvalidType},
		{"outsider", "eve", conv.ID, SendInput{Content: "hi"}, ErrNotParticipant},
		{"missing", "adam", "adam_nobody", SendInput{Content: "hi"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, tc.sender, tc.convID, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	msg, err := f.svc.SendMessage(ctx, "zoe", conv.ID, SendInput{Type: models.MessageTypeImage, Attachments: []string{" https://cdn.example/a.png "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example/a.png"}, msg.Attachments)
}

func TestSendMessageRejectsBlockedPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)

	f.svc.Blocks = blockSet{{"zoe", "adam"}: true}
	_, err = f.svc.SendMessage(ctx, "adam", conv.ID, SendInput{Content: "hello?"})
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestTypingExpiresAtReadTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)

	events, cancel := f.hub.Subscribe(realtime.ConversationTopic(conv.ID))
	defer cancel()

	require.NoError(t, f.svc.SetTyping(ctx, "zoe", conv.ID, true))
	ev := receive(t, events)
	assert.Equal(t, realtime.EventTyping, ev.Type)
	assert.Equal(t, TypingPayload{ConversationID: conv.ID, UserID: "zoe", Typing: true}, ev.Payload)

	views, err := f.svc.ListConversations(ctx, "adam")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, []string{"zoe"}, views[0].TypingUsers)

	f.now = f.now.Add(DefaultTypingTTL)
	views, err = f.svc.ListConversations(ctx, "adam")
	require.NoError(t, err)
	assert.Empty(t, views[0].TypingUsers)

	require.NoError(t, f.svc.SetTyping(ctx, "adam", conv.ID, true))
	require.NoError(t, f.svc.SetTyping(ctx, "adam", conv.ID, false))
	stored, err := f.store.FindConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, f.svc.TypingUsers(stored, f.now))

	assert.ErrorIs(t, f.svc.SetTyping(ctx, "eve", conv.ID, true), ErrNotParticipant)
}

func TestListMessagesAndMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)

	var sent []models.Message
	for i, sender := range []string{"adam", "zoe", "adam"} {
		f.now = f.now.Add(time.Duration(i+1) * time.Second)
		msg, err := f.svc.SendMessage(ctx, sender, conv.ID, SendInput{Content: "msg"})
		require.NoError(t, err)
		sent = append(sent, msg)
	}

	page, err := f.svc.ListMessages(ctx, "zoe", conv.ID, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, sent[2].ID, page.Messages[0].ID)
	assert.Equal(t, sent[1].ID, page.Messages[1].ID)
	require.NotEmpty(t, page.NextCursor)

	older, err := f.svc.ListMessages(ctx, "zoe", conv.ID, page.NextCursor, 0)
	require.NoError(t, err)
	require.Len(t, older.Messages, 1)
	assert.Equal(t, sent[0].ID, older.Messages[0].ID)
	assert.Empty(t, older.NextCursor)

	_, err = f.svc.ListMessages(ctx, "eve", conv.ID, "", 10)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.ListMessages(ctx, "zoe", conv.ID, "not a cursor", 10)
	assert.ErrorIs(t, err, ErrInvalidCursor)

	n, err := f.svc.MarkRead(ctx, "zoe", conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = f.svc.MarkRead(ctx, "zoe", conv.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListConversationsOrderedByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	second, err := f.svc.GetOrCreateConversation(ctx, "adam", "bea")
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = f.svc.SendMessage(ctx, "zoe", first.ID, SendInput{Content: "ping"})
	require.NoError(t, err)

	views, err := f.svc.ListConversations(ctx, "adam")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, first.ID, views[0].ID)
	assert.Equal(t, second.ID, views[1].ID)
}

func TestCanSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)

	ok, err := f.svc.CanSubscribe(ctx, "zoe", conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.CanSubscribe(ctx, "eve", conv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.CanSubscribe(ctx, "eve", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListMessagesSharingTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)

	want := map[string]bool{}
	for i := 0; i < 3; i++ {
		msg, err := f.svc.SendMessage(ctx, "adam", conv.ID, SendInput{Content: "same instant"})
		require.NoError(t, err)
		want[msg.ID] = true
	}

	seen := map[string]bool{}
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 3, "paging did not terminate")
		page, err := f.svc.ListMessages(ctx, "zoe", conv.ID, cursor, 2)
		require.NoError(t, err)
		for _, msg := range page.Messages {
			assert.False(t, seen[msg.ID], "message %s returned twice", msg.ID)
			seen[msg.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, want, seen)
}

func TestMessageCursorRoundTrip(t *testing.T) {
	want := repositories.MessageCursor{CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC), ID: "msg|with|pipes"}
	got, err := DecodeCursor(EncodeCursor(want))
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	empty, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestGetOrCreateConversationRequiresKnownUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Users = f.store
	require.NoError(t, f.store.Create(ctx, models.User{ID: "adam", Email: "adam@campus.test"}))

	_, err := f.svc.GetOrCreateConversation(ctx, "adam", "ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = f.store.FindConversation(ctx, models.ConversationID("adam", "ghost"))
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	require.NoError(t, f.store.Create(ctx, models.User{ID: "zoe", Email: "zoe@campus.test"}))
	_, err = f.svc.GetOrCreateConversation(ctx, "adam", "zoe")
	require.NoError(t, err)
}

func TestGetOrCreateConversationRejectsReservedCharacters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, other := range []string{"zoe_x", "zoe.x", "$zoe"} {
		_, err := f.svc.GetOrCreateConversation(ctx, "adam", other)
		assert.ErrorIs(t, err, ErrInvalidUser, other)
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/campusnet/backend/internal/auth"
	"github.com/campusnet/backend/internal/feed"
	"github.com/campusnet/backend/internal/logging"
	"github.com/campusnet/backend/internal/messaging"
	"github.com/campusnet/backend/internal/models"
	"github.com/campusnet/backend/internal/moderation"
	"github.com/campusnet/backend/internal/network"
	"github.com/campusnet/backend/internal/notifications"
	"github.com/campusnet/backend/internal/realtime"
	"github.com/campusnet/backend/internal/repositories"
	"github.com/campusnet/backend/internal/showcase"
)

// inlineNotifier stores notifications synchronously so assertions do not race a worker pool.
type inlineNotifier struct {
	store repositories.NotificationRepository
	hub   realtime.Publisher
}

func (n inlineNotifier) Notify(ctx context.Context, notification models.Notification) error {
	notification.ID = uuid.NewString()
	notification.CreatedAt = time.Now().UTC()
	if err := n.store.CreateNotification(ctx, notification); err != nil {
		return err
	}
	n.hub.Publish(realtime.UserTopic(notification.RecipientID), realtime.Event{Type: realtime.EventNotification, Payload: notification})
	return nil
}

type harness struct {
	t       *testing.T
	handler http.Handler
	store   *repositories.MemoryStore
	hub     *realtime.Hub
	manager *auth.Manager
	tokens  map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repositories.NewMemoryStore()
	hub := realtime.NewHub(16)
	t.Cleanup(hub.Close)
	manager := newTestManager()
	filter := moderation.MustFilter(moderation.DefaultTerms)
	notifier := inlineNotifier{store: store, hub: hub}

	for _, id := range []string{"adam", "alice", "author", "bob", "carol", "dave", "erin", "eve", "fan", "member", "owner", "user", "zoe"} {
		if err := store.Create(context.Background(), models.User{ID: id, Email: id + "@campus.test", DisplayName: id}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}

	networkSvc := network.Service{Store: store, Users: store, Notifier: notifier, DailyLimit: 3}
	deps := Dependencies{
		Users:    store,
		Sessions: manager,
		Tokens:   manager,
		Network:  networkSvc,
		Messaging: messaging.Service{
			Store: store, Users: store, Blocks: networkSvc, Filter: filter, Publisher: hub,
		},
		Feed: feed.Service{
			Store: store, Graph: networkSvc, Moderator: filter, Notifier: notifier, Publisher: hub,
		},
		Showcase: showcase.Service{
			Projects: store, Resources: store, Moderator: filter, Notifier: notifier,
		},
		Notifications: notifications.Service{Store: store, Publisher: hub},
		Moderation:    filter,
		Hub:           hub,
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)

	return &harness{
		t:       t,
		handler: mux,
		store:   store,
		hub:     hub,
		manager: manager,
		tokens:  make(map[string]string),
	}
}

func (h *harness) token(userID string) string {
	h.t.Helper()
	if tok, ok := h.tokens[userID]; ok {
		return tok
	}
	tokens, err := h.manager.Issue(context.Background(), userID)
	if err != nil {
		h.t.Fatalf("issue tokens: %v", err)
	}
	h.tokens[userID] = tokens.AccessToken
	return tokens.AccessToken
}

func (h *harness) do(userID, method, target string, payload any) *httptest.ResponseRecorder {
	h.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(userID))
	}
	ctx := logging.WithLogger(req.Context(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestRoutesRequireAuthentication(t *testing.T) {
	h := newHarness(t)
	for _, target := range []string{"/api/v1/feed", "/api/v1/connections", "/api/v1/conversations", "/api/v1/notifications"} {
		expectStatus(t, h.do("", http.MethodGet, target, nil), http.StatusUnauthorized)
	}
	expectStatus(t, h.do("", http.MethodGet, "/healthz", nil), http.StatusOK)
}

func TestConnectionRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do("alice", http.MethodPost, "/api/v1/connections/requests", sendRequestPayload{RecipientID: "bob", Note: "hi"})
	expectStatus(t, rec, http.StatusCreated)
	created := decode[struct {
		Request models.ConnectionRequest `json:"request"`
	}](t, rec).Request

	expectStatus(t, h.do("bob", http.MethodPost, "/api/v1/connections/requests", sendRequestPayload{RecipientID: "alice"}), http.StatusConflict)
	expectStatus(t, h.do("alice", http.MethodPost, "/api/v1/connections/requests", sendRequestPayload{RecipientID: "alice"}), http.StatusBadRequest)

	rec = h.do("bob", http.MethodGet, "/api/v1/connections/requests", nil)
	expectStatus(t, rec, http.StatusOK)
	incoming := decode[struct {
		Requests []models.ConnectionRequest `json:"requests"`
	}](t, rec).Requests
	if len(incoming) != 1 || incoming[0].ID != created.ID {
		t.Fatalf("unexpected incoming requests %+v", incoming)
	}

	expectStatus(t, h.do("alice", http.MethodPost, "/api/v1/connections/requests/"+created.ID+"/accept", nil), http.StatusForbidden)
	expectStatus(t, h.do("bob", http.MethodPost, "/api/v1/connections/requests/"+created.ID+"/shrug", nil), http.StatusNotFound)
	expectStatus(t, h.do("bob", http.MethodPost, "/api/v1/connections/requests/"+created.ID+"/accept", nil), http.StatusOK)
	expectStatus(t, h.do("bob", http.MethodPost, "/api/v1/connections/requests/"+created.ID+"/ignore", nil), http.StatusConflict)

	rec = h.do("alice", http.MethodGet, "/api/v1/connections/status/bob", nil)
	expectStatus(t, rec, http.StatusOK)
	if status := decode[map[string]string](t, rec)["status"]; status != string(network.StatusConnected) {
		t.Fatalf("expected connected got %q", status)
	}

	rec = h.do("alice", http.MethodGet, "/api/v1/connections", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string][]string](t, rec)["connections"]; len(got) != 1 || got[0] != "bob" {
		t.Fatalf("unexpected connections %v", got)
	}

	rec = h.do("bob", http.MethodGet, "/api/v1/notifications?unread=true", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string][]models.Notification](t, rec)["notifications"]; len(got) != 1 || got[0].Type != models.NotificationConnectionRequest {
		t.Fatalf("unexpected notifications %+v", got)
	}
}

func TestBlockAndDailyLimitRoutes(t *testing.T) {
	h := newHarness(t)

	expectStatus(t, h.do("bob", http.MethodPost, "/api/v1/blocks/alice", nil), http.StatusOK)
	expectStatus(t, h.do("alice", http.MethodPost, "/api/v1/connections/requests", sendRequestPayload{RecipientID: "bob"}), http.StatusForbidden)
	expectStatus(t, h.do("bob", http.MethodPost, "/api/v1/blocks/bob", nil), http.StatusBadRequest)
	expectStatus(t, h.do("bob", http.MethodDelete, "/api/v1/blocks/alice", nil), http.StatusOK)
	expectStatus(t, h.do("bob", http.MethodDelete, "/api/v1/blocks/alice", nil), http.StatusNotFound)
	expectStatus(t, h.do("bob", http.MethodPost, "/api/v1/blocks/ghost", nil), http.StatusNotFound)
	expectStatus(t, h.do("bob", http.MethodDelete, "/api/v1/blocks/al_ice", nil), http.StatusBadRequest)
	expectStatus(t, h.do("alice", http.MethodPost, "/api/v1/connections/requests", sendRequestPayload{RecipientID: "ghost"}), http.StatusNotFound)

	for _, recipient := range []string{"bob", "carol", "dave"} {
		expectStatus(t, h.do("alice", http.MethodPost, "/api/v1/connections/requests", sendRequestPayload{RecipientID: recipient}), http.StatusCreated)
	}
	expectStatus(t, h.do("alice", http.MethodPost, "/api/v1/connections/requests", sendRequestPayload{RecipientID: "erin"}), http.StatusTooManyRequests)
}

func TestConversationRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do("zoe", http.MethodPost, "/api/v1/conversations", startConversationPayload{ParticipantID: "adam"})
	expectStatus(t, rec, http.StatusOK)
	conv := decode[map[string]models.Conversation](t, rec)["conversation"]
	if conv.ID != "adam_zoe" {
		t.Fatalf("unexpected conversation id %q", conv.ID)
	}

	rec = h.do("adam", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", sendMessagePayload{Content: "well shit"})
	expectStatus(t, rec, http.StatusCreated)
	if msg := decode[map[string]models.Message](t, rec)["message"]; msg.Content != "well ****" {
		t.Fatalf("expected masked content got %q", msg.Content)
	}

	expectStatus(t, h.do("adam", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", sendMessagePayload{}), http.StatusBadRequest)
	expectStatus(t, h.do("eve", http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", nil), http.StatusForbidden)
	expectStatus(t, h.do("adam", http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?cursor=yesterday", nil), http.StatusBadRequest)

	rec = h.do("zoe", http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?limit=10", nil)
	expectStatus(t, rec, http.StatusOK)
	if page := decode[messaging.MessagePage](t, rec); len(page.Messages) != 1 || page.NextCursor != "" {
		t.Fatalf("expected one message and no cursor got %+v", page)
	}

	expectStatus(t, h.do("zoe", http.MethodPost, "/api/v1/conversations", startConversationPayload{ParticipantID: "ghost"}), http.StatusNotFound)
	expectStatus(t, h.do("zoe", http.MethodPost, "/api/v1/conversations", startConversationPayload{ParticipantID: "ad_am"}), http.StatusBadRequest)

	expectStatus(t, h.do("zoe", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/typing", typingPayload{Typing: true}), http.StatusNoContent)

	rec = h.do("adam", http.MethodGet, "/api/v1/conversations", nil)
	expectStatus(t, rec, http.StatusOK)
	views := decode[map[string][]messaging.ConversationView](t, rec)["conversations"]
	if len(views) != 1 || len(views[0].TypingUsers) != 1 || views[0].TypingUsers[0] != "zoe" {
		t.Fatalf("unexpected conversations %+v", views)
	}
	if views[0].LastMessage == nil || views[0].LastMessage.Content != "well ****" {
		t.Fatalf("expected last message preview, got %+v", views[0].LastMessage)
	}

	rec = h.do("zoe", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/read", nil)
	expectStatus(t, rec, http.StatusOK)
	if n := decode[map[string]int](t, rec)["updated"]; n != 1 {
		t.Fatalf("expected one message marked read got %d", n)
	}
}

func TestPostRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do("author", http.MethodPost, "/api/v1/posts", createPostPayload{Content: "this is a fuck test"})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	var rejected struct {
		Error string   `json:"error"`
		Words []string `json:"words"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&rejected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rejected.Words) != 1 || rejected.Words[0] != "fuck" {
		t.Fatalf("unexpected rejected words %v", rejected.Words)
	}

	rec = h.do("author", http.MethodPost, "/api/v1/posts", createPostPayload{Content: "hackathon on friday"})
	expectStatus(t, rec, http.StatusCreated)
	post := decode[map[string]models.Post](t, rec)["post"]

	rec = h.do("fan", http.MethodPost, "/api/v1/posts/"+post.ID+"/like", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[feed.LikeResult](t, rec); !got.Liked || got.LikesCount != 1 {
		t.Fatalf("unexpected like result %+v", got)
	}
	rec = h.do("fan", http.MethodPost, "/api/v1/posts/"+post.ID+"/like", nil)
	if got := decode[feed.LikeResult](t, rec); got.Liked || got.LikesCount != 0 {
		t.Fatalf("unexpected unlike result %+v", got)
	}
	expectStatus(t, h.do("fan", http.MethodPost, "/api/v1/posts/missing/like", nil), http.StatusNotFound)

	rec = h.do("author", http.MethodGet, "/api/v1/feed?limit=5", nil)
	expectStatus(t, rec, http.StatusOK)
	if page := decode[feed.Page](t, rec); len(page.Posts) != 1 || page.Posts[0].ID != post.ID {
		t.Fatalf("unexpected feed %+v", page)
	}
	expectStatus(t, h.do("author", http.MethodGet, "/api/v1/feed?cursor=!!", nil), http.StatusBadRequest)
	expectStatus(t, h.do("author", http.MethodGet, "/api/v1/feed?limit=-1", nil), http.StatusBadRequest)

	expectStatus(t, h.do("fan", http.MethodDelete, "/api/v1/posts/"+post.ID, nil), http.StatusForbidden)
	expectStatus(t, h.do("author", http.MethodDelete, "/api/v1/posts/"+post.ID, nil), http.StatusNoContent)
	expectStatus(t, h.do("author", http.MethodGet, "/api/v1/posts/"+post.ID, nil), http.StatusMethodNotAllowed)
}

func TestShowcaseRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do("owner", http.MethodPost, "/api/v1/projects", projectPayload{Title: "Campus Radio", Tags: []string{"audio"}})
	expectStatus(t, rec, http.StatusCreated)
	project := decode[map[string]models.Project](t, rec)["project"]

	expectStatus(t, h.do("owner", http.MethodPost, "/api/v1/projects/"+project.ID+"/join", nil), http.StatusBadRequest)
	expectStatus(t, h.do("member", http.MethodPost, "/api/v1/projects/"+project.ID+"/join", nil), http.StatusCreated)
	expectStatus(t, h.do("member", http.MethodPost, "/api/v1/projects/"+project.ID+"/join", joinPayload{Message: "again"}), http.StatusConflict)

	rec = h.do("owner", http.MethodGet, "/api/v1/notifications", nil)
	expectStatus(t, rec, http.StatusOK)
	items := decode[map[string][]models.Notification](t, rec)["notifications"]
	if len(items) != 1 || items[0].Type != models.NotificationProjectJoinRequest {
		t.Fatalf("unexpected notifications %+v", items)
	}
	expectStatus(t, h.do("member", http.MethodPost, "/api/v1/notifications/"+items[0].ID+"/read", nil), http.StatusNotFound)
	expectStatus(t, h.do("owner", http.MethodPost, "/api/v1/notifications/"+items[0].ID+"/read", nil), http.StatusNoContent)

	rec = h.do("owner", http.MethodGet, "/api/v1/notifications?unread=true", nil)
	if items := decode[map[string][]models.Notification](t, rec)["notifications"]; len(items) != 0 {
		t.Fatalf("expected no unread notifications got %d", len(items))
	}

	rec = h.do("member", http.MethodGet, "/api/v1/projects", nil)
	expectStatus(t, rec, http.StatusOK)
	if projects := decode[map[string][]models.Project](t, rec)["projects"]; len(projects) != 1 {
		t.Fatalf("expected one project got %d", len(projects))
	}
	expectStatus(t, h.do("member", http.MethodDelete, "/api/v1/projects/"+project.ID, nil), http.StatusForbidden)
	expectStatus(t, h.do("owner", http.MethodDelete, "/api/v1/projects/"+project.ID, nil), http.StatusNoContent)

	expectStatus(t, h.do("owner", http.MethodPost, "/api/v1/resources", resourcePayload{Title: "Docs", URL: "docs"}), http.StatusBadRequest)
	rec = h.do("owner", http.MethodPost, "/api/v1/resources", resourcePayload{Title: "Docs", URL: "https://go.dev/doc", Category: "go"})
	expectStatus(t, rec, http.StatusCreated)
	resource := decode[map[string]models.Resource](t, rec)["resource"]

	rec = h.do("member", http.MethodGet, "/api/v1/resources?category=go", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string][]models.Resource](t, rec)["resources"]; len(got) != 1 {
		t.Fatalf("expected one resource got %d", len(got))
	}
	expectStatus(t, h.do("owner", http.MethodDelete, "/api/v1/resources/"+resource.ID, nil), http.StatusNoContent)
}

func TestModerationCheckRoute(t *testing.T) {
	h := newHarness(t)

	rec := h.do("user", http.MethodPost, "/api/v1/moderation/check", checkPayload{Text: "this is a fuck test"})
	expectStatus(t, rec, http.StatusOK)
	got := decode[checkResponse](t, rec)
	if !got.HasProfanity || got.Filtered != "this is a **** test" || len(got.FoundWords) != 1 || got.FoundWords[0] != "fuck" {
		t.Fatalf("unexpected check response %+v", got)
	}

	rec = h.do("user", http.MethodPost, "/api/v1/moderation/check", checkPayload{Text: "a classic example"})
	if got := decode[checkResponse](t, rec); got.HasProfanity || got.Filtered != "a classic example" {
		t.Fatalf("unexpected check response %+v", got)
	}
}

func dialRealtime(t *testing.T, server *httptest.Server, token, topic string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	query := url.Values{"access_token": {token}}
	if topic != "" {
		query.Set("topic", topic)
	}
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/realtime?" + query.Encode()
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

func TestRealtimeRoute(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.handler)
	defer server.Close()

	_, resp, err := dialRealtime(t, server, h.token("alice"), realtime.UserTopic("bob"))
	if !errors.Is(err, websocket.ErrBadHandshake) || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden handshake, got err=%v resp=%v", err, resp)
	}

	_, resp, err = dialRealtime(t, server, h.token("eve"), realtime.ConversationTopic("alice_bob"))
	if !errors.Is(err, websocket.ErrBadHandshake) || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden handshake for outsider, got err=%v", err)
	}

	conn, _, err := dialRealtime(t, server, h.token("alice"), realtime.FeedTopic)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Subscribers(realtime.FeedTopic) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	expectStatus(t, h.do("bob", http.MethodPost, "/api/v1/posts", createPostPayload{Content: "live now"}), http.StatusCreated)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		Type    string      `json:"type"`
		Topic   string      `json:"topic"`
		Payload models.Post `json:"payload"`
	}
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != realtime.EventPost || event.Topic != realtime.FeedTopic || event.Payload.Content != "live now" {
		t.Fatalf("unexpected event %+v", event)
	}
}

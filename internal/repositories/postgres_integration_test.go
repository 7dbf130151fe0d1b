//go:build integration

package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusnet/backend/internal/auth"
	"github.com/campusnet/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "alice@example.com")

	dup := user
	dup.ID = uuid.NewString()
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	found, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if found.Email != user.Email || found.DisplayName != user.DisplayName {
		t.Fatalf("unexpected user %+v", found)
	}

	found.DisplayName = "Alice A."
	found.UpdatedAt = time.Now().UTC()
	if err := repo.Update(ctx, found); err != nil {
		t.Fatalf("update user: %v", err)
	}

	byEmail, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byEmail.DisplayName != "Alice A." {
		t.Fatalf("expected updated display name, got %q", byEmail.DisplayName)
	}

	if _, err := repo.FindByEmail(ctx, "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresConnectionRepository_RequestsQuotaAndBlocks(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	repo := NewPostgresConnectionRepository(testPool)
	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")
	carol := createTestUser(t, users, "carol@example.com")

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	quota := Quota{Day: day, Limit: 1}
	now := time.Now().UTC()

	req := models.ConnectionRequest{ID: uuid.NewString(), RequesterID: alice.ID, RecipientID: bob.ID, Status: models.RequestStatusPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateRequest(ctx, req, quota); err != nil {
		t.Fatalf("create request: %v", err)
	}

	reverse := models.ConnectionRequest{ID: uuid.NewString(), RequesterID: bob.ID, RecipientID: alice.ID, Status: models.RequestStatusPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateRequest(ctx, reverse, Quota{Day: day, Limit: 5}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for reverse request, got %v", err)
	}

	second := models.ConnectionRequest{ID: uuid.NewString(), RequesterID: alice.ID, RecipientID: carol.ID, Status: models.RequestStatusPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateRequest(ctx, second, quota); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if count, err := repo.DailyCount(ctx, alice.ID, day); err != nil || count != 1 {
		t.Fatalf("expected counter rollback to 1, got %d (%v)", count, err)
	}
	if _, err := repo.FindRequest(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rejected request to be absent, got %v", err)
	}

	if err := repo.CreateRequest(ctx, second, Quota{Day: day.AddDate(0, 0, 1), Limit: 1}); err != nil {
		t.Fatalf("create request next day: %v", err)
	}

	incoming, err := repo.ListIncoming(ctx, bob.ID)
	if err != nil || len(incoming) != 1 || incoming[0].ID != req.ID {
		t.Fatalf("unexpected incoming %+v (%v)", incoming, err)
	}

	if err := repo.UpdateRequestStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusAccepted, now); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := repo.UpdateRequestStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusIgnored, now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on stale transition, got %v", err)
	}

	between, err := repo.FindBetween(ctx, alice.ID, bob.ID)
	if err != nil || between.Status != models.RequestStatusAccepted {
		t.Fatalf("unexpected request between users %+v (%v)", between, err)
	}

	accepted, err := repo.ListAccepted(ctx, bob.ID)
	if err != nil || len(accepted) != 1 {
		t.Fatalf("unexpected accepted list %+v (%v)", accepted, err)
	}

	block := models.Block{BlockerID: carol.ID, BlockedID: alice.ID, CreatedAt: now}
	for i := 0; i < 2; i++ {
		if err := repo.CreateBlock(ctx, block); err != nil {
			t.Fatalf("create block: %v", err)
		}
	}
	if blocked, err := repo.BlockExists(ctx, carol.ID, alice.ID); err != nil || !blocked {
		t.Fatalf("expected block to exist (%v)", err)
	}
	relations, err := repo.ListBlockRelations(ctx, alice.ID)
	if err != nil || len(relations) != 1 || relations[0] != carol.ID {
		t.Fatalf("unexpected relations %v (%v)", relations, err)
	}
	if err := repo.DeleteBlock(ctx, carol.ID, alice.ID); err != nil {
		t.Fatalf("delete block: %v", err)
	}
	if err := repo.DeleteBlock(ctx, carol.ID, alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresConnectionRepository_ConcurrentQuota(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	repo := NewPostgresConnectionRepository(testPool)
	sender := createTestUser(t, users, "sender@example.com")

	const attempts = 6
	recipients := make([]models.User, attempts)
	for i := range recipients {
		recipients[i] = createTestUser(t, users, fmt.Sprintf("r%d@example.com", i))
	}

	quota := Quota{Day: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Limit: 3}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, r := range recipients {
		wg.Add(1)
		go func(recipient models.User) {
			defer wg.Done()
			now := time.Now().UTC()
			err := repo.CreateRequest(ctx, models.ConnectionRequest{
				ID: uuid.NewString(), RequesterID: sender.ID, RecipientID: recipient.ID,
				Status: models.RequestStatusPending, CreatedAt: now, UpdatedAt: now,
			}, quota)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(r)
	}
	wg.Wait()

	if accepted != quota.Limit {
		t.Fatalf("expected exactly %d requests to pass the quota, got %d", quota.Limit, accepted)
	}
}

func TestPostgresConversationRepository_MessagesAndTyping(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresConversationRepository(testPool)
	now := time.Now().UTC().Truncate(time.Millisecond)
	id := models.ConversationID("u1", "u2")

	conv, err := repo.UpsertConversation(ctx, models.Conversation{ID: id, Participants: []string{"u1", "u2"}, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("upsert conversation: %v", err)
	}
	if _, err := repo.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}

	for i := 0; i < 3; i++ {
		msg := models.Message{
			ID:             uuid.NewString(),
			ConversationID: id,
			SenderID:       []string{"u1", "u2"}[i%2],
			Content:        fmt.Sprintf("message %d", i),
			Type:           models.MessageTypeText,
			CreatedAt:      now.Add(time.Duration(i+1) * time.Second),
		}
		if err := repo.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append message: %v", err)
		}
	}

	if err := repo.AppendMessage(ctx, models.Message{ID: uuid.NewString(), ConversationID: "missing", SenderID: "u1", Content: "x", Type: models.MessageTypeText, CreatedAt: now}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown conversation, got %v", err)
	}

	stored, err := repo.FindConversation(ctx, id)
	if err != nil {
		t.Fatalf("find conversation: %v", err)
	}
	if stored.LastMessage == nil || stored.LastMessage.Content != "message 2" {
		t.Fatalf("unexpected preview %+v", stored.LastMessage)
	}

	page, err := repo.ListMessages(ctx, id, nil, 2)
	if err != nil || len(page) != 2 || page[0].Content != "message 2" {
		t.Fatalf("unexpected first page %+v (%v)", page, err)
	}
	older, err := repo.ListMessages(ctx, id, &MessageCursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID}, 10)
	if err != nil || len(older) != 1 || older[0].Content != "message 0" {
		t.Fatalf("unexpected older page %+v (%v)", older, err)
	}

	read, err := repo.MarkRead(ctx, id, "u2")
	if err != nil || read != 2 {
		t.Fatalf("expected two messages marked read, got %d (%v)", read, err)
	}

	at := now.Add(10 * time.Second)
	if err := repo.SetTyping(ctx, id, "u1", &at); err != nil {
		t.Fatalf("set typing: %v", err)
	}
	stored, err = repo.FindConversation(ctx, id)
	if err != nil {
		t.Fatalf("find conversation: %v", err)
	}
	if !stored.Typing["u1"].Equal(at) {
		t.Fatalf("unexpected typing map %+v", stored.Typing)
	}
	if err := repo.SetTyping(ctx, id, "u1", nil); err != nil {
		t.Fatalf("clear typing: %v", err)
	}

	list, err := repo.ListConversations(ctx, "u2")
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected conversations %+v (%v)", list, err)
	}
}

func TestPostgresPostRepository_ToggleLikeAndFeed(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	repo := NewPostgresPostRepository(testPool)
	author := createTestUser(t, users, "author@example.com")
	other := createTestUser(t, users, "other@example.com")

	base := time.Now().UTC().Truncate(time.Millisecond)
	var ids []string
	for i := 0; i < 3; i++ {
		post := models.Post{ID: uuid.NewString(), AuthorID: author.ID, Content: fmt.Sprintf("post %d", i), CreatedAt: base.Add(time.Duration(i) * time.Second), UpdatedAt: base}
		if err := repo.CreatePost(ctx, post); err != nil {
			t.Fatalf("create post: %v", err)
		}
		ids = append(ids, post.ID)
	}
	if err := repo.CreatePost(ctx, models.Post{ID: uuid.NewString(), AuthorID: other.ID, Content: "not followed", CreatedAt: base, UpdatedAt: base}); err != nil {
		t.Fatalf("create post: %v", err)
	}

	liked, count, err := repo.ToggleLike(ctx, other.ID, ids[0], base)
	if err != nil || !liked || count != 1 {
		t.Fatalf("unexpected first toggle liked=%v count=%d err=%v", liked, count, err)
	}
	liked, count, err = repo.ToggleLike(ctx, other.ID, ids[0], base)
	if err != nil || liked || count != 0 {
		t.Fatalf("unexpected second toggle liked=%v count=%d err=%v", liked, count, err)
	}
	if has, err := repo.HasLiked(ctx, other.ID, ids[0]); err != nil || has {
		t.Fatalf("expected no like record after double toggle (%v)", err)
	}
	if _, _, err := repo.ToggleLike(ctx, other.ID, "missing", base); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	page, err := repo.ListFeed(ctx, []string{author.ID}, nil, 2)
	if err != nil || len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Fatalf("unexpected first feed page %+v (%v)", page, err)
	}
	rest, err := repo.ListFeed(ctx, []string{author.ID}, &FeedCursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID}, 2)
	if err != nil || len(rest) != 1 || rest[0].ID != ids[0] {
		t.Fatalf("unexpected second feed page %+v (%v)", rest, err)
	}

	if err := repo.DeletePost(ctx, ids[0]); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if _, err := repo.FindPost(ctx, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted post to be gone, got %v", err)
	}
}

func TestPostgresShowcaseRepository_ProjectsResourcesNotifications(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	repo := NewPostgresShowcaseRepository(testPool)
	owner := createTestUser(t, users, "owner@example.com")
	member := createTestUser(t, users, "member@example.com")
	now := time.Now().UTC()

	project := models.Project{ID: uuid.NewString(), OwnerID: owner.ID, Title: "Robot", Tags: []string{"go"}, CreatedAt: now}
	if err := repo.CreateProject(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	join := models.JoinRequest{ID: uuid.NewString(), ProjectID: project.ID, UserID: member.ID, Status: models.JoinStatusPending, CreatedAt: now}
	if err := repo.CreateJoinRequest(ctx, join); err != nil {
		t.Fatalf("create join request: %v", err)
	}
	join.ID = uuid.NewString()
	if err := repo.CreateJoinRequest(ctx, join); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on duplicate join, got %v", err)
	}

	projects, err := repo.ListProjects(ctx, 10)
	if err != nil || len(projects) != 1 || projects[0].Tags[0] != "go" {
		t.Fatalf("unexpected projects %+v (%v)", projects, err)
	}

	resource := models.Resource{ID: uuid.NewString(), Title: "Go Tour", URL: "https://go.dev/tour/", Category: "programming", CreatedBy: owner.ID, CreatedAt: now}
	if err := repo.CreateResource(ctx, resource); err != nil {
		t.Fatalf("create resource: %v", err)
	}
	filtered, err := repo.ListResources(ctx, "databases")
	if err != nil || len(filtered) != 0 {
		t.Fatalf("unexpected filtered resources %+v (%v)", filtered, err)
	}
	all, err := repo.ListResources(ctx, "")
	if err != nil || len(all) != 1 {
		t.Fatalf("unexpected resources %+v (%v)", all, err)
	}

	n := models.Notification{ID: uuid.NewString(), RecipientID: owner.ID, Type: models.NotificationProjectJoinRequest, ActorID: member.ID, SubjectID: project.ID, CreatedAt: now}
	if err := repo.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	if err := repo.MarkNotificationRead(ctx, member.ID, n.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign notification, got %v", err)
	}
	if err := repo.MarkNotificationRead(ctx, owner.ID, n.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, err := repo.ListNotifications(ctx, owner.ID, true, 10)
	if err != nil || len(unread) != 0 {
		t.Fatalf("unexpected unread notifications %+v (%v)", unread, err)
	}

	if _, err := testPool.Exec(ctx, `INSERT INTO moderation_terms (term) VALUES ('zonk'), ('blarg')`); err != nil {
		t.Fatalf("insert terms: %v", err)
	}
	terms, err := repo.ListTerms(ctx)
	if err != nil || len(terms) != 2 || terms[0] != "blarg" {
		t.Fatalf("unexpected terms %v (%v)", terms, err)
	}
}

func TestPostgresSessionStore_SaveFindDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	store := NewPostgresSessionStore(testPool)
	user := createTestUser(t, users, "session@example.com")

	session := auth.Session{RefreshToken: "token-1", UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	found, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if found.UserID != user.ID || !timesClose(found.ExpiresAt, session.ExpiresAt, time.Millisecond) {
		t.Fatalf("unexpected session %+v", found)
	}

	if err := store.Delete(ctx, session.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestPostgresSessionStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	store := NewPostgresSessionStore(testPool)
	user := createTestUser(t, users, "purge@example.com")

	now := time.Now().UTC()
	for token, expires := range map[string]time.Time{"stale": now.Add(-time.Hour), "live": now.Add(time.Hour)} {
		if err := store.Save(ctx, auth.Session{RefreshToken: token, UserID: user.ID, ExpiresAt: expires}); err != nil {
			t.Fatalf("save session %s: %v", token, err)
		}
	}

	removed, err := store.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one purged session, got %d", removed)
	}
	if _, err := store.Find(ctx, "live"); err != nil {
		t.Fatalf("live session should survive: %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func TestPostgresConnectionRepository_ConcurrentOppositeRequests(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	repo := NewPostgresConnectionRepository(testPool)
	quota := Quota{Day: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Limit: 100}

	const rounds = 10
	for i := 0; i < rounds; i++ {
		a := createTestUser(t, users, fmt.Sprintf("a%d@example.com", i))
		b := createTestUser(t, users, fmt.Sprintf("b%d@example.com", i))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
			wg.Add(1)
			go func(j int, requester, recipient string) {
				defer wg.Done()
				now := time.Now().UTC()
				errs[j] = repo.CreateRequest(ctx, models.ConnectionRequest{
					ID: uuid.NewString(), RequesterID: requester, RecipientID: recipient,
					Status: models.RequestStatusPending, CreatedAt: now, UpdatedAt: now,
				}, quota)
			}(j, pair[0], pair[1])
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, ErrConflict):
				t.Fatalf("round %d: expected conflict for the losing direction, got %v", i, err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("round %d: expected exactly one request between the pair, got %d", i, succeeded)
		}

		var stored int
		if err := testPool.QueryRow(ctx, `
            SELECT count(*) FROM connection_requests
            WHERE (requester_id = $1 AND recipient_id = $2) OR (requester_id = $2 AND recipient_id = $1)
        `, a.ID, b.ID).Scan(&stored); err != nil {
			t.Fatalf("count pair: %v", err)
		}
		if stored != 1 {
			t.Fatalf("round %d: expected one stored record, got %d", i, stored)
		}
	}
}

func TestPostgresConversationRepository_MessagesSharingTimestamp(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresConversationRepository(testPool)
	now := time.Now().UTC().Truncate(time.Millisecond)
	id := models.ConversationID("u1", "u2")
	if _, err := repo.UpsertConversation(ctx, models.Conversation{ID: id, Participants: []string{"u1", "u2"}, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("upsert conversation: %v", err)
	}
	for _, msgID := range []string{"m1", "m2", "m3"} {
		if err := repo.AppendMessage(ctx, models.Message{ID: msgID, ConversationID: id, SenderID: "u1", Content: msgID, Type: models.MessageTypeText, CreatedAt: now}); err != nil {
			t.Fatalf("append message: %v", err)
		}
	}

	first, err := repo.ListMessages(ctx, id, nil, 2)
	if err != nil || len(first) != 2 {
		t.Fatalf("unexpected first page %+v (%v)", first, err)
	}
	last := first[len(first)-1]
	rest, err := repo.ListMessages(ctx, id, &MessageCursor{CreatedAt: last.CreatedAt, ID: last.ID}, 2)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	var got []string
	for _, msg := range append(first, rest...) {
		got = append(got, msg.ID)
	}
	if fmt.Sprint(got) != "[m3 m2 m1]" {
		t.Fatalf("expected every message exactly once, got %v", got)
	}
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `TRUNCATE TABLE
        likes, posts, messages, conversations, blocks, request_counters, connection_requests,
        join_requests, projects, notifications, resources, moderation_terms, sessions, users CASCADE`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string) models.User {
	t.Helper()
	user := models.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: email,
		Password:    "password-hash",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}

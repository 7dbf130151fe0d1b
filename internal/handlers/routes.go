package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/campusnet/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux. Everything except health and the
// session endpoints requires an access token.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Database: deps.Database}
	authHandler := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	connections := ConnectionHandler{Network: deps.Network, Limiter: deps.ConnectionLimiter}
	conversations := ConversationHandler{Messaging: deps.Messaging}
	posts := PostHandler{Feed: deps.Feed}
	showcase := ShowcaseHandler{Showcase: deps.Showcase}
	notifications := NotificationHandler{Notifications: deps.Notifications}
	moderation := ModerationHandler{Filter: deps.Moderation}
	stream := RealtimeHandler{Hub: deps.Hub, Conversations: deps.Messaging, Upgrader: deps.Upgrader}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("/api/v1/auth/signup", authHandler.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", authHandler.Logout)

	protect := middleware.Authenticate(deps.Tokens)
	private := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}

	private("/api/v1/users/me", authHandler.Me)
	private("/api/v1/users/{id}", authHandler.Profile)

	private("/api/v1/connections", connections.List)
	private("/api/v1/connections/requests", connections.Requests)
	private("/api/v1/connections/requests/{id}/{action}", connections.Respond)
	private("/api/v1/connections/status/{userId}", connections.Status)
	private("/api/v1/blocks/{userId}", connections.Blocks)

	private("/api/v1/conversations", conversations.Collection)
	private("/api/v1/conversations/{id}/messages", conversations.Messages)
	private("/api/v1/conversations/{id}/read", conversations.Read)
	private("/api/v1/conversations/{id}/typing", conversations.Typing)

	private("/api/v1/posts", posts.Create)
	private("/api/v1/posts/{id}", posts.Delete)
	private("/api/v1/posts/{id}/like", posts.Like)
	private("/api/v1/feed", posts.Timeline)

	private("/api/v1/projects", showcase.Projects)
	private("/api/v1/projects/{id}", showcase.DeleteProject)
	private("/api/v1/projects/{id}/join", showcase.Join)
	private("/api/v1/resources", showcase.Resources)
	private("/api/v1/resources/{id}", showcase.DeleteResource)

	private("/api/v1/notifications", notifications.List)
	private("/api/v1/notifications/{id}/read", notifications.Read)

	private("/api/v1/moderation/check", moderation.Check)
	private("/api/v1/realtime", stream.Stream)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Database          Pinger
	Users             UserStore
	Sessions          SessionManager
	Tokens            middleware.TokenVerifier
	AuthLimiter       RateLimiter
	ConnectionLimiter RateLimiter
	Network           ConnectionService
	Messaging         MessagingService
	Feed              FeedService
	Showcase          ShowcaseService
	Notifications     NotificationService
	Moderation        ProfanityChecker
	Hub               Subscriber
	Upgrader          *websocket.Upgrader
}

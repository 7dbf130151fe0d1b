package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campusnet/backend/internal/models"
)

// MongoConversationRepository stores conversations and messages in MongoDB. Unlike the PostgreSQL
// store, AppendMessage performs its two writes sequentially; a failure between them leaves the
// message stored without an updated preview.
type MongoConversationRepository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewMongoConversationRepository constructs a repository over the "conversations" and "messages"
// collections of database.
func NewMongoConversationRepository(database *mongo.Database) *MongoConversationRepository {
	return &MongoConversationRepository{
		conversations: database.Collection("conversations"),
		messages:      database.Collection("messages"),
	}
}

type previewDocument struct {
	SenderID  string    `bson:"senderId"`
	Content   string    `bson:"content"`
	Type      string    `bson:"type"`
	CreatedAt time.Time `bson:"createdAt"`
}

type conversationDocument struct {
	ID           string               `bson:"_id"`
	Participants []string             `bson:"participants"`
	LastMessage  *previewDocument     `bson:"lastMessage,omitempty"`
	Typing       map[string]time.Time `bson:"typing,omitempty"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

func (d conversationDocument) model() models.Conversation {
	conv := models.Conversation{
		ID:           d.ID,
		Participants: d.Participants,
		Typing:       d.Typing,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if d.LastMessage != nil {
		conv.LastMessage = &models.MessagePreview{
			SenderID:  d.LastMessage.SenderID,
			Content:   d.LastMessage.Content,
			Type:      d.LastMessage.Type,
			CreatedAt: d.LastMessage.CreatedAt.UTC(),
		}
	}
	return conv
}

type messageDocument struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversationId"`
	SenderID       string    `bson:"senderId"`
	Content        string    `bson:"content"`
	Type           string    `bson:"type"`
	Attachments    []string  `bson:"attachments"`
	Read           bool      `bson:"read"`
	CreatedAt      time.Time `bson:"createdAt"`
}

func (d messageDocument) model() models.Message {
	return models.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		Type:           d.Type,
		Attachments:    d.Attachments,
		Read:           d.Read,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

// EnsureIndexes creates the indexes the message queries rely on.
func (r *MongoConversationRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	if _, err := r.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updatedAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create conversations index: %w", err)
	}
	return nil
}

// UpsertConversation inserts the conversation unless its id exists and returns the stored document.
func (r *MongoConversationRepository) UpsertConversation(ctx context.Context, conversation models.Conversation) (models.Conversation, error) {
	_, err := r.conversations.UpdateOne(ctx,
		bson.M{"_id": conversation.ID},
		bson.M{"$setOnInsert": bson.M{
			"participants": conversation.Participants,
			"createdAt":    conversation.CreatedAt,
			"updatedAt":    conversation.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return models.Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}
	return r.FindConversation(ctx, conversation.ID)
}

// FindConversation loads a conversation by id.
func (r *MongoConversationRepository) FindConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var doc conversationDocument
	if err := r.conversations.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Conversation{}, ErrNotFound
		}
		return models.Conversation{}, fmt.Errorf("find conversation: %w", err)
	}
	return doc.model(), nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (r *MongoConversationRepository) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	cursor, err := r.conversations.Find(ctx,
		bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []conversationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	conversations := make([]models.Conversation, 0, len(docs))
	for _, doc := range docs {
		conversations = append(conversations, doc.model())
	}
	return conversations, nil
}

// AppendMessage inserts the message, then copies it onto the conversation preview.
func (r *MongoConversationRepository) AppendMessage(ctx context.Context, message models.Message) error {
	count, err := r.conversations.CountDocuments(ctx, bson.M{"_id": message.ConversationID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}

	attachments := message.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	if _, err := r.messages.InsertOne(ctx, messageDocument{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		Type:           message.Type,
		Attachments:    attachments,
		Read:           message.Read,
		CreatedAt:      message.CreatedAt,
	}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert message: %w", err)
	}

	result, err := r.conversations.UpdateOne(ctx,
		bson.M{"_id": message.ConversationID},
		bson.M{"$set": bson.M{
			"lastMessage": previewDocument{
				SenderID:  message.SenderID,
				Content:   message.Content,
				Type:      message.Type,
				CreatedAt: message.CreatedAt,
			},
			"updatedAt": message.CreatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("update conversation preview: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages returns one newest-first keyset page of a conversation's messages.
func (r *MongoConversationRepository) ListMessages(ctx context.Context, conversationID string, cursor *MessageCursor, limit int) ([]models.Message, error) {
	filter := bson.M{"conversationId": conversationID}
	if cursor != nil {
		filter["$or"] = bson.A{
			bson.M{"createdAt": bson.M{"$lt": cursor.CreatedAt}},
			bson.M{"createdAt": cursor.CreatedAt, "_id": bson.M{"$lt": cursor.ID}},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	messages := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, doc.model())
	}
	return messages, nil
}

// MarkRead flags every unread message not sent by readerID as read.
func (r *MongoConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	result, err := r.messages.UpdateMany(ctx,
		bson.M{"conversationId": conversationID, "senderId": bson.M{"$ne": readerID}, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return result.ModifiedCount, nil
}

// SetTyping stores or clears the user's typing mark.
func (r *MongoConversationRepository) SetTyping(ctx context.Context, conversationID, userID string, at *time.Time) error {
	field := "typing." + userID
	update := bson.M{"$unset": bson.M{field: ""}}
	if at != nil {
		update = bson.M{"$set": bson.M{field: at.UTC()}}
	}

	result, err := r.conversations.UpdateOne(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		return fmt.Errorf("update typing: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

var _ ConversationRepository = (*MongoConversationRepository)(nil)

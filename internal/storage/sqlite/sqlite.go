package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/joshyvodetaene/chatual-sub000/internal/config"
	"github.com/joshyvodetaene/chatual-sub000/internal/storage"
)

// Store is a GORM-backed SQLite implementation of storage.Store.
type Store struct {
	db *gorm.DB
}

type userModel struct {
	ID         string `gorm:"primaryKey"`
	Username   string `gorm:"uniqueIndex"`
	Online     bool
	LastSeenAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type roomModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
}

type roomMemberModel struct {
	RoomID    string `gorm:"primaryKey;index"`
	UserID    string `gorm:"primaryKey"`
	CreatedAt time.Time
}

type messageModel struct {
	ID        string `gorm:"primaryKey"`
	RoomID    string `gorm:"index:idx_messages_room_created,priority:1"`
	AuthorID  string
	Content   string
	PhotoRef  string
	Kind      string
	Mentions  string
	CreatedAt time.Time `gorm:"index:idx_messages_room_created,priority:2"`
}

func (userModel) TableName() string       { return "users" }
func (roomModel) TableName() string       { return "rooms" }
func (roomMemberModel) TableName() string { return "room_members" }
func (messageModel) TableName() string    { return "messages" }

// NewStore opens a SQLite database at the provided path.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema updates.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&userModel{},
		&roomModel{},
		&roomMemberModel{},
		&messageModel{},
	)
}

// CreateMessage stores a new message record.
func (s *Store) CreateMessage(ctx context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	mentions, err := encodeMentions(msg.MentionedUserIDs)
	if err != nil {
		return err
	}
	model := messageModel{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		PhotoRef:  msg.PhotoRef,
		Kind:      msg.Kind,
		Mentions:  mentions,
		CreatedAt: msg.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListRoomMessages returns the most recent messages for a room in
// chronological order.
func (s *Store) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]storage.Message, error) {
	var models []messageModel
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]storage.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msg, err := toStorageMessage(models[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// CreateUser stores a new user record.
func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	model := userModel{
		ID:         user.ID,
		Username:   user.Username,
		Online:     user.Online,
		LastSeenAt: user.LastSeenAt,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*storage.User, error) {
	var model userModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &storage.User{
		ID:         model.ID,
		Username:   model.Username,
		Online:     model.Online,
		LastSeenAt: model.LastSeenAt,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}, nil
}

// SetOnline updates the persisted online flag for a user. Going offline
// also stamps the last-seen time.
func (s *Store) SetOnline(ctx context.Context, userID string, online bool) error {
	updates := map[string]any{
		"online":     online,
		"updated_at": time.Now().UTC(),
	}
	if !online {
		updates["last_seen_at"] = time.Now().UTC()
	}
	return s.db.WithContext(ctx).
		Model(&userModel{}).
		Where("id = ?", userID).
		Updates(updates).Error
}

// CreateRoom stores a new room record.
func (s *Store) CreateRoom(ctx context.Context, room *storage.Room) error {
	if room == nil {
		return errors.New("nil room")
	}
	model := roomModel{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt}
	return s.db.WithContext(ctx).Create(&model).Error
}

// AddMember records durable room membership.
func (s *Store) AddMember(ctx context.Context, roomID, userID string) error {
	model := roomMemberModel{RoomID: roomID, UserID: userID, CreatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Create(&model).Error
}

// MembersOf lists the user ids with durable membership in a room.
func (s *Store) MembersOf(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&roomMemberModel{}).
		Where("room_id = ?", roomID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func encodeMentions(ids []string) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func toStorageMessage(model messageModel) (storage.Message, error) {
	msg := storage.Message{
		ID:        model.ID,
		RoomID:    model.RoomID,
		AuthorID:  model.AuthorID,
		Content:   model.Content,
		PhotoRef:  model.PhotoRef,
		Kind:      model.Kind,
		CreatedAt: model.CreatedAt,
	}
	if model.Mentions != "" {
		if err := json.Unmarshal([]byte(model.Mentions), &msg.MentionedUserIDs); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

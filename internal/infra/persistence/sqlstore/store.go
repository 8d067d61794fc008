// Package sqlstore keeps identities and rooms in a relational database through gorm.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver string // sqlite or mysql
	DSN    string
	Debug  bool
}

type Store struct {
	db *gorm.DB
}

var _ core.Store = (*Store)(nil)

// Open connects and migrates the schema.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown sql driver %q", cfg.Driver)
	}

	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		// one connection keeps an in-memory database shared
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an existing connection.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&UserModel{}, &RoomModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	log.Info().Str("module", "infra.sqlstore").Str("dialect", db.Dialector.Name()).Msg("store ready")
	return &Store{db: db}, nil
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func wrap(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

func (s *Store) FindUser(ctx context.Context, username string) (*domain.Identity, error) {
	var m UserModel
	if err := s.db.WithContext(ctx).First(&m, "username = ?", username).Error; err != nil {
		return nil, wrap("find user", err)
	}
	id := m.toIdentity()
	return &id, nil
}

func (s *Store) FindUserByConnection(ctx context.Context, conn domain.ConnectionID) (*domain.Identity, error) {
	var m UserModel
	if err := s.db.WithContext(ctx).First(&m, "connection_id = ?", string(conn)).Error; err != nil {
		return nil, wrap("find user by connection", err)
	}
	id := m.toIdentity()
	return &id, nil
}

func (s *Store) userQuery(ctx context.Context, filter core.UserFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&UserModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if !filter.ActiveBefore.IsZero() {
		q = q.Where("last_active_at < ?", filter.ActiveBefore.UTC())
	}
	return q
}

func (s *Store) FindUsers(ctx context.Context, filter core.UserFilter) ([]domain.Identity, error) {
	var rows []UserModel
	if err := s.userQuery(ctx, filter).Order("username").Find(&rows).Error; err != nil {
		return nil, wrap("find users", err)
	}
	out := make([]domain.Identity, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toIdentity())
	}
	return out, nil
}

func (s *Store) UpsertUser(ctx context.Context, id domain.Identity) error {
	m := fromIdentity(id)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
	if err != nil {
		return wrap("upsert user", err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	res := s.db.WithContext(ctx).Delete(&UserModel{}, "username = ?", username)
	if res.Error != nil {
		return wrap("delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete user %s: %w", username, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteUsers(ctx context.Context, filter core.UserFilter) (int64, error) {
	res := s.userQuery(ctx, filter).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&UserModel{})
	if res.Error != nil {
		return 0, wrap("delete users", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) FindRoom(ctx context.Context, name domain.RoomName) (*domain.Room, error) {
	var m RoomModel
	if err := s.db.WithContext(ctx).First(&m, "name = ?", string(name)).Error; err != nil {
		return nil, wrap("find room", err)
	}
	r := m.toRoom()
	return &r, nil
}

func (s *Store) FindRooms(ctx context.Context) ([]domain.Room, error) {
	var rows []RoomModel
	if err := s.db.WithContext(ctx).Order("created_at, name").Find(&rows).Error; err != nil {
		return nil, wrap("find rooms", err)
	}
	out := make([]domain.Room, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toRoom())
	}
	return out, nil
}

func (s *Store) InsertRoom(ctx context.Context, room domain.Room) error {
	m := fromRoom(room)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return wrap("insert room", err)
	}
	return nil
}

// UpdateRoom upserts the room.
func (s *Store) UpdateRoom(ctx context.Context, room domain.Room) error {
	m := fromRoom(room)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
	if err != nil {
		return wrap("update room", err)
	}
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, name domain.RoomName) error {
	res := s.db.WithContext(ctx).Delete(&RoomModel{}, "name = ?", string(name))
	if res.Error != nil {
		return wrap("delete room", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete room %s: %w", name, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRooms(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&RoomModel{})
	if res.Error != nil {
		return 0, wrap("delete rooms", res.Error)
	}
	return res.RowsAffected, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"interview-room/entities"
)

// ResultRepository archives terminal session snapshots so the admin view
// outlives the backend's retention.
type ResultRepository interface {
	Transaction(ctx context.Context, callback func(repo ResultRepository) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB
	Migrate(ctx context.Context) error
	SaveSession(ctx context.Context, session *entities.ArchivedSession) error
	FindSessionByID(ctx context.Context, id string) (*entities.ArchivedSession, error)
	ListSessions(ctx context.Context) ([]*entities.ArchivedSession, error)
	DeleteSession(ctx context.Context, id string) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB, debug bool) (ResultRepository, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(level),
		},
	)
	if err != nil {
		return nil, err
	}
	return &repo{
		db: gormDB,
	}, nil
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(repo ResultRepository) error, opts ...*sql.TxOptions) error {
	return r.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(&repo{db: tx})
	}, opts...)
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.GetDB().WithContext(ctx).AutoMigrate(&entities.ArchivedSession{}, &entities.ArchivedAnswer{})
}

// SaveSession replaces the archived copy of a session and its answers.
func (r *repo) SaveSession(ctx context.Context, session *entities.ArchivedSession) error {
	return r.Transaction(ctx, func(txRepo ResultRepository) error {
		tx := txRepo.GetDB()
		err := tx.Where("session_id = ?", session.ID).Delete(&entities.ArchivedAnswer{}).Error
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(session).Error
	})
}

func (r *repo) FindSessionByID(ctx context.Context, id string) (*entities.ArchivedSession, error) {
	session := &entities.ArchivedSession{}
	err := r.GetDB().WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entities.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *repo) ListSessions(ctx context.Context) ([]*entities.ArchivedSession, error) {
	var sessions []*entities.ArchivedSession
	err := r.GetDB().WithContext(ctx).Order("archived_at DESC").Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes a session and its answers. A missing session is not an error.
func (r *repo) DeleteSession(ctx context.Context, id string) error {
	return r.Transaction(ctx, func(txRepo ResultRepository) error {
		tx := txRepo.GetDB()
		if err := tx.Where("session_id = ?", id).Delete(&entities.ArchivedAnswer{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entities.ArchivedSession{}).Error
	})
}

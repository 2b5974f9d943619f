package store

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pvaneck/refstack/pkg/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for test runs, users, and public keys.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Test records.
	StoreResults(ctx context.Context, sub *TestSubmission) (string, error)
	GetTest(ctx context.Context, testID string) (*Test, error)
	GetTestResults(ctx context.Context, testID string) ([]string, error)
	DeleteTest(ctx context.Context, testID string) error

	// Test metadata.
	GetTestMetaKey(
		ctx context.Context, testID, key string,
	) (string, bool, error)
	SaveTestMetaItem(ctx context.Context, testID, key, value string) error
	DeleteTestMetaItem(ctx context.Context, testID, key string) error

	// Filtered listing.
	GetTestRecords(
		ctx context.Context, page, perPage int, filters *TestFilters,
	) ([]Test, error)
	GetTestRecordsCount(
		ctx context.Context, filters *TestFilters,
	) (int64, error)

	// Users.
	UserGet(ctx context.Context, openid string) (*User, error)
	UserSave(ctx context.Context, user *User) (*User, error)

	// Public keys.
	StorePubKey(ctx context.Context, key *PubKey) (uint, error)
	DeletePubKey(ctx context.Context, id uint) error
	GetUserPubKeys(ctx context.Context, openid string) ([]PubKey, error)

	// Sessions.
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Test{},
		&TestResult{},
		&TestMeta{},
		&User{},
		&PubKey{},
		&Session{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Test records ---

// StoreResults persists a test submission with its result entries and
// metadata as one transaction and returns the generated test ID.
func (s *store) StoreResults(
	ctx context.Context, sub *TestSubmission,
) (string, error) {
	testID := uuid.NewString()

	test := Test{
		ID:              testID,
		CPID:            sub.CPID,
		DurationSeconds: sub.DurationSeconds,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&test).Error; err != nil {
			return fmt.Errorf("creating test record: %w", err)
		}

		for _, r := range sub.Results {
			result := TestResult{
				TestID: testID,
				Name:   r.Name,
				UUID:   r.UUID,
			}

			if err := tx.Create(&result).Error; err != nil {
				return fmt.Errorf("creating test result: %w", err)
			}
		}

		for k, v := range sub.Metadata {
			meta := TestMeta{
				TestID:  testID,
				MetaKey: k,
				Value:   v,
			}

			if err := tx.Create(&meta).Error; err != nil {
				return fmt.Errorf("creating test metadata: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	s.log.WithField("test_id", testID).
		WithField("cpid", sub.CPID).
		Debug("Stored test results")

	return testID, nil
}

// GetTest returns a test record by ID.
func (s *store) GetTest(
	ctx context.Context, testID string,
) (*Test, error) {
	var test Test
	if err := s.db.WithContext(ctx).
		Where("id = ?", testID).
		First(&test).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("test %s: %w", testID, ErrNotFound)
		}

		return nil, fmt.Errorf("getting test: %w", err)
	}

	return &test, nil
}

// GetTestResults returns the result entry names for a test. An unknown
// test ID yields an empty slice, not an error.
func (s *store) GetTestResults(
	ctx context.Context, testID string,
) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&TestResult{}).
		Where("test_id = ?", testID).
		Order("id ASC").
		Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("getting test results: %w", err)
	}

	return names, nil
}

// DeleteTest removes a test's metadata, results, and header in one
// transaction. The existence check is a read followed by deletes, so a
// concurrent delete between the two can still make the removal a no-op.
func (s *store) DeleteTest(ctx context.Context, testID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var test Test
		if err := tx.Where("id = ?", testID).
			First(&test).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("test %s: %w", testID, ErrNotFound)
			}

			return fmt.Errorf("getting test for delete: %w", err)
		}

		if err := tx.Where("test_id = ?", testID).
			Delete(&TestMeta{}).Error; err != nil {
			return fmt.Errorf("deleting test metadata: %w", err)
		}

		if err := tx.Where("test_id = ?", testID).
			Delete(&TestResult{}).Error; err != nil {
			return fmt.Errorf("deleting test results: %w", err)
		}

		if err := tx.Delete(&test).Error; err != nil {
			return fmt.Errorf("deleting test: %w", err)
		}

		return nil
	})
}

// --- Test metadata ---

// GetTestMetaKey returns the value of a metadata key. The second return
// value reports whether the key exists; a missing key is not an error.
func (s *store) GetTestMetaKey(
	ctx context.Context, testID, key string,
) (string, bool, error) {
	var meta TestMeta
	if err := s.db.WithContext(ctx).
		Where("test_id = ? AND meta_key = ?", testID, key).
		First(&meta).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("getting test meta: %w", err)
	}

	return meta.Value, true, nil
}

// SaveTestMetaItem upserts a metadata key/value pair for a test.
func (s *store) SaveTestMetaItem(
	ctx context.Context, testID, key, value string,
) error {
	meta := TestMeta{TestID: testID, MetaKey: key}

	// Map form so an empty value still overwrites an existing entry.
	result := s.db.WithContext(ctx).
		Where("test_id = ? AND meta_key = ?", testID, key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&meta)
	if result.Error != nil {
		return fmt.Errorf("upserting test meta: %w", result.Error)
	}

	return nil
}

// DeleteTestMetaItem removes a metadata key from a test.
func (s *store) DeleteTestMetaItem(
	ctx context.Context, testID, key string,
) error {
	result := s.db.WithContext(ctx).
		Where("test_id = ? AND meta_key = ?", testID, key).
		Delete(&TestMeta{})
	if result.Error != nil {
		return fmt.Errorf("deleting test meta: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("test meta %s/%s: %w", testID, key, ErrNotFound)
	}

	return nil
}

// --- Users ---

// UserGet returns a user by OpenID.
func (s *store) UserGet(
	ctx context.Context, openid string,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).
		Where("open_id = ?", openid).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", openid, ErrNotFound)
		}

		return nil, fmt.Errorf("getting user: %w", err)
	}

	return &user, nil
}

// UserSave creates a user record on first login and updates the
// profile fields on subsequent ones.
func (s *store) UserSave(
	ctx context.Context, user *User,
) (*User, error) {
	result := s.db.WithContext(ctx).
		Where("open_id = ?", user.OpenID).
		Assign(User{Email: user.Email, Fullname: user.Fullname}).
		FirstOrCreate(user)
	if result.Error != nil {
		return nil, fmt.Errorf("saving user: %w", result.Error)
	}

	return user, nil
}

// --- Public keys ---

// StorePubKey stores a public key for a user. The key fingerprint is
// derived from the decoded key material, so equivalent keys always
// collide regardless of who computed the hash. A key with the same
// fingerprint and material as an existing row is rejected with
// ErrDuplication.
func (s *store) StorePubKey(
	ctx context.Context, key *PubKey,
) (uint, error) {
	raw, err := base64.StdEncoding.DecodeString(key.PubKey)
	if err != nil {
		return 0, fmt.Errorf("decoding key material: %w", err)
	}

	sum := md5.Sum(raw)
	key.MD5Hash = hex.EncodeToString(sum[:])

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&PubKey{}).
			Where("md5_hash = ? AND pub_key = ?", key.MD5Hash, key.PubKey).
			Count(&count).Error; err != nil {
			return fmt.Errorf("checking pubkey collision: %w", err)
		}

		if count > 0 {
			return fmt.Errorf("pubkey %s: %w", key.MD5Hash, ErrDuplication)
		}

		if err := tx.Create(key).Error; err != nil {
			return fmt.Errorf("creating pubkey: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return key.ID, nil
}

// DeletePubKey removes a public key by ID.
func (s *store) DeletePubKey(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&PubKey{}, id)
	if result.Error != nil {
		return fmt.Errorf("deleting pubkey: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("pubkey %d: %w", id, ErrNotFound)
	}

	return nil
}

// GetUserPubKeys returns all public keys owned by a user.
func (s *store) GetUserPubKeys(
	ctx context.Context, openid string,
) ([]PubKey, error) {
	var keys []PubKey
	if err := s.db.WithContext(ctx).
		Where("open_id = ?", openid).
		Order("id ASC").
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("listing user pubkeys: %w", err)
	}

	return keys, nil
}

// --- Sessions ---

func (s *store) CreateSession(
	ctx context.Context, session *Session,
) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

func (s *store) GetSessionByToken(
	ctx context.Context, token string,
) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session: %w", ErrNotFound)
		}

		return nil, fmt.Errorf("getting session by token: %w", err)
	}

	return &session, nil
}

func (s *store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

func (s *store) DeleteExpiredSessions(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&Session{})
	if result.Error != nil {
		return fmt.Errorf("deleting expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired sessions")
	}

	return nil
}

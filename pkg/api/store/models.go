package store

import (
	"time"
)

// Metadata keys with special meaning for visibility decisions.
const (
	// MetaPublicKey holds the "<format> <base64 key>" string a signed
	// submission was associated with.
	MetaPublicKey = "public_key"

	// MetaSharedTestRun marks a signed test as visible to non-owners.
	// Any non-empty value counts as set.
	MetaSharedTestRun = "shared"
)

// Test is a single interoperability test run header.
type Test struct {
	ID              string    `gorm:"primaryKey;size:36" json:"test_id"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	CPID            string    `gorm:"column:cpid;index;not null" json:"cpid"`
	DurationSeconds int       `json:"duration_seconds"`

	Results []TestResult `gorm:"foreignKey:TestID" json:"-"`
	Meta    []TestMeta   `gorm:"foreignKey:TestID" json:"-"`
}

// TestResult is one test name reported by a run.
type TestResult struct {
	ID     uint   `gorm:"primaryKey" json:"-"`
	TestID string `gorm:"size:36;index;not null" json:"-"`
	Name   string `gorm:"not null" json:"name"`
	UUID   string `gorm:"column:uuid" json:"uuid,omitempty"`
}

// TestMeta is a key/value pair attached to a test run. Keys are unique
// per test but not across tests.
type TestMeta struct {
	ID      uint   `gorm:"primaryKey" json:"-"`
	TestID  string `gorm:"size:36;uniqueIndex:idx_test_meta_key;not null" json:"-"`
	MetaKey string `gorm:"uniqueIndex:idx_test_meta_key;not null" json:"key"`
	Value   string `json:"value"`
}

// TableName pins the singular form used by the raw join and subquery
// in the filter engine.
func (TestMeta) TableName() string {
	return "test_meta"
}

// User is an account created on first successful external OpenID
// authentication and upserted on subsequent logins.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	OpenID    string    `gorm:"uniqueIndex;not null" json:"openid"`
	Email     string    `json:"email,omitempty"`
	Fullname  string    `json:"fullname,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PubKey is a signing key owned by a user. The MD5Hash column is the
// hex md5 of the decoded key bytes and exists for fast duplicate
// detection; (md5_hash, pubkey) pairs are unique.
type PubKey struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OpenID    string    `gorm:"index;not null" json:"-"`
	Format    string    `gorm:"not null" json:"format"`
	PubKey    string    `gorm:"not null" json:"key"`
	MD5Hash   string    `gorm:"column:md5_hash;size:32;index" json:"-"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"-"`
}

// Session maps an opaque token to an authenticated OpenID. Sessions are
// minted by the authentication collaborator after a verified handshake.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	OpenID    string    `gorm:"index;not null" json:"openid"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyString returns the "<format> <key>" form compared against a test's
// public_key metadata entry.
func (k *PubKey) KeyString() string {
	return k.Format + " " + k.PubKey
}

// TestFilters narrows test record listings. Nil/zero fields are
// ignored. When Signed is set, PubKeys carries the caller's key strings
// and only matching signed records are returned; otherwise only records
// without a public_key metadata entry are returned.
type TestFilters struct {
	StartDate *time.Time
	EndDate   *time.Time
	CPID      string
	Signed    bool
	PubKeys   []string
}

// TestSubmission is the payload accepted by StoreResults.
type TestSubmission struct {
	CPID            string            `json:"cpid"`
	DurationSeconds int               `json:"duration_seconds"`
	Results         []ResultEntry     `json:"results"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ResultEntry is one test name in a submission.
type ResultEntry struct {
	Name string `json:"name"`
	UUID string `json:"uuid,omitempty"`
}

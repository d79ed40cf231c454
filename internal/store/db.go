package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = gorm.ErrRecordNotFound

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&LearnedPattern{}, &GlobalPattern{}, &UserProfile{}, &Feedback{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NormalizeEmail is the storage key form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UpsertLearnedPattern stores a private pattern. When the user already has a
// row for the same question, that row keeps its id and is updated in place.
// The returned flag reports whether a new row was created.
func (d *Database) UpsertLearnedPattern(p *LearnedPattern) (bool, error) {
	if p == nil {
		return false, errors.New("learned pattern is nil")
	}
	p.UserEmail = NormalizeEmail(p.UserEmail)
	if p.UserEmail == "" {
		return false, errors.New("learned pattern has no owner")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	created := false
	err := d.gorm.Transaction(func(tx *gorm.DB) error {
		var existing LearnedPattern
		err := tx.Where("user_email = ? AND question_pattern = ?", p.UserEmail, p.QuestionPattern).
			Take(&existing).Error
		switch {
		case err == nil:
			p.ID = existing.ID
			p.CreatedAt = existing.CreatedAt
			return tx.Save(p).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			return tx.Create(p).Error
		default:
			return err
		}
	})
	return created, err
}

// FindLearnedPattern returns the user's pattern for an exact question.
func (d *Database) FindLearnedPattern(email, question string) (*LearnedPattern, error) {
	var row LearnedPattern
	err := d.gorm.Where("user_email = ? AND question_pattern = ?", NormalizeEmail(email), question).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListLearnedPatterns returns all private patterns for the user, most recently used first.
func (d *Database) ListLearnedPatterns(email string) ([]LearnedPattern, error) {
	var rows []LearnedPattern
	if err := d.gorm.Where("user_email = ?", NormalizeEmail(email)).
		Order("last_used DESC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TouchLearnedPattern bumps last_used for a private pattern.
func (d *Database) TouchLearnedPattern(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Model(&LearnedPattern{}).Where("id = ?", id).Update("last_used", time.Now()).Error
}

// CountLearnedPatterns returns the number of private patterns across all users.
func (d *Database) CountLearnedPatterns() (int64, error) {
	var count int64
	if err := d.gorm.Model(&LearnedPattern{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// UpsertGlobalPattern inserts a shared pattern or refreshes the existing row
// for the same question. Stored answers are left untouched on update.
func (d *Database) UpsertGlobalPattern(p *GlobalPattern) error {
	if p == nil {
		return errors.New("global pattern is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "question_pattern"}},
		DoUpdates: clause.AssignmentColumns([]string{"intent", "canonical_key", "field_type", "confidence", "source", "updated_at"}),
	}).Create(p).Error
}

// FindGlobalPattern returns the shared pattern for an exact question.
func (d *Database) FindGlobalPattern(question string) (*GlobalPattern, error) {
	var row GlobalPattern
	if err := d.gorm.Where("question_pattern = ?", question).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ListGlobalPatterns returns shared patterns in insertion order, optionally
// limited to rows changed at or after since.
func (d *Database) ListGlobalPatterns(since time.Time) ([]GlobalPattern, error) {
	query := d.gorm.Model(&GlobalPattern{})
	if !since.IsZero() {
		query = query.Where("updated_at >= ?", since)
	}
	var rows []GlobalPattern
	if err := query.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// IncrementGlobalUses records a memory hit on a shared pattern.
func (d *Database) IncrementGlobalUses(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Model(&GlobalPattern{}).Where("id = ?", id).
		UpdateColumn("uses", gorm.Expr("uses + ?", 1)).Error
}

// CountGlobalPatterns returns the number of shared patterns.
func (d *Database) CountGlobalPatterns() (int64, error) {
	var count int64
	if err := d.gorm.Model(&GlobalPattern{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GlobalIntentBreakdown counts shared patterns per intent.
func (d *Database) GlobalIntentBreakdown() (map[string]int64, error) {
	var rows []struct {
		Intent string
		Total  int64
	}
	if err := d.gorm.Model(&GlobalPattern{}).
		Select("intent, COUNT(*) AS total").
		Group("intent").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("intent breakdown: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		key := row.Intent
		if key == "" {
			key = "unknown"
		}
		out[key] += row.Total
	}
	return out, nil
}

// SaveProfile inserts or replaces the profile document for email.
func (d *Database) SaveProfile(email string, doc map[string]any) error {
	email = NormalizeEmail(email)
	if email == "" {
		return errors.New("profile email is empty")
	}
	profile := &UserProfile{Email: email}
	profile.SetProfile(doc)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"profile_json", "updated_at"}),
	}).Create(profile).Error
}

// EnsureProfile creates a profile row with doc only when email has none yet.
// It reports whether a row was created.
func (d *Database) EnsureProfile(email string, doc map[string]any) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return false, errors.New("profile email is empty")
	}
	profile := &UserProfile{Email: email}
	profile.SetProfile(doc)

	d.mu.Lock()
	defer d.mu.Unlock()
	result := d.gorm.Clauses(clause.OnConflict{DoNothing: true}).Create(profile)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetProfile loads the profile row for email.
func (d *Database) GetProfile(email string) (*UserProfile, error) {
	var row UserProfile
	if err := d.gorm.Where("email = ?", NormalizeEmail(email)).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CountProfiles counts profiles, optionally only those updated at or after since.
func (d *Database) CountProfiles(since time.Time) (int64, error) {
	query := d.gorm.Model(&UserProfile{})
	if !since.IsZero() {
		query = query.Where("updated_at >= ?", since)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateFeedback records a feedback interaction.
func (d *Database) CreateFeedback(email, feedbackType string) (*Feedback, error) {
	feedbackType = strings.ToLower(strings.TrimSpace(feedbackType))
	if feedbackType == "" {
		feedbackType = "click"
	}
	row := &Feedback{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(email),
		FeedbackType: feedbackType,
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.gorm.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// CountFeedback counts feedback rows, optionally only those created at or after since.
func (d *Database) CountFeedback(since time.Time) (int64, error) {
	query := d.gorm.Model(&Feedback{})
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_learned_patterns_user_last_used ON learned_patterns(user_email, last_used)",
		"CREATE INDEX IF NOT EXISTS idx_global_patterns_created ON global_patterns(created_at, id)",
		"CREATE INDEX IF NOT EXISTS idx_feedbacks_email_created ON feedbacks(email, created_at)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// ErrDuplicateRecord a unique constraint rejected the write
var ErrDuplicateRecord = goerrors.New("record already exists", goerrors.CategoryConflict).
	WithTextCode("DUPLICATE_RECORD").
	WithCode(goerrors.CodeConflict)

// ErrStaleRecord a conditional update matched no row because the stored
// state moved on since the record was read
var ErrStaleRecord = goerrors.New("record was modified concurrently", goerrors.CategoryConflict).
	WithTextCode("STALE_RECORD").
	WithCode(goerrors.CodeConflict)

// lookupFields maps FindByField names to columns
var lookupFields = map[string]string{
	"id":           "id",
	"email":        "email",
	"phone_number": "phone_number",
	"phone":        "phone_number",
}

var (
	passwordColumns = []string{"password_hash", "requires_new_password", "password_changed_at", "updated_at"}
	statusColumns   = []string{"status", "activated_at", "updated_at"}
	profileColumns  = []string{"name", "phone_number", "updated_at"}
)

// Users is the RecordStore for User backed by a go-repository-bun
// repository. Writes are column scoped so a flow only persists the
// fields it owns.
type Users struct {
	repo repository.Repository[*User]
	db   bun.IDB
	now  func() time.Time
}

var (
	_ RecordStore[*User] = (*Users)(nil)
	_ PreferenceRecords  = (*Users)(nil)
)

// UserModelHandlers are the repository handlers for User
func UserModelHandlers() repository.ModelHandlers[*User] {
	return repository.ModelHandlers[*User]{
		NewRecord: func() *User {
			return &User{}
		},
		GetID: func(record *User) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *User, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
		GetIdentifierValue: func(record *User) string {
			return record.Email
		},
	}
}

func NewUsersRepository(db *bun.DB) *Users {
	return &Users{
		repo: repository.NewRepository(db, UserModelHandlers()),
		db:   db,
		now:  time.Now,
	}
}

// WithTx returns a repository that runs every query on tx
func (r *Users) WithTx(tx bun.IDB) *Users {
	return &Users{repo: r.repo, db: tx, now: r.now}
}

// Repository exposes the generic repository for queries outside the
// RecordStore surface
func (r *Users) Repository() repository.Repository[*User] {
	return r.repo
}

// Migrate creates the users and user_preferences tables
func Migrate(ctx context.Context, db bun.IDB) error {
	models := []any{(*User)(nil), (*Preference)(nil)}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

func (r *Users) FindByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrRecordNotFound
	}

	record, err := r.repo.GetByIDTx(ctx, r.db, uid.String())
	if err != nil {
		return nil, mapStoreError(err)
	}
	return record, nil
}

func (r *Users) FindByField(ctx context.Context, field, value string) (*User, error) {
	column, ok := lookupFields[field]
	if !ok {
		return nil, goerrors.New("unsupported lookup field", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"field": field})
	}

	switch column {
	case "id":
		return r.FindByID(ctx, value)
	case "email":
		value = NormalizeEmail(value)
	default:
		value = strings.TrimSpace(value)
	}

	record, err := r.repo.GetTx(ctx, r.db, repository.SelectBy(column, "=", value))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return record, nil
}

func (r *Users) Create(ctx context.Context, record *User) (*User, error) {
	prepareUserDefaults(record, r.now())

	created, err := r.repo.CreateTx(ctx, r.db, record)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return created, nil
}

// UpdatePassword writes the password columns of record only while the
// stored hash still equals previousHash. A reset code or a current
// password check that raced another write gets ErrStaleRecord.
func (r *Users) UpdatePassword(ctx context.Context, record *User, previousHash string) error {
	r.touch(record)
	_, err := r.repo.UpdateTx(ctx, r.db, record,
		repository.UpdateColumns(passwordColumns...),
		repository.UpdateBy("password_hash", "=", previousHash),
	)
	return mapConditionalError(err)
}

// UpdateStatus writes the status columns of record only while the stored
// status still equals from
func (r *Users) UpdateStatus(ctx context.Context, record *User, from UserStatus) error {
	r.touch(record)
	_, err := r.repo.UpdateTx(ctx, r.db, record,
		repository.UpdateColumns(statusColumns...),
		repository.UpdateBy("status", "=", string(from)),
	)
	return mapConditionalError(err)
}

// UpdateProfile writes the editable profile columns of record
func (r *Users) UpdateProfile(ctx context.Context, record *User) error {
	r.touch(record)
	_, err := r.repo.UpdateTx(ctx, r.db, record,
		repository.UpdateColumns(profileColumns...),
	)
	if repository.IsSQLExpectedCountViolation(err) {
		return ErrRecordNotFound
	}
	return mapStoreError(err)
}

func (r *Users) TrackLogin(ctx context.Context, record *User) error {
	now := r.now()
	stamp := &User{ID: record.ID, LoggedInAt: &now}
	if _, err := r.repo.UpdateTx(ctx, r.db, stamp, repository.UpdateColumns("loggedin_at")); err != nil {
		return mapStoreError(err)
	}
	record.LoggedInAt = &now
	return nil
}

func (r *Users) touch(record *User) {
	now := r.now()
	record.UpdatedAt = &now
}

func (r *Users) GetPreference(ctx context.Context, userID uuid.UUID, name string) (string, error) {
	pref := &Preference{}
	err := r.db.NewSelect().
		Model(pref).
		Where("user_id = ?", userID).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return "", mapStoreError(err)
	}
	return pref.Value, nil
}

func (r *Users) ListPreferences(ctx context.Context, userID uuid.UUID) (map[string]string, error) {
	var prefs []Preference
	err := r.db.NewSelect().
		Model(&prefs).
		Where("user_id = ?", userID).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}

	out := make(map[string]string, len(prefs))
	for _, p := range prefs {
		out[p.Name] = p.Value
	}
	return out, nil
}

func (r *Users) SetPreference(ctx context.Context, userID uuid.UUID, name, value string) error {
	now := r.now()
	pref := &Preference{
		UserID:    userID,
		Name:      name,
		Value:     value,
		UpdatedAt: &now,
	}

	_, err := r.db.NewInsert().
		Model(pref).
		On("CONFLICT (user_id, name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func prepareUserDefaults(record *User, now time.Time) {
	if record == nil {
		return
	}

	record.EnsureStatus()
	record.Email = NormalizeEmail(record.Email)

	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case repository.IsRecordNotFound(err):
		return ErrRecordNotFound
	case repository.IsDuplicatedKey(err), isUniqueViolation(err):
		return ErrDuplicateRecord
	}
	return err
}

func mapConditionalError(err error) error {
	if repository.IsSQLExpectedCountViolation(err) || repository.IsRecordNotFound(err) {
		return ErrStaleRecord
	}
	return mapStoreError(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

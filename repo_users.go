package identity

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the typed store for the canonical identity records. All operations
// are single row; concurrent create paths converge through the uniqueness
// constraint, never through locks.
type Users interface {
	repository.Repository[*User]

	ByProviderIdentity(ctx context.Context, provider Provider, subject string) (*User, error)
	ByExternalID(ctx context.Context, externalID string) (*User, error)
	ByInternalID(ctx context.Context, id uuid.UUID) (*User, error)

	// CreateIdentity inserts a new row. A uniqueness conflict surfaces as
	// ErrDuplicateIdentity; callers re-read and use the winning row.
	CreateIdentity(ctx context.Context, record *User) (*User, error)

	// PatchIdentity applies a partial update; zero-valued patch fields are
	// skipped. Fails with ErrUserNotFound when the id does not exist.
	PatchIdentity(ctx context.Context, id uuid.UUID, patch *User) (*User, error)

	// DeleteByExternalID removes a row. Deleting an absent identity is a no-op.
	DeleteByExternalID(ctx context.Context, externalID string) error

	SetRole(ctx context.Context, id uuid.UUID, role Role) (*User, error)
	CompleteOnboarding(ctx context.Context, id uuid.UUID) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository creates the bun-backed Users store.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) ByProviderIdentity(ctx context.Context, provider Provider, subject string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ? AND ?TableAlias.provider_subject = ?", provider, subject).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, a.mapSelectError(err, map[string]any{
			"provider": string(provider),
			"subject":  subject,
		})
	}
	return record, nil
}

func (a *users) ByExternalID(ctx context.Context, externalID string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", externalID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, a.mapSelectError(err, map[string]any{
			"external_id": externalID,
		})
	}
	return record, nil
}

func (a *users) ByInternalID(ctx context.Context, id uuid.UUID) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, a.mapSelectError(err, map[string]any{
			"id": id.String(),
		})
	}
	return record, nil
}

func (a *users) CreateIdentity(ctx context.Context, record *User) (*User, error) {
	prepareUserDefaults(record)

	if record.Role != "" && !record.Role.IsValid() {
		return nil, goerrors.New("invalid role", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"role": string(record.Role)})
	}

	_, err := a.db.NewInsert().Model(record).Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			dup := ErrDuplicateIdentity.Clone()
			dup.Source = err
			return nil, dup.WithMetadata(map[string]any{
				"provider":    string(record.Provider),
				"subject":     record.ProviderSubject,
				"external_id": record.ExternalID,
			})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
	}

	return record, nil
}

func (a *users) PatchIdentity(ctx context.Context, id uuid.UUID, patch *User) (*User, error) {
	if patch == nil {
		patch = &User{}
	}
	patch.ID = id
	now := time.Now()
	patch.UpdatedAt = &now

	res, err := a.db.NewUpdate().
		Model(patch).
		OmitZero().
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not update user")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrUserNotFound.Clone().WithMetadata(map[string]any{
			"id": id.String(),
		})
	}

	return a.ByInternalID(ctx, id)
}

func (a *users) DeleteByExternalID(ctx context.Context, externalID string) error {
	_, err := a.db.NewDelete().
		Model((*User)(nil)).
		Where("external_id = ?", externalID).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete user")
	}
	return nil
}

func (a *users) SetRole(ctx context.Context, id uuid.UUID, role Role) (*User, error) {
	if !role.IsValid() {
		return nil, goerrors.New("invalid role", goerrors.CategoryValidation).
			WithMetadata(map[string]any{
				"role":  string(role),
				"valid": RoleStrings(GetAllRoles()),
			})
	}
	return a.PatchIdentity(ctx, id, &User{Role: role})
}

func (a *users) CompleteOnboarding(ctx context.Context, id uuid.UUID) (*User, error) {
	now := time.Now()
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("onboarding_complete = ?", true).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not complete onboarding")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrUserNotFound.Clone().WithMetadata(map[string]any{
			"id": id.String(),
		})
	}
	return a.ByInternalID(ctx, id)
}

func (a *users) mapSelectError(err error, meta map[string]any) error {
	if err == sql.ErrNoRows || repository.IsRecordNotFound(err) {
		return ErrUserNotFound.Clone().WithMetadata(meta)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Provider == "" {
		record.Provider = DefaultProvider
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

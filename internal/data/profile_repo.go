package data

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/accountdesk/accountdesk/internal/data/pgxutil"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

var _ ports.ProfileStore = (*ProfileRepo)(nil)

// ProfileRepo provides database operations for user profiles.
type ProfileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewProfileRepo creates a new ProfileRepo with real time provider.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewProfileRepoWithTimeProvider creates a new ProfileRepo with a custom time provider (useful for tests).
func NewProfileRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: tp}
}

const (
	profileColumns = `id, email, full_name, phone, bio, avatar_url, is_admin, created_at, updated_at`

	profileGetByIDQuery = `SELECT ` + profileColumns + ` FROM user_profiles WHERE id = $1`

	profileListQuery = `SELECT ` + profileColumns + ` FROM user_profiles ORDER BY created_at DESC, id`

	profileInsertQuery = `
		INSERT INTO user_profiles (id, email, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING ` + profileColumns
)

// GetByID retrieves a profile by identity id.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	var out model.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileGetByIDQuery, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Profile])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// List returns every profile, newest first.
func (r *ProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	var rowsOut []model.Profile
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileListQuery)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Profile])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list profiles: %w", err))
	}

	res := make([]*model.Profile, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Create inserts the profile row for a newly registered identity.
func (r *ProfileRepo) Create(ctx context.Context, req model.CreateProfileRequest) (*model.Profile, error) {
	if strings.TrimSpace(req.ID) == "" {
		return nil, apperrors.ValidationField("id", "Profile id is required")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, apperrors.ValidationField("email", "Email is required")
	}

	createdAt := r.timeProvider.Now().UTC()
	var out model.Profile
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileInsertQuery,
			req.ID,
			strings.ToLower(strings.TrimSpace(req.Email)),
			strings.TrimSpace(req.FullName),
			createdAt,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Profile])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// Update applies changes. updated_at always moves strictly forward, even when
// two writes land within the clock's resolution.
func (r *ProfileRepo) Update(ctx context.Context, id string, changes model.ProfileChanges) (*model.Profile, error) {
	setClause, args := r.buildUpdateClause(changes)
	args = append(args, id)
	query := "UPDATE user_profiles SET " + setClause +
		" WHERE id = $" + strconv.Itoa(len(args)) +
		" RETURNING " + profileColumns

	var out model.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		var e error
		out, e = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Profile])
		return e
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// buildUpdateClause builds the SQL SET clause and args for the changes.
// The clause always bumps updated_at.
func (r *ProfileRepo) buildUpdateClause(c model.ProfileChanges) (string, []any) {
	setParts := make([]string, 0, 6)
	args := make([]any, 0, 7)
	nextIdx := func() int { return len(args) + 1 }

	if c.FullName != nil {
		setParts = append(setParts, fmt.Sprintf("full_name = $%d", nextIdx()))
		args = append(args, *c.FullName)
	}
	if c.Phone != nil {
		setParts = append(setParts, fmt.Sprintf("phone = $%d", nextIdx()))
		args = append(args, *c.Phone)
	}
	if c.Bio != nil {
		setParts = append(setParts, fmt.Sprintf("bio = $%d", nextIdx()))
		args = append(args, *c.Bio)
	}
	if c.AvatarURL != nil {
		setParts = append(setParts, fmt.Sprintf("avatar_url = $%d", nextIdx()))
		args = append(args, *c.AvatarURL)
	}
	if c.IsAdmin != nil {
		setParts = append(setParts, fmt.Sprintf("is_admin = $%d", nextIdx()))
		args = append(args, *c.IsAdmin)
	}
	setParts = append(setParts, fmt.Sprintf(
		"updated_at = GREATEST($%d, updated_at + interval '1 microsecond')", nextIdx()))
	args = append(args, r.timeProvider.Now().UTC())

	return strings.Join(setParts, ", "), args
}

// Delete removes a profile. A missing row is reported as not found.
func (r *ProfileRepo) Delete(ctx context.Context, id string) error {
	var rows int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM user_profiles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		rows = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("delete profile: %w", err))
	}
	if rows == 0 {
		return apperrors.NotFound("Profile not found")
	}
	return nil
}

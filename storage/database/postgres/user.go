package pgrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/user"
)

const (
	userColumns = `id, name, email, role, institution, email_verified, is_active, password_hash,
		verification_token_hash, verification_token_expiry, reset_token_hash, reset_token_expiry,
		created_at, updated_at, last_login`

	insertUserQuery = `INSERT INTO users (name, email, role, institution, email_verified, is_active, password_hash,
		verification_token_hash, verification_token_expiry, reset_token_hash, reset_token_expiry,
		created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`

	updateUserQuery = `UPDATE users SET name = $2, email = $3, role = $4, institution = $5, email_verified = $6,
		is_active = $7, password_hash = $8, verification_token_hash = $9, verification_token_expiry = $10,
		reset_token_hash = $11, reset_token_expiry = $12, created_at = $13, updated_at = $14, last_login = $15
		WHERE id = $1`

	uniqueViolation = "23505"
)

// orderable maps the API field names to their column
var orderable = map[string]string{
	"id":            "id",
	"name":          "name",
	"email":         "email",
	"role":          "role",
	"institution":   "institution",
	"isActive":      "is_active",
	"emailVerified": "email_verified",
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"lastLogin":     "last_login",
}

type userRow struct {
	ID                      int         `db:"id"`
	Name                    string      `db:"name"`
	Email                   string      `db:"email"`
	Role                    string      `db:"role"`
	Institution             string      `db:"institution"`
	EmailVerified           bool        `db:"email_verified"`
	IsActive                bool        `db:"is_active"`
	PasswordHash            []byte      `db:"password_hash"`
	VerificationTokenHash   null.String `db:"verification_token_hash"`
	VerificationTokenExpiry null.Time   `db:"verification_token_expiry"`
	ResetTokenHash          null.String `db:"reset_token_hash"`
	ResetTokenExpiry        null.Time   `db:"reset_token_expiry"`
	CreatedAt               time.Time   `db:"created_at"`
	UpdatedAt               time.Time   `db:"updated_at"`
	LastLogin               null.Time   `db:"last_login"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func toRow(usr user.User) userRow {
	return userRow{
		ID:                      usr.ID,
		Name:                    usr.Name,
		Email:                   usr.Email,
		Role:                    usr.Role,
		Institution:             usr.Institution,
		EmailVerified:           usr.EmailVerified,
		IsActive:                usr.IsActive,
		PasswordHash:            usr.PasswordHash,
		VerificationTokenHash:   null.NewString(usr.VerificationTokenHash, usr.VerificationTokenHash != ""),
		VerificationTokenExpiry: null.NewTime(usr.VerificationTokenExpiry.UTC(), !usr.VerificationTokenExpiry.IsZero()),
		ResetTokenHash:          null.NewString(usr.ResetTokenHash, usr.ResetTokenHash != ""),
		ResetTokenExpiry:        null.NewTime(usr.ResetTokenExpiry.UTC(), !usr.ResetTokenExpiry.IsZero()),
		CreatedAt:               usr.CreatedAt.UTC(),
		UpdatedAt:               usr.UpdatedAt.UTC(),
		LastLogin:               null.NewTime(usr.LastLogin.Time.UTC(), usr.LastLogin.Valid),
	}
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:                      r.ID,
		Name:                    r.Name,
		Email:                   r.Email,
		Role:                    r.Role,
		Institution:             r.Institution,
		EmailVerified:           r.EmailVerified,
		IsActive:                r.IsActive,
		PasswordHash:            r.PasswordHash,
		VerificationTokenHash:   r.VerificationTokenHash.String,
		VerificationTokenExpiry: r.VerificationTokenExpiry.Time,
		ResetTokenHash:          r.ResetTokenHash.String,
		ResetTokenExpiry:        r.ResetTokenExpiry.Time,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
		LastLogin:               r.LastLogin,
	}
}

func (r userRow) args() []interface{} {
	return []interface{}{
		r.Name, r.Email, r.Role, r.Institution, r.EmailVerified, r.IsActive, r.PasswordHash,
		r.VerificationTokenHash, r.VerificationTokenExpiry, r.ResetTokenHash, r.ResetTokenExpiry,
		r.CreatedAt, r.UpdatedAt, r.LastLogin,
	}
}

// trapErr maps psql "no rows" err to user.ErrNotFound & unique violations to user.ErrEmailExists
func trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return user.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	ids := make([]int64, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, int64(u.ID))
	}

	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND NOT (id = ANY($2)))`
	if err := repo.db.GetContext(ctx, &exists, q, email, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := toRow(usr)
	if err := repo.db.QueryRowxContext(ctx, insertUserQuery, row.args()...).Scan(&usr.ID); err != nil {
		return user.User{}, trapErr(err, "inserting user")
	}
	return usr, nil
}

// search keywords match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		// users with Name, Email or Institution matching the search keyword
		if filter.Search != "" {
			p := arg("%" + likeEscaper.Replace(filter.Search) + "%")
			where = append(where, fmt.Sprintf(
				`(name ILIKE %[1]s ESCAPE '\' OR email ILIKE %[1]s ESCAPE '\' OR institution ILIKE %[1]s ESCAPE '\')`, p))
		}
		if len(filter.Roles) > 0 {
			where = append(where, "role = ANY("+arg(pq.Array(filter.Roles))+")")
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = "+arg(*filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + orderBy(ordering)

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func orderBy(ordering []core.DBOrdering) string {
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := orderable[ord.Field]; ok {
			orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "created_at DESC")
	}
	return strings.Join(append(orderList, "id ASC"), ", ")
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		col string
		val interface{}
	)
	switch {
	case filter.ID != 0:
		col, val = "id", filter.ID
	case filter.Email != "":
		col, val = "email", filter.Email
	case filter.ResetTokenHash != "":
		col, val = "reset_token_hash", filter.ResetTokenHash
	case filter.VerificationTokenHash != "":
		col, val = "verification_token_hash", filter.VerificationTokenHash
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := "SELECT " + userColumns + " FROM users WHERE " + col + " = $1 LIMIT 1"
	if err := repo.db.GetContext(ctx, &row, q, val); err != nil {
		return user.User{}, trapErr(err, "finding user by "+col)
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := toRow(usr)
	args := append([]interface{}{row.ID}, row.args()...)
	res, err := repo.db.ExecContext(ctx, updateUserQuery, args...)
	if err != nil {
		return user.User{}, trapErr(err, "updating user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsers(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	pks := make([]int64, 0, len(ids))
	for _, id := range ids {
		pks = append(pks, int64(id))
	}
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM users WHERE id = ANY($1)", pq.Array(pks)); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

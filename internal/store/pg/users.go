package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"resumatch.org/internal/identity"
)

type users Store

func (u *users) Create(ctx context.Context, user *identity.User) error {
	_, err := u.db.ExecContext(ctx, `
		insert into users(id, email, full_name, password_hash, status, email_verified)
		values ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Email, user.FullName, user.PasswordHash, string(user.Status), user.EmailVerified)
	if err != nil && strings.Contains(err.Error(), "users_email_key") {
		return identity.ErrAlreadyExists
	}
	return err
}

func scanUser(row *sql.Row) (*identity.User, error) {
	var user identity.User
	var status string
	err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash,
		&status, &user.EmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Status = identity.UserStatus(status)
	return &user, nil
}

const userColumns = `id, email, full_name, password_hash, status, email_verified, created_at, updated_at`

func (u *users) Find(ctx context.Context, id string) (*identity.User, error) {
	return scanUser(u.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (u *users) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	return scanUser(u.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (u *users) MarkEmailVerified(ctx context.Context, id string) error {
	res, err := u.db.ExecContext(ctx, `
		update users set email_verified=true, updated_at=now() where id=$1
	`, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (u *users) Activate(ctx context.Context, id, passwordHash string) error {
	res, err := u.db.ExecContext(ctx, `
		update users
		set password_hash=$2, status=$3, email_verified=true, updated_at=now()
		where id=$1
	`, id, passwordHash, string(identity.StatusActive))
	if err != nil {
		return err
	}
	return oneRow(res)
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

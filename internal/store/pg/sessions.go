package pg

import (
	"context"
	"database/sql"
	"errors"

	"resumatch.org/internal/identity"
)

type sessions Store

func (s *sessions) Create(ctx context.Context, sess *identity.TokenSession) error {
	_, err := s.db.ExecContext(ctx, `
		insert into token_sessions(id, user_id, session_id, access_token, refresh_token, expires_at)
		values ($1,$2,$3,$4,$5,$6)
	`, sess.ID, sess.UserID, sess.SessionID, sess.AccessToken, sess.RefreshToken, sess.ExpiresAt)
	return err
}

const sessionColumns = `id, user_id, session_id, access_token, refresh_token, expires_at, created_at, updated_at`

func scanSession(row *sql.Row) (*identity.TokenSession, error) {
	var sess identity.TokenSession
	err := row.Scan(&sess.ID, &sess.UserID, &sess.SessionID, &sess.AccessToken,
		&sess.RefreshToken, &sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessions) FindByAccessToken(ctx context.Context, token string) (*identity.TokenSession, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from token_sessions where access_token=$1`, token))
}

func (s *sessions) FindByRefreshToken(ctx context.Context, token string) (*identity.TokenSession, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from token_sessions where refresh_token=$1`, token))
}

// UpdateAccessToken rewrites the access token in place. Concurrent rotations
// on one session each overwrite the column; the last writer wins and earlier
// access tokens simply stop matching.
func (s *sessions) UpdateAccessToken(ctx context.Context, sessionID, accessToken string) error {
	res, err := s.db.ExecContext(ctx, `
		update token_sessions set access_token=$2, updated_at=now() where session_id=$1
	`, sessionID, accessToken)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (s *sessions) DeleteByRefreshToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from token_sessions where refresh_token=$1`, token)
	return err
}

package pg

import (
	"context"
	"database/sql"
	"errors"

	"resumatch.org/internal/identity"
)

type challenges Store

// Upsert relies on the unique index over (user_id, challenge_type, channel):
// a concurrent issuance converges on one row with the latest code and secret,
// counters reset.
func (c *challenges) Upsert(ctx context.Context, ch *identity.SecurityChallenge) error {
	_, err := c.db.ExecContext(ctx, `
		insert into security_challenges
			(id, user_id, challenge_type, channel, otp_hash, anchor_secret,
			 expires_at, otp_requested_at, tries, resend_count)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		on conflict (user_id, challenge_type, channel) do update
		set otp_hash = excluded.otp_hash,
		    anchor_secret = excluded.anchor_secret,
		    expires_at = excluded.expires_at,
		    otp_requested_at = excluded.otp_requested_at,
		    tries = excluded.tries,
		    resend_count = excluded.resend_count,
		    updated_at = now()
	`, ch.ID, ch.UserID, string(ch.Type), string(ch.Channel), ch.OtpHash,
		nullString(ch.Secret), ch.ExpiresAt, ch.OtpRequestedAt, ch.Tries, ch.ResendCount)
	return err
}

func (c *challenges) Create(ctx context.Context, ch *identity.SecurityChallenge) error {
	_, err := c.db.ExecContext(ctx, `
		insert into security_challenges
			(id, user_id, challenge_type, channel, otp_hash, anchor_secret,
			 expires_at, otp_requested_at, tries, resend_count)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, ch.ID, ch.UserID, string(ch.Type), string(ch.Channel), ch.OtpHash,
		nullString(ch.Secret), ch.ExpiresAt, ch.OtpRequestedAt, ch.Tries, ch.ResendCount)
	return err
}

const challengeColumns = `id, user_id, challenge_type, channel, otp_hash,
	coalesce(anchor_secret,''), expires_at, otp_requested_at, tries, resend_count,
	created_at, updated_at`

func scanChallenge(row *sql.Row) (*identity.SecurityChallenge, error) {
	var ch identity.SecurityChallenge
	var typ, channel string
	err := row.Scan(&ch.ID, &ch.UserID, &typ, &channel, &ch.OtpHash, &ch.Secret,
		&ch.ExpiresAt, &ch.OtpRequestedAt, &ch.Tries, &ch.ResendCount,
		&ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ch.Type = identity.ChallengeType(typ)
	ch.Channel = identity.Channel(channel)
	return &ch, nil
}

func (c *challenges) Find(ctx context.Context, userID string, typ identity.ChallengeType, channel identity.Channel) (*identity.SecurityChallenge, error) {
	return scanChallenge(c.db.QueryRowContext(ctx, `
		select `+challengeColumns+`
		from security_challenges
		where user_id=$1 and challenge_type=$2 and channel=$3
	`, userID, string(typ), string(channel)))
}

func (c *challenges) FindByUser(ctx context.Context, userID string) (*identity.SecurityChallenge, error) {
	return scanChallenge(c.db.QueryRowContext(ctx, `
		select `+challengeColumns+`
		from security_challenges
		where user_id=$1
		order by updated_at desc
		limit 1
	`, userID))
}

// IncrementTries is a single conditional update so the counter survives even
// when the surrounding verification fails and no transaction commits.
func (c *challenges) IncrementTries(ctx context.Context, userID string, typ identity.ChallengeType, channel identity.Channel) error {
	res, err := c.db.ExecContext(ctx, `
		update security_challenges
		set tries = tries + 1, updated_at = now()
		where user_id=$1 and challenge_type=$2 and channel=$3
	`, userID, string(typ), string(channel))
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (c *challenges) Clear(ctx context.Context, userID string, typ identity.ChallengeType, channel identity.Channel) error {
	res, err := c.db.ExecContext(ctx, `
		update security_challenges
		set otp_hash='', anchor_secret=null, expires_at=null,
		    otp_requested_at=null, tries=0, resend_count=0, updated_at=now()
		where user_id=$1 and challenge_type=$2 and channel=$3
	`, userID, string(typ), string(channel))
	if err != nil {
		return err
	}
	return oneRow(res)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

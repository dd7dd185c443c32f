package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go-mod.ewintr.nl/ytdigest/model"
)

const recordColumns = `video_id, channel_id, title, published_at, status, attempt_count,
last_attempted_at, last_error, result_summary, digest_id, created_at, updated_at`

// SQLStore implements Store on PostgreSQL and SQLite. Every state change is a
// single conditional UPDATE, so concurrent runs can share one database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := migrate(ctx, db, dialect, migrations); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.ProcessingRecord, error) {
	var (
		rec                               model.ProcessingRecord
		videoID, channelID, status        string
		publishedAt, createdAt, updatedAt string
		lastAttemptedAt, digestID         sql.NullString
	)
	if err := row.Scan(&videoID, &channelID, &rec.Title, &publishedAt, &status, &rec.AttemptCount,
		&lastAttemptedAt, &rec.LastError, &rec.ResultSummary, &digestID, &createdAt, &updatedAt); err != nil {
		return model.ProcessingRecord{}, err
	}
	rec.VideoID = model.YoutubeVideoID(videoID)
	rec.ChannelID = model.YoutubeChannelID(channelID)
	rec.Status = model.RecordStatus(status)

	var err error
	if rec.PublishedAt, err = parseTime(publishedAt); err != nil {
		return model.ProcessingRecord{}, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.ProcessingRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.ProcessingRecord{}, err
	}
	if rec.LastAttemptedAt, err = parseNullTime(lastAttemptedAt); err != nil {
		return model.ProcessingRecord{}, err
	}
	if digestID.Valid && digestID.String != "" {
		id, err := uuid.Parse(digestID.String)
		if err != nil {
			return model.ProcessingRecord{}, fmt.Errorf("invalid digest id %q: %w", digestID.String, err)
		}
		rec.DigestID = &id
	}

	return rec, nil
}

func (s *SQLStore) Get(ctx context.Context, videoID model.YoutubeVideoID) (model.ProcessingRecord, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+recordColumns+`
FROM video_record WHERE video_id = ?`), string(videoID))
	rec, err := scanRecord(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.ProcessingRecord{}, fmt.Errorf("video %s: %w", videoID, model.ErrNotFound)
	case err != nil:
		return model.ProcessingRecord{}, err
	}

	return rec, nil
}

func (s *SQLStore) CreatePending(ctx context.Context, video model.VideoRef, now time.Time) (model.ProcessingRecord, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`INSERT INTO video_record
(video_id, channel_id, title, published_at, status, attempt_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, ?, ?)
ON CONFLICT (video_id) DO NOTHING`),
		string(video.ID), string(video.ChannelID), video.Title, formatTime(video.PublishedAt),
		string(model.StatusPending), formatTime(now), formatTime(now))
	if err != nil {
		return model.ProcessingRecord{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.ProcessingRecord{}, err
	}
	if n == 0 {
		return model.ProcessingRecord{}, &model.DuplicateKeyError{VideoID: video.ID}
	}

	now = now.UTC()
	return model.ProcessingRecord{
		VideoID:     video.ID,
		ChannelID:   video.ChannelID,
		Title:       video.Title,
		PublishedAt: video.PublishedAt.UTC(),
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *SQLStore) MarkProcessing(ctx context.Context, videoID model.YoutubeVideoID, maxAttempts int, now time.Time) (bool, error) {
	query := `UPDATE video_record
SET status = ?, last_attempted_at = ?, updated_at = ?
WHERE video_id = ? AND status IN (?, ?)`
	args := []any{string(model.StatusProcessing), formatTime(now), formatTime(now),
		string(videoID), string(model.StatusPending), string(model.StatusFailed)}
	if maxAttempts > 0 {
		query += ` AND attempt_count < ?`
		args = append(args, maxAttempts)
	}

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (s *SQLStore) MarkSucceeded(ctx context.Context, videoID model.YoutubeVideoID, summary string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE video_record
SET status = ?, result_summary = ?, last_error = '', updated_at = ?
WHERE video_id = ? AND status = ?`),
		string(model.StatusSucceeded), summary, formatTime(now), string(videoID), string(model.StatusProcessing))
	if err != nil {
		return err
	}

	return s.checkTransition(ctx, res, videoID, model.StatusSucceeded)
}

func (s *SQLStore) MarkFailed(ctx context.Context, videoID model.YoutubeVideoID, reason string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE video_record
SET status = ?, attempt_count = attempt_count + 1, last_error = ?, updated_at = ?
WHERE video_id = ? AND status = ?`),
		string(model.StatusFailed), reason, formatTime(now), string(videoID), string(model.StatusProcessing))
	if err != nil {
		return err
	}

	return s.checkTransition(ctx, res, videoID, model.StatusFailed)
}

func (s *SQLStore) checkTransition(ctx context.Context, res sql.Result, videoID model.YoutubeVideoID, to model.RecordStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	rec, err := s.Get(ctx, videoID)
	if err != nil {
		return err
	}
	return &model.InvalidTransitionError{VideoID: videoID, From: rec.Status, To: to}
}

func (s *SQLStore) FindByStatus(ctx context.Context, statuses ...model.RecordStatus) ([]model.ProcessingRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM video_record`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY published_at, video_id`

	return s.queryRecords(ctx, s.db, query, args...)
}

func (s *SQLStore) FindRetryable(ctx context.Context, maxAttempts int) ([]model.ProcessingRecord, error) {
	return s.queryRecords(ctx, s.db, `SELECT `+recordColumns+` FROM video_record
WHERE status = ? OR (status = ? AND attempt_count < ?)
ORDER BY published_at, video_id`,
		string(model.StatusPending), string(model.StatusFailed), maxAttempts)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLStore) queryRecords(ctx context.Context, q querier, query string, args ...any) ([]model.ProcessingRecord, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.ProcessingRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *SQLStore) ResetStale(ctx context.Context, cutoff, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE video_record
SET status = ?, attempt_count = attempt_count + 1, last_error = ?, updated_at = ?
WHERE status = ? AND last_attempted_at < ?`),
		string(model.StatusFailed), model.ReasonInterrupted, formatTime(now),
		string(model.StatusProcessing), formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()

	return int(n), err
}

func (s *SQLStore) HighWaterMark(ctx context.Context, channelID model.YoutubeChannelID) (time.Time, bool, error) {
	var mark string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT high_water_mark
FROM channel_state WHERE channel_id = ?`), string(channelID)).Scan(&mark)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, err
	}

	t, err := parseTime(mark)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// AdvanceHighWaterMark never moves a mark backwards.
func (s *SQLStore) AdvanceHighWaterMark(ctx context.Context, channelID model.YoutubeChannelID, mark, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`INSERT INTO channel_state
(channel_id, high_water_mark, updated_at) VALUES (?, ?, ?)
ON CONFLICT (channel_id) DO UPDATE
SET high_water_mark = excluded.high_water_mark, updated_at = excluded.updated_at
WHERE channel_state.high_water_mark < excluded.high_water_mark`),
		string(channelID), formatTime(mark), formatTime(now))

	return err
}

// ClaimDigest creates digest claim.ID and moves into it every succeeded
// record that is not part of a digest yet and either belongs to this run or
// was orphaned before claim.OrphanCutoff, plus the items of all failed
// digests. Every move is conditional, so a record ends up in exactly one
// digest. When nothing was claimed the transaction is rolled back and an
// empty digest is returned.
func (s *SQLStore) ClaimDigest(ctx context.Context, claim DigestClaim) (model.RunDigest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.RunDigest{}, err
	}
	defer tx.Rollback()

	id := claim.ID.String()
	now := formatTime(claim.Now)
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO digest
(id, status, attempt_count, created_at, claimed_at) VALUES (?, ?, 0, ?, ?)`),
		id, string(model.DigestDelivering), now, now); err != nil {
		return model.RunDigest{}, fmt.Errorf("insert digest: %w", err)
	}

	query := `UPDATE video_record SET digest_id = ?, updated_at = ?
WHERE status = ? AND digest_id IS NULL AND (updated_at < ?`
	args := []any{id, now, string(model.StatusSucceeded), formatTime(claim.OrphanCutoff)}
	if len(claim.VideoIDs) > 0 {
		query += ` OR video_id IN (` + placeholders(len(claim.VideoIDs)) + `)`
		for _, vid := range claim.VideoIDs {
			args = append(args, string(vid))
		}
	}
	query += `)`
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(query), args...); err != nil {
		return model.RunDigest{}, fmt.Errorf("claim records: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`UPDATE digest SET status = ?, merged_into = ?
WHERE status = ? AND id <> ?`),
		string(model.DigestMerged), id, string(model.DigestFailed), id); err != nil {
		return model.RunDigest{}, fmt.Errorf("merge failed digests: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`UPDATE video_record SET digest_id = ?
WHERE digest_id IN (SELECT id FROM digest WHERE merged_into = ?)`), id, id); err != nil {
		return model.RunDigest{}, fmt.Errorf("move merged items: %w", err)
	}

	records, err := s.queryRecords(ctx, tx, `SELECT `+recordColumns+` FROM video_record
WHERE digest_id = ? ORDER BY published_at, video_id`, id)
	if err != nil {
		return model.RunDigest{}, fmt.Errorf("load digest items: %w", err)
	}
	if len(records) == 0 {
		return model.RunDigest{}, nil
	}
	if err := tx.Commit(); err != nil {
		return model.RunDigest{}, err
	}

	digest := model.RunDigest{
		ID:        claim.ID,
		CreatedAt: claim.Now.UTC(),
		Items:     make([]model.DigestItem, 0, len(records)),
	}
	for _, rec := range records {
		digest.Items = append(digest.Items, model.NewDigestItem(rec))
	}

	return digest, nil
}

func (s *SQLStore) MarkDigestDelivered(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.finishDigest(ctx, id, model.DigestDelivered, "", now)
}

func (s *SQLStore) MarkDigestFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	return s.finishDigest(ctx, id, model.DigestFailed, reason, now)
}

func (s *SQLStore) finishDigest(ctx context.Context, id uuid.UUID, status model.DigestStatus, reason string, now time.Time) error {
	var deliveredAt sql.NullString
	if status == model.DigestDelivered {
		deliveredAt = sql.NullString{String: formatTime(now), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE digest
SET status = ?, attempt_count = attempt_count + 1, last_error = ?, delivered_at = ?
WHERE id = ? AND status = ?`),
		string(status), reason, deliveredAt, id.String(), string(model.DigestDelivering))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("digest %s is not being delivered", id)
	}

	return nil
}

func (s *SQLStore) FindDigest(ctx context.Context, id uuid.UUID) (model.Digest, error) {
	var (
		d                                  model.Digest
		rawID, status, createdAt           string
		claimedAt, deliveredAt, mergedInto sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT id, status, attempt_count, last_error,
created_at, claimed_at, delivered_at, merged_into FROM digest WHERE id = ?`), id.String()).
		Scan(&rawID, &status, &d.AttemptCount, &d.LastError, &createdAt, &claimedAt, &deliveredAt, &mergedInto)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Digest{}, fmt.Errorf("digest %s: %w", id, model.ErrNotFound)
	case err != nil:
		return model.Digest{}, err
	}

	if d.ID, err = uuid.Parse(rawID); err != nil {
		return model.Digest{}, err
	}
	d.Status = model.DigestStatus(status)
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Digest{}, err
	}
	if d.ClaimedAt, err = parseNullTime(claimedAt); err != nil {
		return model.Digest{}, err
	}
	if d.DeliveredAt, err = parseNullTime(deliveredAt); err != nil {
		return model.Digest{}, err
	}
	if mergedInto.Valid && strings.TrimSpace(mergedInto.String) != "" {
		mid, err := uuid.Parse(mergedInto.String)
		if err != nil {
			return model.Digest{}, err
		}
		d.MergedInto = &mid
	}

	return d, nil
}

func (s *SQLStore) ResetStaleDigests(ctx context.Context, cutoff, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE digest
SET status = ?, attempt_count = attempt_count + 1, last_error = ?
WHERE status = ? AND claimed_at < ?`),
		string(model.DigestFailed), model.ReasonInterrupted, string(model.DigestDelivering), formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()

	return int(n), err
}

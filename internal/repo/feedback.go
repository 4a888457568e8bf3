package repo

import (
	"context"
	"database/sql"

	"relaydesk/internal/domain"
)

func (r Repo) InsertFeedback(ctx context.Context, tx *sql.Tx, f domain.FeedbackEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO feedback_entries(id,shared_id,author_ref,author_role,text,submitted_at) VALUES (?,?,?,?,?,?)`,
		f.ID, f.SharedID, f.AuthorRef, f.AuthorRole, f.Text, f.SubmittedAt)
	return err
}

func (r Repo) GetFeedback(ctx context.Context, id string) (domain.FeedbackEntry, error) {
	var f domain.FeedbackEntry
	var edited sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,shared_id,author_ref,author_role,text,submitted_at,edited_at FROM feedback_entries WHERE id=?`, id).
		Scan(&f.ID, &f.SharedID, &f.AuthorRef, &f.AuthorRole, &f.Text, &f.SubmittedAt, &edited)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if err != nil {
		return f, err
	}
	if edited.Valid {
		f.EditedAt = &edited.String
	}
	f.Replies, err = r.listReplies(ctx, f.ID)
	return f, err
}

// ListFeedback returns all entries on a shared task in submission order, with
// replies attached in posting order.
func (r Repo) ListFeedback(ctx context.Context, sharedID string) ([]domain.FeedbackEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,shared_id,author_ref,author_role,text,submitted_at,edited_at FROM feedback_entries WHERE shared_id=? ORDER BY submitted_at ASC, id ASC`, sharedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FeedbackEntry
	for rows.Next() {
		var f domain.FeedbackEntry
		var edited sql.NullString
		if err := rows.Scan(&f.ID, &f.SharedID, &f.AuthorRef, &f.AuthorRole, &f.Text, &f.SubmittedAt, &edited); err != nil {
			return nil, err
		}
		if edited.Valid {
			f.EditedAt = &edited.String
		}
		res = append(res, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Replies, err = r.listReplies(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) listReplies(ctx context.Context, entryID string) ([]domain.Reply, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,entry_id,author_ref,author_role,text,replied_at FROM feedback_replies WHERE entry_id=? ORDER BY replied_at ASC, id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reply
	for rows.Next() {
		var rp domain.Reply
		if err := rows.Scan(&rp.ID, &rp.EntryID, &rp.AuthorRef, &rp.AuthorRole, &rp.Text, &rp.RepliedAt); err != nil {
			return nil, err
		}
		res = append(res, rp)
	}
	return res, rows.Err()
}

func (r Repo) InsertReply(ctx context.Context, tx *sql.Tx, rp domain.Reply) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO feedback_replies(id,entry_id,author_ref,author_role,text,replied_at) VALUES (?,?,?,?,?,?)`,
		rp.ID, rp.EntryID, rp.AuthorRef, rp.AuthorRole, rp.Text, rp.RepliedAt)
	return err
}

func (r Repo) UpdateFeedbackText(ctx context.Context, tx *sql.Tx, id, text, editedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE feedback_entries SET text=?, edited_at=? WHERE id=?`, text, editedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteFeedback(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM feedback_entries WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

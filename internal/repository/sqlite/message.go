package sqlite

import (
	"context"
	"fmt"

	"github.com/shiftline/marketplace/pkg/models"
)

func (r *SQLiteRepo) CreateMessage(ctx context.Context, m *models.Message) (int64, error) {
	if m == nil {
		return 0, fmt.Errorf("message is nil")
	}
	if m.Kind == "" {
		m.Kind = models.MessageUser
	}
	if m.Created == 0 {
		m.Created = now()
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO messages (conversation_id, sender_id, content, kind, created, read) VALUES (?, ?, ?, ?, ?, 0)`,
		m.ConversationID, m.SenderID, m.Content, string(m.Kind), m.Created)
	if err != nil {
		return 0, storeErr("create message", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) ListByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.conn.QueryRows(ctx, `SELECT id, conversation_id, sender_id, content, kind, created, read FROM messages WHERE conversation_id = ? ORDER BY created ASC, id ASC LIMIT ? OFFSET ?`, conversationID, limit, offset)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var kind string
		var read int
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &kind, &m.Created, &read); err != nil {
			return nil, storeErr("scan message", err)
		}
		m.Kind = models.MessageKind(kind)
		m.Read = read != 0
		out = append(out, m)
	}
	return out, nil
}

func (r *SQLiteRepo) MarkRead(ctx context.Context, conversationID, readerID int64) error {
	if _, err := r.conn.Exec(ctx, `UPDATE messages SET read = 1 WHERE conversation_id = ? AND sender_id != ? AND read = 0`, conversationID, readerID); err != nil {
		return storeErr("mark read", err)
	}
	return nil
}

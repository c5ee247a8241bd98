package persist

import (
	"time"

	"github.com/lfmartins/courier/internal/chat"
)

// SaveMessage inserts or updates a message (idempotent on id).
func (db *DB) SaveMessage(m chat.Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, body, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			status = excluded.status`,
		m.ID, m.ConversationID, m.SenderID, m.SenderName, m.Text, string(m.Status), m.CreatedAt.UnixMilli())
	return err
}

// UpdateStatus records a delivery-state change for a stored message.
func (db *DB) UpdateStatus(messageID string, status chat.Status) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE id = ?`, string(status), messageID)
	return err
}

// DeleteConversation removes a conversation and all of its messages.
func (db *DB) DeleteConversation(conversationID string) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID)
	return err
}

// LoadMessages returns every stored message in creation order.
func (db *DB) LoadMessages() ([]chat.Message, error) {
	rows, err := db.Query(`
		SELECT id, conversation_id, sender_id, sender_name, body, status, created_at
		FROM messages
		ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var status string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Text, &status, &createdAt); err != nil {
			return nil, err
		}
		m.Status = chat.Status(status)
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

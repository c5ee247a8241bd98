package persist

import (
	"strings"
	"time"

	"github.com/lfmartins/courier/internal/chat"
)

// SaveConversation inserts or updates conversation metadata.
func (db *DB) SaveConversation(c chat.Conversation) error {
	_, err := db.Exec(`
		INSERT INTO conversations (id, kind, display_name, member_ids, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			member_ids = excluded.member_ids`,
		c.ID, string(c.Kind), c.DisplayName, strings.Join(c.MemberIDs, ","), c.CreatedAt.UnixMilli())
	return err
}

// LoadConversations returns every stored conversation.
func (db *DB) LoadConversations() ([]chat.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, kind, display_name, member_ids, created_at
		FROM conversations
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []chat.Conversation
	for rows.Next() {
		var c chat.Conversation
		var kind, members string
		var createdAt int64
		if err := rows.Scan(&c.ID, &kind, &c.DisplayName, &members, &createdAt); err != nil {
			return nil, err
		}
		c.Kind = chat.Kind(kind)
		if members != "" {
			c.MemberIDs = strings.Split(members, ",")
		}
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

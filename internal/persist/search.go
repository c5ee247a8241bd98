package persist

import (
	"time"

	"github.com/lfmartins/courier/internal/chat"
)

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message chat.Message
	Snippet string
}

// SearchMessages performs a full-text search on message bodies.
func (db *DB) SearchMessages(query string, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.conversation_id, m.sender_id, m.sender_name, m.body, m.status, m.created_at,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if conversationID != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var status string
		var createdAt int64
		if err := rows.Scan(
			&r.Message.ID, &r.Message.ConversationID, &r.Message.SenderID,
			&r.Message.SenderName, &r.Message.Text, &status, &createdAt, &r.Snippet,
		); err != nil {
			return nil, err
		}
		r.Message.Status = chat.Status(status)
		r.Message.CreatedAt = time.UnixMilli(createdAt).UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}

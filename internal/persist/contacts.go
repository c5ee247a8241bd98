package persist

import (
	"time"

	"github.com/lfmartins/courier/internal/directory"
)

// SaveContact inserts or updates an address-book entry. Presence is a
// live signal and is not persisted, only the last-seen timestamp.
func (db *DB) SaveContact(c directory.Contact) error {
	var lastSeen int64
	if !c.LastSeen.IsZero() {
		lastSeen = c.LastSeen.UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO contacts (id, name, phone_number, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone_number = excluded.phone_number,
			last_seen = excluded.last_seen`,
		c.ID, c.Name, c.PhoneNumber, lastSeen, time.Now().UnixMilli())
	return err
}

// DeleteContact removes an address-book entry.
func (db *DB) DeleteContact(id string) error {
	_, err := db.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	return err
}

// LoadContacts returns every stored contact.
func (db *DB) LoadContacts() ([]directory.Contact, error) {
	rows, err := db.Query(`SELECT id, name, phone_number, last_seen FROM contacts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []directory.Contact
	for rows.Next() {
		var c directory.Contact
		var lastSeen int64
		if err := rows.Scan(&c.ID, &c.Name, &c.PhoneNumber, &lastSeen); err != nil {
			return nil, err
		}
		if lastSeen > 0 {
			c.LastSeen = time.UnixMilli(lastSeen).UTC()
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

package api

import (
	"time"

	"github.com/lfmartins/courier/internal/directory"
	"github.com/lfmartins/courier/internal/persist"
	"github.com/lfmartins/courier/internal/timefmt"
	"go.uber.org/zap"
)

// ContactSummary is a display-ready address-book row.
type ContactSummary struct {
	ID          string
	Name        string
	PhoneNumber string
	Online      bool
	LastSeen    string
}

// ContactService manages the address book.
type ContactService struct {
	dir    *directory.Directory
	db     *persist.DB
	logger *zap.Logger
}

// NewContactService creates a contact service. db may be nil in tests.
func NewContactService(dir *directory.Directory, db *persist.DB, logger *zap.Logger) *ContactService {
	return &ContactService{dir: dir, db: db, logger: logger}
}

// Add creates an address-book entry.
func (s *ContactService) Add(name, phoneNumber string) (directory.Contact, error) {
	c, err := s.dir.AddContact(name, phoneNumber)
	if err != nil {
		return directory.Contact{}, err
	}
	s.save(c)
	return c, nil
}

// Update edits a contact's name and/or phone number.
func (s *ContactService) Update(id, name, phoneNumber string) (directory.Contact, error) {
	c, err := s.dir.UpdateContact(id, name, phoneNumber)
	if err != nil {
		return directory.Contact{}, err
	}
	s.save(c)
	return c, nil
}

// Delete removes a contact from the address book.
func (s *ContactService) Delete(id string) error {
	if err := s.dir.DeleteContact(id); err != nil {
		return err
	}
	if s.db != nil {
		if err := s.db.DeleteContact(id); err != nil {
			s.logger.Warn("persist contact delete", zap.String("contact", id), zap.Error(err))
		}
	}
	return nil
}

// SetPresence records a presence signal from the front end. Going
// offline stamps the contact's last-seen time, which is persisted so
// it survives a daemon restart.
func (s *ContactService) SetPresence(id string, online bool) error {
	c, err := s.dir.SetPresence(id, online)
	if err != nil {
		return err
	}
	if !online {
		s.save(c)
	}
	return nil
}

// List returns all contacts sorted by name.
func (s *ContactService) List() []ContactSummary {
	return s.summaries(s.dir.Contacts())
}

// Search filters contacts by name or phone fragment.
func (s *ContactService) Search(query string) []ContactSummary {
	return s.summaries(s.dir.SearchContacts(query))
}

func (s *ContactService) save(c directory.Contact) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveContact(c); err != nil {
		s.logger.Warn("persist contact", zap.String("contact", c.ID), zap.Error(err))
	}
}

func (s *ContactService) summaries(contacts []directory.Contact) []ContactSummary {
	now := time.Now()
	out := make([]ContactSummary, 0, len(contacts))
	for _, c := range contacts {
		sum := ContactSummary{
			ID:          c.ID,
			Name:        c.Name,
			PhoneNumber: c.PhoneNumber,
			Online:      c.Online,
		}
		if !c.LastSeen.IsZero() {
			sum.LastSeen = timefmt.LastSeen(c.LastSeen, now)
		}
		out = append(out, sum)
	}
	return out
}

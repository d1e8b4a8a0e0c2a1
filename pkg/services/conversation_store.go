package services

import (
	"maps"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
)

// DefaultConversationMaxAge is how long an untouched active interview is kept.
const DefaultConversationMaxAge = 24 * time.Hour

// ConversationStore holds active interviews between requests. Nothing is
// written to the history store until the interview ends, so dropping an entry
// discards the interview.
type ConversationStore interface {
	// Put stores a copy of conv, replacing any previous version (last write wins).
	Put(conv *models.Conversation)
	// Get returns a copy of the stored conversation.
	Get(id string) (*models.Conversation, bool)
	// Delete discards the conversation. Returns false if it was not stored.
	Delete(id string) bool
	// Prune drops conversations untouched for longer than the store's max age.
	Prune() int
}

type storedConversation struct {
	conv    *models.Conversation
	touched time.Time
}

type conversationStore struct {
	mu            sync.Mutex
	conversations map[string]storedConversation
	maxAge        time.Duration
	now           func() time.Time
}

// NewConversationStore creates a new in-memory conversation store.
func NewConversationStore(maxAge time.Duration) ConversationStore {
	if maxAge <= 0 {
		maxAge = DefaultConversationMaxAge
	}
	return &conversationStore{
		conversations: make(map[string]storedConversation),
		maxAge:        maxAge,
		now:           time.Now,
	}
}

func (s *conversationStore) Put(conv *models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = storedConversation{conv: cloneConversation(conv), touched: s.now()}
}

func (s *conversationStore) Get(id string) (*models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	return cloneConversation(entry.conv), true
}

func (s *conversationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return false
	}
	delete(s.conversations, id)
	return true
}

func (s *conversationStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.maxAge)
	pruned := 0
	for id, entry := range s.conversations {
		if entry.touched.Before(cutoff) {
			delete(s.conversations, id)
			pruned++
		}
	}
	return pruned
}

var _ ConversationStore = (*conversationStore)(nil)

func cloneConversation(c *models.Conversation) *models.Conversation {
	cp := *c
	cp.Messages = append([]models.Message(nil), c.Messages...)
	cp.Context = maps.Clone(c.Context)
	cp.Metadata = maps.Clone(c.Metadata)
	return &cp
}

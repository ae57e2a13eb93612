package contextstore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/triagecore/triagecore/pkg/models"
)

var ErrNotFound = errors.New("conversation not found")

const (
	DefaultMessageCap = 50
	DefaultRetention  = 24 * time.Hour
	DefaultSweepEvery = time.Hour
)

// entry is the mutable state for one conversation. All access goes through
// its own mutex so different conversations never contend.
type entry struct {
	mu         sync.Mutex
	messages   []models.Message
	customer   *models.Customer
	intent     models.Intent
	confidence float64
	sentiment  *models.Sentiment
	urgency    string
	metadata   map[string]string
	seq        uint64
	createdAt  time.Time
	updatedAt  time.Time
}

// Store holds per-conversation rolling state. It is the single writer for
// conversation contexts; everything it hands out is a copy.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	messageCap int
	retention  time.Duration
	sweepEvery time.Duration
	now        func() time.Time

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Store)

func WithMessageCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.messageCap = n
		}
	}
}

func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepEvery = d
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		entries:    make(map[string]*entry),
		messageCap: DefaultMessageCap,
		retention:  DefaultRetention,
		sweepEvery: DefaultSweepEvery,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// get returns the entry for id, creating it when create is set.
func (s *Store) get(id string, create bool) *entry {
	s.mu.RLock()
	e := s.entries[id]
	s.mu.RUnlock()
	if e != nil || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.entries[id]; e != nil {
		return e
	}
	now := s.now()
	e = &entry{
		metadata:  make(map[string]string),
		createdAt: now,
		updatedAt: now,
	}
	s.entries[id] = e
	return e
}

// touch advances the updated timestamp, keeping it monotonically non-decreasing.
func (e *entry) touch(now time.Time) {
	if now.After(e.updatedAt) {
		e.updatedAt = now
	}
}

// Append adds a message to the conversation, creating the context on first
// use, and returns the new per-conversation sequence number. Once the rolling
// window is full the oldest message is evicted.
func (s *Store) Append(conversationID string, sender models.Sender, body string) (models.Message, uint64) {
	e := s.get(conversationID, true)

	msg := models.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Body:      body,
		CreatedAt: s.now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
	// Defensive trim: never let the window exceed the cap, however it got there.
	if over := len(e.messages) - s.messageCap; over > 0 {
		e.messages = append([]models.Message(nil), e.messages[over:]...)
	}
	e.seq++
	e.touch(s.now())
	return msg, e.seq
}

// SetCustomer attaches or replaces customer attributes.
func (s *Store) SetCustomer(conversationID string, c models.Customer) {
	e := s.get(conversationID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	cc := c
	e.customer = &cc
	e.touch(s.now())
}

// SetAnalysis records the latest inferred intent, confidence, sentiment and
// urgency for the conversation.
func (s *Store) SetAnalysis(conversationID string, intent models.Intent, confidence float64, sentiment *models.Sentiment, urgency string) error {
	e := s.get(conversationID, false)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intent = intent
	e.confidence = confidence
	if sentiment != nil {
		sc := *sentiment
		e.sentiment = &sc
	}
	if urgency != "" {
		e.urgency = urgency
	}
	e.touch(s.now())
	return nil
}

// SetMetadata sets one free-form metadata key.
func (s *Store) SetMetadata(conversationID, key, value string) {
	e := s.get(conversationID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metadata[key] = value
	e.touch(s.now())
}

// Seq returns the current sequence number for a conversation. In-flight
// classification results carrying an older number are stale and must be
// discarded (last message wins).
func (s *Store) Seq(conversationID string) (uint64, error) {
	e := s.get(conversationID, false)
	if e == nil {
		return 0, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq, nil
}

// Snapshot returns an immutable copy of the conversation state.
func (s *Store) Snapshot(conversationID string) (*models.ConversationSnapshot, error) {
	e := s.get(conversationID, false)
	if e == nil {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	snap := &models.ConversationSnapshot{
		ConversationID: conversationID,
		Messages:       append([]models.Message(nil), e.messages...),
		Intent:         e.intent,
		Confidence:     e.confidence,
		Urgency:        e.urgency,
		Seq:            e.seq,
		CreatedAt:      e.createdAt,
		UpdatedAt:      e.updatedAt,
	}
	if e.customer != nil {
		c := *e.customer
		snap.Customer = &c
	}
	if e.sentiment != nil {
		sc := *e.sentiment
		snap.Sentiment = &sc
	}
	if len(e.metadata) > 0 {
		snap.Metadata = make(map[string]string, len(e.metadata))
		for k, v := range e.metadata {
			snap.Metadata[k] = v
		}
	}
	return snap, nil
}

// Len reports how many conversations are currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SweepOnce removes conversations inactive beyond the retention window and
// returns how many were removed. The global lock is only held to snapshot
// candidate ids; deletion happens one conversation at a time.
func (s *Store) SweepOnce(now time.Time) int {
	cutoff := now.Add(-s.retention)

	s.mu.RLock()
	candidates := make([]string, 0)
	for id, e := range s.entries {
		e.mu.Lock()
		stale := e.updatedAt.Before(cutoff)
		e.mu.Unlock()
		if stale {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range candidates {
		s.mu.Lock()
		e := s.entries[id]
		if e != nil {
			e.mu.Lock()
			// Re-check: the conversation may have been touched since the scan.
			if e.updatedAt.Before(cutoff) {
				delete(s.entries, id)
				removed++
			}
			e.mu.Unlock()
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("context sweep completed")
	}
	return removed
}

// Start launches the periodic sweep. Stop ends it; both are safe to call once.
func (s *Store) Start() {
	s.started = true
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepOnce(s.now())
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.started {
			<-s.done
		}
	})
}

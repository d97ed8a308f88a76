// Package conversation keeps the bounded, per-session chat history and the windowed view
// of it that is handed to the model.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wellnessgo/internal/models"
	"wellnessgo/internal/storage"
)

const (
	DefaultMaxMessages      = 50
	DefaultMaxContext       = 10
	DefaultMaxConversations = 10
	DefaultMaxTopics        = 10

	persistTimeout = 5 * time.Second
)

// Options bound the store. Zero fields take the defaults.
type Options struct {
	MaxMessages      int
	MaxContext       int
	MaxConversations int
	MaxTopics        int
}

func (o Options) withDefaults() Options {
	if o.MaxMessages <= 0 {
		o.MaxMessages = DefaultMaxMessages
	}
	if o.MaxContext <= 0 {
		o.MaxContext = DefaultMaxContext
	}
	if o.MaxConversations <= 0 {
		o.MaxConversations = DefaultMaxConversations
	}
	if o.MaxTopics <= 0 {
		o.MaxTopics = DefaultMaxTopics
	}
	return o
}

type persisted struct {
	Conversations []*models.Conversation `json:"conversations"`
	CurrentID     string                 `json:"currentId,omitempty"`
}

// Store holds the conversations of one session. All methods are safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	kv            storage.KV
	key           string
	opts          Options
	logger        zerolog.Logger
	now           func() time.Time
	conversations map[string]*models.Conversation
	currentID     string
}

// NewStore loads the session's conversations from kv. Missing or unreadable data yields
// an empty store.
func NewStore(ctx context.Context, kv storage.KV, sessionID string, opts Options, logger zerolog.Logger) *Store {
	s := &Store{
		kv:            kv,
		key:           storageKey(sessionID),
		opts:          opts.withDefaults(),
		logger:        logger.With().Str("component", "conversation").Logger(),
		now:           time.Now,
		conversations: make(map[string]*models.Conversation),
	}
	s.load(ctx)
	return s
}

func storageKey(sessionID string) string {
	return "conversations:" + sessionID
}

func (s *Store) load(ctx context.Context) {
	if s.kv == nil {
		return
	}
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", s.key).Msg("load conversations failed, starting empty")
		}
		return
	}
	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("stored conversations unreadable, starting empty")
		return
	}
	for _, c := range p.Conversations {
		if c == nil || c.ID == "" {
			continue
		}
		if len(c.Messages) > s.opts.MaxMessages {
			c.Messages = append([]models.ChatMessage(nil), c.Messages[len(c.Messages)-s.opts.MaxMessages:]...)
		}
		s.conversations[c.ID] = c
	}
	if _, ok := s.conversations[p.CurrentID]; ok {
		s.currentID = p.CurrentID
	}
}

// Start makes existingID the active conversation when it is still tracked, otherwise
// creates a new one. It returns the active conversation id.
func (s *Store) Start(ctx context.Context, existingID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID != "" {
		if _, ok := s.conversations[existingID]; ok {
			s.currentID = existingID
			s.persistLocked(ctx)
			return existingID
		}
	}
	id := s.startLocked()
	s.persistLocked(ctx)
	return id
}

func (s *Store) startLocked() string {
	now := s.now()
	c := &models.Conversation{
		ID:            uuid.NewString(),
		Messages:      []models.ChatMessage{},
		StartedAt:     now,
		LastMessageAt: now,
		Topics:        []string{},
	}
	s.conversations[c.ID] = c
	s.currentID = c.ID
	return c.ID
}

// AddMessage appends a message to the active conversation, starting one when needed.
func (s *Store) AddMessage(ctx context.Context, role models.Role, content string, meta *models.MessageMetadata) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.appendLocked(role, content, meta)
	s.persistLocked(ctx)
	return msg
}

// AddExchange records a user turn and its assistant reply with a single write, refreshing
// the stored summary.
func (s *Store) AddExchange(ctx context.Context, user, assistant string, meta *models.MessageMetadata) (models.ChatMessage, models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.appendLocked(models.RoleUser, user, meta)
	a := s.appendLocked(models.RoleAssistant, assistant, meta)
	if c, ok := s.conversations[s.currentID]; ok {
		c.Summary = s.summaryLocked(c)
	}
	s.persistLocked(ctx)
	return u, a
}

func (s *Store) appendLocked(role models.Role, content string, meta *models.MessageMetadata) models.ChatMessage {
	c, ok := s.conversations[s.currentID]
	if !ok {
		s.startLocked()
		c = s.conversations[s.currentID]
	}
	var metaCopy *models.MessageMetadata
	if meta != nil {
		m := *meta
		metaCopy = &m
	}
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
		Metadata:  metaCopy,
	}
	c.Messages = append(c.Messages, msg)
	if over := len(c.Messages) - s.opts.MaxMessages; over > 0 {
		c.Messages = append([]models.ChatMessage(nil), c.Messages[over:]...)
	}
	c.LastMessageAt = msg.Timestamp
	if role == models.RoleUser {
		c.Topics = mergeTopics(c.Topics, DetectTopics(content), s.opts.MaxTopics)
	}
	return msg
}

// Context returns the last MaxContext turns of the active conversation.
func (s *Store) Context() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[s.currentID]
	if !ok {
		return []models.Turn{}
	}
	msgs := c.Messages
	if len(msgs) > s.opts.MaxContext {
		msgs = msgs[len(msgs)-s.opts.MaxContext:]
	}
	turns := make([]models.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, models.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// Current returns a copy of the active conversation, or nil.
func (s *Store) Current() *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[s.currentID].Clone()
}

// All returns copies of every tracked conversation, most recently active first.
func (s *Store) All() []*models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := s.sortedLocked()
	out := make([]*models.Conversation, 0, len(sorted))
	for _, c := range sorted {
		out = append(out, c.Clone())
	}
	return out
}

func (s *Store) sortedLocked() []*models.Conversation {
	list := make([]*models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		list = append(list, c)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].LastMessageAt.Equal(list[j].LastMessageAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].LastMessageAt.After(list[j].LastMessageAt)
	})
	return list
}

// ClearCurrent forgets the active conversation.
func (s *Store) ClearCurrent(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentID == "" {
		return
	}
	delete(s.conversations, s.currentID)
	s.currentID = ""
	s.persistLocked(ctx)
}

// ClearAll forgets every conversation of the session, including the persisted copy.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make(map[string]*models.Conversation)
	s.currentID = ""
	if s.kv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.kv.Delete(ctx, s.key); err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("delete conversations failed")
	}
}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:اسمي|إسمي)\s+(?:هو\s+)?(\p{L}{2,})`),
	regexp.MustCompile(`(?i)\bmy name is\s+(\p{L}{2,})`),
	regexp.MustCompile(`(?i)\bcall me\s+(\p{L}{2,})`),
	regexp.MustCompile(`\b(?:I'm|I am|i'm|i am)\s+(\p{Lu}\p{Ll}+)`),
}

// UserName returns the first self-introduced name found in the stored user messages.
func (s *Store) UserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userNameLocked()
}

func (s *Store) userNameLocked() string {
	for _, c := range s.sortedLocked() {
		for _, m := range c.Messages {
			if m.Role != models.RoleUser {
				continue
			}
			if name := MatchName(m.Content); name != "" {
				return name
			}
		}
	}
	return ""
}

// MatchName applies the self-introduction patterns to one message.
func MatchName(text string) string {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

const noConversation = "لا توجد محادثة حالية"

// Summary renders a short templated description of the active conversation without
// storing it.
func (s *Store) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[s.currentID]
	if !ok || len(c.Messages) == 0 {
		return noConversation
	}
	return s.summaryLocked(c)
}

// GenerateSummary renders the summary and stores it on the active conversation.
func (s *Store) GenerateSummary(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[s.currentID]
	if !ok || len(c.Messages) == 0 {
		return noConversation
	}
	c.Summary = s.summaryLocked(c)
	s.persistLocked(ctx)
	return c.Summary
}

func (s *Store) summaryLocked(c *models.Conversation) string {
	var parts []string
	if name := s.userNameLocked(); name != "" {
		parts = append(parts, "المستخدم: "+name)
	}
	if len(c.Topics) > 0 {
		labels := make([]string, 0, len(c.Topics))
		for _, t := range c.Topics {
			labels = append(labels, topicLabel(t))
		}
		parts = append(parts, "المواضيع: "+strings.Join(labels, "، "))
	}
	parts = append(parts, fmt.Sprintf("عدد الرسائل: %d", len(c.Messages)))
	return strings.Join(parts, " | ")
}

// persistLocked writes the most recent conversations; failures are logged and absorbed.
func (s *Store) persistLocked(ctx context.Context) {
	sorted := s.sortedLocked()
	if len(sorted) > s.opts.MaxConversations {
		for _, c := range sorted[s.opts.MaxConversations:] {
			delete(s.conversations, c.ID)
		}
		sorted = sorted[:s.opts.MaxConversations]
		if _, ok := s.conversations[s.currentID]; !ok {
			s.currentID = ""
		}
	}
	if s.kv == nil {
		return
	}
	data, err := json.Marshal(persisted{Conversations: sorted, CurrentID: s.currentID})
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal conversations failed")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("persist conversations failed")
	}
}

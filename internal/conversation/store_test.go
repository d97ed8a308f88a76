package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellnessgo/internal/models"
	"wellnessgo/internal/storage"
)

func newTestStore(t *testing.T, kv storage.KV, opts Options) *Store {
	t.Helper()
	return NewStore(context.Background(), kv, "s1", opts, zerolog.Nop())
}

func TestAddMessageStartsConversation(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryKV(), Options{})
	ctx := context.Background()

	require.Nil(t, s.Current())
	msg := s.AddMessage(ctx, models.RoleUser, "مرحبا", nil)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, models.RoleUser, msg.Role)

	cur := s.Current()
	require.NotNil(t, cur)
	require.Len(t, cur.Messages, 1)
	assert.Equal(t, "مرحبا", cur.Messages[0].Content)
}

func TestMessagesAreBounded(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryKV(), Options{MaxMessages: 5, MaxContext: 3})
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		s.AddMessage(ctx, models.RoleUser, fmt.Sprintf("m%d", i), nil)
	}

	cur := s.Current()
	require.Len(t, cur.Messages, 5)
	assert.Equal(t, "m7", cur.Messages[0].Content)
	assert.Equal(t, "m11", cur.Messages[4].Content)

	turns := s.Context()
	require.Len(t, turns, 3)
	assert.Equal(t, "m9", turns[0].Content)
	assert.Equal(t, "m11", turns[2].Content)
}

func TestContextEmptyWithoutConversation(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	assert.Empty(t, s.Context())
}

func TestStartResumesKnownConversation(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryKV(), Options{})
	ctx := context.Background()

	first := s.Start(ctx, "")
	s.AddMessage(ctx, models.RoleUser, "hello", nil)
	second := s.Start(ctx, "")
	require.NotEqual(t, first, second)

	assert.Equal(t, first, s.Start(ctx, first))
	assert.Len(t, s.Current().Messages, 1)

	unknown := s.Start(ctx, "does-not-exist")
	assert.NotEqual(t, "does-not-exist", unknown)
}

func TestPersistAndReload(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()

	s := newTestStore(t, kv, Options{})
	u, a := s.AddExchange(ctx, "عندي أرق", "جرب روتين نوم ثابت", &models.MessageMetadata{HealthContext: true, Intent: "sleep"})
	require.Equal(t, models.RoleAssistant, a.Role)
	require.Equal(t, models.RoleUser, u.Role)

	reloaded := newTestStore(t, kv, Options{})
	cur := reloaded.Current()
	require.NotNil(t, cur)
	require.Len(t, cur.Messages, 2)
	assert.Equal(t, "جرب روتين نوم ثابت", cur.Messages[1].Content)
	require.NotNil(t, cur.Messages[1].Metadata)
	assert.Equal(t, "sleep", cur.Messages[1].Metadata.Intent)
	assert.Contains(t, cur.Topics, "sleep")
}

func TestCorruptStorageStartsEmpty(t *testing.T) {
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), storageKey("s1"), []byte("{not json")))

	s := newTestStore(t, kv, Options{})
	assert.Empty(t, s.All())
	assert.Nil(t, s.Current())
}

func TestConversationCountIsBounded(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryKV(), Options{MaxConversations: 3})
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, s.Start(ctx, ""))
		s.AddMessage(ctx, models.RoleUser, fmt.Sprintf("c%d", i), nil)
	}

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, ids[4], all[0].ID)
	assert.Equal(t, ids[2], all[2].ID)
}

func TestClearCurrentAndAll(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()
	s := newTestStore(t, kv, Options{})

	s.AddMessage(ctx, models.RoleUser, "one", nil)
	s.Start(ctx, "")
	s.AddMessage(ctx, models.RoleUser, "two", nil)

	s.ClearCurrent(ctx)
	assert.Nil(t, s.Current())
	assert.Len(t, s.All(), 1)

	s.ClearAll(ctx)
	assert.Empty(t, s.All())
	_, err := kv.Get(ctx, storageKey("s1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUserName(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()
	assert.Equal(t, "", s.UserName())

	s.AddMessage(ctx, models.RoleAssistant, "my name is Assistant", nil)
	s.AddMessage(ctx, models.RoleUser, "مرحبا، اسمي أحمد", nil)
	assert.Equal(t, "أحمد", s.UserName())

	cases := map[string]string{
		"My name is Sara and I sleep badly": "Sara",
		"call me Omar":                      "Omar",
		"I'm Layla":                         "Layla",
		"I'm tired":                         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, MatchName(in), in)
	}
}

func TestGenerateSummary(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()
	assert.Equal(t, "لا توجد محادثة حالية", s.GenerateSummary(ctx))

	s.AddMessage(ctx, models.RoleUser, "اسمي أحمد وعندي صداع", nil)
	s.AddMessage(ctx, models.RoleAssistant, "سلامتك", nil)

	summary := s.GenerateSummary(ctx)
	assert.Contains(t, summary, "أحمد")
	assert.Contains(t, summary, "الألم")
	assert.Contains(t, summary, "2")
	assert.Equal(t, summary, s.Current().Summary)
}

type countingKV struct {
	*storage.MemoryKV
	sets int
}

func (k *countingKV) Set(ctx context.Context, key string, value []byte) error {
	k.sets++
	return k.MemoryKV.Set(ctx, key, value)
}

func TestSummaryDoesNotWrite(t *testing.T) {
	kv := &countingKV{MemoryKV: storage.NewMemoryKV()}
	s := newTestStore(t, kv, Options{})
	ctx := context.Background()
	assert.Equal(t, "لا توجد محادثة حالية", s.Summary())

	s.AddExchange(ctx, "اسمي سارة وعندي أرق في النوم", "جربي روتيناً ثابتاً للنوم", nil)
	writes := kv.sets
	require.Equal(t, 1, writes)

	summary := s.Summary()
	assert.Contains(t, summary, "سارة")
	assert.Contains(t, summary, "النوم")
	assert.Equal(t, writes, kv.sets)

	// the exchange already stored the same summary
	assert.Equal(t, summary, s.Current().Summary)
}

func TestDetectTopicsAndMerge(t *testing.T) {
	assert.Equal(t, []string{"sleep", "stress"}, DetectTopics("I have insomnia and stress"))
	assert.Empty(t, DetectTopics("hello"))

	merged := mergeTopics([]string{"pain", "sleep"}, []string{"sleep", "weight"}, 3)
	assert.Equal(t, []string{"sleep", "weight", "pain"}, merged)
}

func TestRegistryReusesStores(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()
	r := NewRegistry(kv, Options{}, time.Minute, zerolog.Nop())

	a := r.Get(ctx, "a")
	assert.Same(t, a, r.Get(ctx, "a"))
	assert.NotSame(t, a, r.Get(ctx, "b"))
	assert.Equal(t, 2, r.Len())

	a.AddMessage(ctx, models.RoleUser, "kept", nil)
	r.Forget("a")
	reloaded := r.Get(ctx, "a")
	assert.NotSame(t, a, reloaded)
	require.NotNil(t, reloaded.Current())
	assert.Equal(t, "kept", reloaded.Current().Messages[0].Content)
}

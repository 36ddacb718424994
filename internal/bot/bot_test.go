package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"questbot/internal/config"
	"questbot/internal/db/models"
	"questbot/internal/quest"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeStore layers chats and ownership over quest.MemoryStore.
type fakeStore struct {
	*quest.MemoryStore
	mu      sync.Mutex
	chats   map[string]*quest.Chat
	players map[int64][]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		MemoryStore: quest.NewMemoryStore(),
		chats:       make(map[string]*quest.Chat),
		players:     make(map[int64][]uuid.UUID),
	}
}

func (f *fakeStore) GetOrCreateChat(_ context.Context, channelID, name string) (*quest.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.chats[channelID]; ok {
		return c, nil
	}
	c := &quest.Chat{ID: uuid.New(), ChannelID: channelID, Name: name}
	f.chats[channelID] = c
	return c, nil
}

func (f *fakeStore) GetChat(_ context.Context, id uuid.UUID) (*quest.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) JoinGame(ctx context.Context, chatID uuid.UUID, gameID int64) error {
	if err := f.MemoryStore.JoinGame(ctx, chatID, gameID); err != nil {
		return err
	}
	f.mu.Lock()
	f.players[gameID] = append(f.players[gameID], chatID)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) Participants(ctx context.Context, gameID int64) ([]*quest.Chat, error) {
	f.mu.Lock()
	ids := append([]uuid.UUID(nil), f.players[gameID]...)
	f.mu.Unlock()
	var out []*quest.Chat
	for _, id := range ids {
		c, _ := f.GetChat(ctx, id)
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) OwnedGames(ctx context.Context, chatID uuid.UUID) ([]models.GameListing, error) {
	var out []models.GameListing
	for _, status := range []quest.Status{quest.StatusPending, quest.StatusRunning, quest.StatusFinished} {
		games, _ := f.GamesByStatus(ctx, status)
		for _, g := range games {
			if g.OwnerChatID != chatID {
				continue
			}
			var names []string
			for _, l := range g.OrderedLevels() {
				names = append(names, l.Name)
			}
			out = append(out, models.GameListing{
				Game: models.Game{
					ID: g.ID, OwnerChatID: g.OwnerChatID, Name: g.Name,
					StartAt: g.Start, Status: string(g.Status),
				},
				LevelNames: names,
			})
		}
	}
	return out, nil
}

func (f *fakeStore) ownedGame(ctx context.Context, ownerID uuid.UUID, gameID int64) (*quest.Game, error) {
	g, err := f.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.OwnerChatID != ownerID {
		return nil, quest.ErrNotOwner
	}
	return g, nil
}

func (f *fakeStore) UpdateStart(ctx context.Context, ownerID uuid.UUID, gameID int64, start time.Time) error {
	g, err := f.ownedGame(ctx, ownerID, gameID)
	if err != nil {
		return err
	}
	if g.Status != quest.StatusPending {
		return quest.ErrNotPending
	}
	return f.SetStart(ctx, gameID, start)
}

func (f *fakeStore) DeleteGame(ctx context.Context, ownerID uuid.UUID, gameID int64) error {
	if _, err := f.ownedGame(ctx, ownerID, gameID); err != nil {
		return err
	}
	return f.MemoryStore.DeleteGame(ctx, gameID)
}

type sentMessage struct {
	channel string
	content string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{channel: channelID, content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func newTestBot(t *testing.T) (*Bot, *fakeStore, *fakeSender) {
	t.Helper()
	cfg := config.Default()
	opts, err := cfg.Game.Options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	store := newFakeStore()
	sender := &fakeSender{}
	b := &Bot{
		config:     &cfg,
		store:      store,
		engine:     quest.NewEngine(store, quest.NewMemoryLedger(), opts),
		location:   time.UTC,
		sender:     sender,
		now:        func() time.Time { return t0 },
		shutdownCh: make(chan struct{}),
	}
	return b, store, sender
}

const definition = `
name: Night run
start: "2024-05-01 12:00"
levels:
  - name: Warm up
    task: Find the red door
    duration: 10
    to_pass: 2
    codes: [alpha, {code: beta, bonus: 2}, gamma]
  - name: Finale
    task: Finish
    duration: 20
    codes: [omega]
`

func uploadGame(t *testing.T, b *Bot, owner *quest.Chat) int64 {
	t.Helper()
	reply, err := b.cmdUpload(context.Background(), owner, strings.NewReader(definition), "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(reply, "Game #1 ") {
		t.Fatalf("unexpected upload reply %q", reply)
	}
	return 1
}

func mustChat(t *testing.T, store *fakeStore, channel string) *quest.Chat {
	t.Helper()
	c, err := store.GetOrCreateChat(context.Background(), channel, channel)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	return c
}

func TestUploadAndList(t *testing.T) {
	b, store, _ := newTestBot(t)
	ctx := context.Background()
	owner := mustChat(t, store, "owner")

	reply, err := b.cmdList(ctx, owner)
	if err != nil || reply != "You have no games." {
		t.Fatalf("unexpected empty list: %q %v", reply, err)
	}

	id := uploadGame(t, b, owner)
	reply, err = b.cmdList(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := "#1: [2024-05-01 12:00] Night run (pending, 2 levels, 0 players)"
	if !strings.Contains(reply, want) {
		t.Fatalf("list reply %q does not contain %q", reply, want)
	}

	other := mustChat(t, store, "other")
	if reply, _ := b.cmdList(ctx, other); reply != "You have no games." {
		t.Fatalf("other chat sees foreign games: %q", reply)
	}

	g, err := store.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if len(g.Levels) != 2 || len(g.Levels[0].Codes) != 3 {
		t.Fatalf("unexpected stored game: %+v", g)
	}
}

func TestUploadStartOverride(t *testing.T) {
	b, store, _ := newTestBot(t)
	owner := mustChat(t, store, "owner")
	body := "name: Quick\nlevels:\n  - duration: 5\n    codes: [x]\n"

	if _, err := b.cmdUpload(context.Background(), owner, strings.NewReader(body), ""); err == nil {
		t.Fatalf("expected missing start error")
	}
	if _, err := b.cmdUpload(context.Background(), owner, strings.NewReader(body), "2024-06-01 10:00"); err != nil {
		t.Fatalf("upload with start: %v", err)
	}
	g, err := store.GetGame(context.Background(), 1)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if want := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC); !g.Start.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, g.Start)
	}
}

func TestMoveStartAndDeleteAreOwnerOnly(t *testing.T) {
	b, store, _ := newTestBot(t)
	ctx := context.Background()
	owner := mustChat(t, store, "owner")
	other := mustChat(t, store, "other")
	id := uploadGame(t, b, owner)

	if _, err := b.cmdMoveStart(ctx, other, id, "2024-05-02 09:30"); !errors.Is(err, quest.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	reply, err := b.cmdMoveStart(ctx, owner, id, "2024-05-02 09:30")
	if err != nil {
		t.Fatalf("move start: %v", err)
	}
	if !strings.Contains(reply, "2024-05-02 09:30:00 +0000") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if _, err := b.cmdMoveStart(ctx, owner, id, "someday"); !errors.Is(err, quest.ErrInvalidGame) {
		t.Fatalf("expected parse error, got %v", err)
	}

	if _, err := store.SetStatus(ctx, id, quest.StatusPending, quest.StatusRunning); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, err := b.cmdMoveStart(ctx, owner, id, "2024-05-03 09:30"); !errors.Is(err, quest.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}

	if _, err := b.cmdDelete(ctx, other, id); !errors.Is(err, quest.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := b.cmdDelete(ctx, owner, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := b.cmdDelete(ctx, owner, id); !errors.Is(err, quest.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestPlayFlow(t *testing.T) {
	b, store, _ := newTestBot(t)
	ctx := context.Background()
	owner := mustChat(t, store, "owner")
	team := mustChat(t, store, "team")
	id := uploadGame(t, b, owner)

	if _, err := b.cmdJoin(ctx, team, id); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := b.cmdJoin(ctx, team, 42); !errors.Is(err, quest.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}

	if _, err := b.cmdStatus(ctx, team, t0); !errors.Is(err, quest.ErrNoActiveGame) {
		t.Fatalf("expected ErrNoActiveGame before start, got %v", err)
	}
	if _, err := store.SetStatus(ctx, id, quest.StatusPending, quest.StatusRunning); err != nil {
		t.Fatalf("set status: %v", err)
	}

	at := t0.Add(2 * time.Minute)
	reply, err := b.cmdTask(ctx, team, at)
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if !strings.Contains(reply, "1. Warm up") || !strings.Contains(reply, "Find the red door") || !strings.Contains(reply, "00:08:00") {
		t.Fatalf("unexpected task reply %q", reply)
	}

	if _, err := b.cmdCode(ctx, team, "nope", at); !errors.Is(err, quest.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
	reply, err = b.cmdCode(ctx, team, "  BETA ", at)
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	for _, want := range []string{"Code accepted! +2", "Closed codes: 1 of 3, points: 2", "Codes left to pass: 1", "Open codes: 1,3"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("code reply %q does not contain %q", reply, want)
		}
	}

	if _, err := b.cmdCode(ctx, team, "alpha", at); err != nil {
		t.Fatalf("code: %v", err)
	}
	reply, err = b.cmdCode(ctx, team, "gamma", at)
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if !strings.Contains(reply, "Level complete!") {
		t.Fatalf("expected level complete, got %q", reply)
	}

	reply, err = b.cmdStat(ctx, team, 0, at)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !strings.Contains(reply, "Total: 3 codes, 2 points") || !strings.Contains(reply, "2/2") {
		t.Fatalf("unexpected stat reply %q", reply)
	}

	reply, err = b.cmdInfo(ctx, team, at)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(reply, "Level 1 of 2") || !strings.Contains(reply, "Time left in game: 00:28:00") {
		t.Fatalf("unexpected info reply %q", reply)
	}
}

func TestNotifyTransitionReachesOwnerAndPlayers(t *testing.T) {
	b, store, sender := newTestBot(t)
	ctx := context.Background()
	owner := mustChat(t, store, "owner")
	team := mustChat(t, store, "team")
	id := uploadGame(t, b, owner)
	if _, err := b.cmdJoin(ctx, team, id); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := b.cmdJoin(ctx, owner, id); err != nil {
		t.Fatalf("owner join: %v", err)
	}
	g, _ := store.GetGame(ctx, id)

	b.NotifyTransition(ctx, quest.Transition{Game: g, From: quest.StatusPending, To: quest.StatusRunning, At: t0})

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(sender.sent))
	}
	channels := map[string]bool{}
	for _, m := range sender.sent {
		channels[m.channel] = true
		if !strings.Contains(m.content, "has started") || !strings.Contains(m.content, "Find the red door") {
			t.Fatalf("unexpected notification %q", m.content)
		}
	}
	if !channels["owner"] || !channels["team"] {
		t.Fatalf("unexpected recipients: %v", channels)
	}
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		in     string
		prefix string
		want   string
		ok     bool
	}{
		{"#alpha", "#", "alpha", true},
		{"  # Alpha Beta ", "#", "Alpha Beta", true},
		{"alpha", "#", "", false},
		{"#", "#", "", false},
		{"!go", "!", "go", true},
		{"#x", "", "", false},
	}
	for _, tt := range tests {
		got, ok := parseCode(tt.in, tt.prefix)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("parseCode(%q, %q) = %q, %v; want %q, %v", tt.in, tt.prefix, got, ok, tt.want, tt.ok)
		}
	}
}

func TestUserMessage(t *testing.T) {
	if msg, ok := userMessage(quest.ErrCodeNotFound); !ok || msg != "Wrong code." {
		t.Fatalf("unexpected message %q %v", msg, ok)
	}
	wrapped := errors.Join(errors.New("ctx"), quest.ErrAmbiguousGame)
	if _, ok := userMessage(wrapped); !ok {
		t.Fatalf("wrapped sentinel not recognized")
	}
	if _, ok := userMessage(errors.New("connection reset")); ok {
		t.Fatalf("unexpected error must not be shown to players")
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("abc", 5); got != "abc  " {
		t.Fatalf("got %q", got)
	}
	if got := truncateString("abcdefgh", 6); got != "abc..." {
		t.Fatalf("got %q", got)
	}
	if got := truncateString("привет мир", 7); got != "прив..." {
		t.Fatalf("got %q", got)
	}
}

func TestFormatTable(t *testing.T) {
	got := formatTable([]string{"#", "NAME"}, [][]string{{"1", "first"}, {"10", "x"}})
	want := "```\n#   NAME   \n-----------\n1   first  \n10  x      \n```"
	if got != want {
		t.Fatalf("formatTable() =\n%s\nwant\n%s", got, want)
	}
}

func TestStatHidesGamesOfOtherChats(t *testing.T) {
	b, store, _ := newTestBot(t)
	ctx := context.Background()
	owner := mustChat(t, store, "owner")
	team := mustChat(t, store, "team")
	stranger := mustChat(t, store, "stranger")
	id := uploadGame(t, b, owner)
	if _, err := b.cmdJoin(ctx, team, id); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := b.cmdStat(ctx, stranger, id, t0); !errors.Is(err, quest.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound for stranger, got %v", err)
	}
	for _, c := range []*quest.Chat{owner, team} {
		reply, err := b.cmdStat(ctx, c, id, t0)
		if err != nil {
			t.Fatalf("stat for %s: %v", c.ChannelID, err)
		}
		if !strings.Contains(reply, "Warm up") || !strings.Contains(reply, "0/2") {
			t.Fatalf("unexpected stat reply %q", reply)
		}
	}
}

func TestSleepStopsOnShutdown(t *testing.T) {
	b, _, _ := newTestBot(t)
	close(b.shutdownCh)

	done := make(chan bool, 1)
	go func() { done <- b.sleep(context.Background(), time.Hour) }()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("sleep reported a full wait after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatalf("sleep did not return after shutdown")
	}
}

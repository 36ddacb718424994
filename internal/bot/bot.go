package bot

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"questbot/internal/config"
	"questbot/internal/db/models"
	"questbot/internal/quest"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store is the persistence the bot needs beyond what the engine reads.
type Store interface {
	GetOrCreateChat(ctx context.Context, channelID, name string) (*quest.Chat, error)
	GetChat(ctx context.Context, id uuid.UUID) (*quest.Chat, error)
	Participants(ctx context.Context, gameID int64) ([]*quest.Chat, error)
	JoinGame(ctx context.Context, chatID uuid.UUID, gameID int64) error
	CreateGame(ctx context.Context, g *quest.Game) error
	GetGame(ctx context.Context, id int64) (*quest.Game, error)
	OwnedGames(ctx context.Context, chatID uuid.UUID) ([]models.GameListing, error)
	UpdateStart(ctx context.Context, ownerID uuid.UUID, gameID int64, start time.Time) error
	DeleteGame(ctx context.Context, ownerID uuid.UUID, gameID int64) error
}

// messenger is the part of a Discord session used to push notifications.
type messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Bot struct {
	config     *config.Config
	store      Store
	engine     *quest.Engine
	location   *time.Location
	session    *discordgo.Session
	sender     messenger
	httpClient *http.Client
	now        func() time.Time
	shutdownCh chan struct{}
	isShutdown bool
	mu         sync.Mutex
	wg         sync.WaitGroup
}

func New(cfg *config.Config, store Store, engine *quest.Engine) (*Bot, error) {
	loc, err := cfg.Game.Location()
	if err != nil {
		return nil, err
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	log.Info().Int("intents", int(session.Identify.Intents)).Msg("discord session created")

	return &Bot{
		config:     cfg,
		store:      store,
		engine:     engine,
		location:   loc,
		session:    session,
		sender:     session,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
		shutdownCh: make(chan struct{}),
	}, nil
}

func (b *Bot) registerGuildCommands(guildID string) error {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := b.registerGuildCommandsOnce(guildID)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("guild", guildID).Int("attempt", i+1).Msg("command registration failed")
		if !b.sleep(context.Background(), time.Second*time.Duration(i+1)) {
			break
		}
	}
	return fmt.Errorf("failed to register commands after %d attempts: %w", maxRetries, lastErr)
}

func (b *Bot) registerGuildCommandsOnce(guildID string) error {
	existing, err := b.session.ApplicationCommands(b.config.Discord.ClientID, guildID)
	if err != nil {
		return fmt.Errorf("error getting existing commands: %w", err)
	}
	for _, v := range existing {
		if err := b.session.ApplicationCommandDelete(b.config.Discord.ClientID, guildID, v.ID); err != nil {
			log.Warn().Err(err).Str("guild", guildID).Str("command", v.Name).Msg("failed to delete command")
		}
	}

	for _, v := range commands {
		if _, err := b.session.ApplicationCommandCreate(b.config.Discord.ClientID, guildID, v); err != nil {
			return fmt.Errorf("error creating command %s: %w", v.Name, err)
		}
	}
	log.Info().Str("guild", guildID).Int("commands", len(commands)).Msg("commands registered")
	return nil
}

// Start connects to Discord and serves until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	log.Info().Msg("starting questbot")

	for {
		if _, err := b.session.User("@me"); err != nil {
			log.Warn().Err(err).Msg("failed to reach Discord API, retrying in 5 seconds")
			if !b.sleep(ctx, 5*time.Second) {
				return b.Shutdown()
			}
			continue
		}
		break
	}

	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type == discordgo.InteractionApplicationCommand {
			b.handleCommand(s, i)
		}
	})
	b.session.AddHandler(b.handleMessage)
	b.session.AddHandler(b.handleGuildCreate)

	for {
		if err := b.session.Open(); err != nil {
			log.Warn().Err(err).Msg("error opening Discord session, retrying in 5 seconds")
			if !b.sleep(ctx, 5*time.Second) {
				return b.Shutdown()
			}
			continue
		}
		log.Info().Str("session", b.session.State.SessionID).Msg("session opened")
		break
	}

	log.Info().Msg("bot is now running")
	select {
	case <-ctx.Done():
	case <-b.shutdownCh:
	}
	return b.Shutdown()
}

// Shutdown waits for in-flight handlers and closes the Discord session.
// Calling it more than once is a no-op.
func (b *Bot) Shutdown() error {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return nil
	}
	b.isShutdown = true
	close(b.shutdownCh)
	b.mu.Unlock()

	log.Info().Msg("waiting for active handlers to complete")
	b.wg.Wait()

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("error closing Discord session: %w", err)
	}
	log.Info().Msg("discord session closed")
	return nil
}

// track registers an in-flight handler. It reports false once shutdown began.
func (b *Bot) track() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isShutdown {
		return false
	}
	b.wg.Add(1)
	return true
}

func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("guild available")
	if err := b.registerGuildCommands(g.ID); err != nil {
		log.Error().Err(err).Str("guild", g.ID).Msg("error registering commands")
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.track() {
		return
	}
	defer b.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Error().
				Str("user", interactionUser(i)).
				Str("channel", i.ChannelID).
				Interface("panic", r).
				Str("stack", string(buf[:n])).
				Msg("panic in command handler")
			b.respond(s, i, "An internal error occurred")
		}
	}()

	data := i.ApplicationCommandData()
	log.Info().
		Str("user", interactionUser(i)).
		Str("channel", i.ChannelID).
		Str("command", data.Name).
		Msg("command received")

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Error().Err(err).Str("channel", i.ChannelID).Msg("error acknowledging interaction")
		return
	}

	ctx := context.Background()
	chat, err := b.store.GetOrCreateChat(ctx, i.ChannelID, channelName(s, i.ChannelID))
	if err != nil {
		log.Error().Err(err).Str("channel", i.ChannelID).Msg("error resolving chat")
		b.respond(s, i, "An internal error occurred")
		return
	}

	opts := optionMap(data.Options)
	now := b.now()

	var reply string
	switch data.Name {
	case "list":
		reply, err = b.cmdList(ctx, chat)
	case "join":
		reply, err = b.cmdJoin(ctx, chat, intOption(opts, "game"))
	case "status":
		reply, err = b.cmdStatus(ctx, chat, now)
	case "task":
		reply, err = b.cmdTask(ctx, chat, now)
	case "info":
		reply, err = b.cmdInfo(ctx, chat, now)
	case "stat":
		reply, err = b.cmdStat(ctx, chat, intOption(opts, "game"), now)
	case "move_start":
		reply, err = b.cmdMoveStart(ctx, chat, intOption(opts, "game"), stringOption(opts, "start"))
	case "delete":
		reply, err = b.cmdDelete(ctx, chat, intOption(opts, "game"))
	case "upload":
		reply, err = b.handleUpload(ctx, chat, data, stringOption(opts, "start"))
	case "code":
		reply, err = b.cmdCode(ctx, chat, stringOption(opts, "value"), now)
	default:
		err = fmt.Errorf("unknown command %q", data.Name)
	}
	if err != nil {
		reply = b.errorReply(err, chat, data.Name)
	}
	b.respond(s, i, reply)
}

// handleMessage treats channel messages starting with the code prefix as
// code submissions, timed by when Discord received them.
func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	code, ok := parseCode(m.Content, b.config.Game.CodePrefix)
	if !ok {
		return
	}
	if !b.track() {
		return
	}
	defer b.wg.Done()

	ctx := context.Background()
	chat, err := b.store.GetOrCreateChat(ctx, m.ChannelID, channelName(s, m.ChannelID))
	if err != nil {
		log.Error().Err(err).Str("channel", m.ChannelID).Msg("error resolving chat")
		return
	}

	at := m.Timestamp
	if at.IsZero() {
		at = b.now()
	}
	reply, err := b.cmdCode(ctx, chat, code, at)
	if err != nil {
		reply = b.errorReply(err, chat, "code")
	}
	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		log.Error().Err(err).Str("channel", m.ChannelID).Msg("error replying to code")
	}
}

// NotifyTransition tells the owner and every participant of a game that it
// started or finished.
func (b *Bot) NotifyTransition(ctx context.Context, t quest.Transition) {
	text := transitionMessage(t)
	if text == "" {
		return
	}

	recipients := map[uuid.UUID]*quest.Chat{}
	if owner, err := b.store.GetChat(ctx, t.Game.OwnerChatID); err != nil {
		log.Error().Err(err).Int64("game", t.Game.ID).Msg("error loading owner chat")
	} else if owner != nil {
		recipients[owner.ID] = owner
	}
	players, err := b.store.Participants(ctx, t.Game.ID)
	if err != nil {
		log.Error().Err(err).Int64("game", t.Game.ID).Msg("error loading participants")
	}
	for _, p := range players {
		recipients[p.ID] = p
	}

	for _, chat := range recipients {
		msg := text
		if t.To == quest.StatusRunning {
			if l, ok := t.Game.LevelAt(1); ok {
				msg += "\n\n" + taskMessage(1, l, quest.Remaining(t.Game, l, t.At))
			}
		}
		if _, err := b.sender.ChannelMessageSend(chat.ChannelID, msg); err != nil {
			log.Error().Err(err).Str("channel", chat.ChannelID).Int64("game", t.Game.ID).Msg("error sending notification")
		}
	}
}

func transitionMessage(t quest.Transition) string {
	switch t.To {
	case quest.StatusRunning:
		return fmt.Sprintf("Game #%d %q has started!", t.Game.ID, t.Game.Name)
	case quest.StatusFinished:
		return fmt.Sprintf("Game #%d %q is over. Use /stat %d to see your results.", t.Game.ID, t.Game.Name, t.Game.ID)
	}
	return ""
}

// sleep waits for d. It returns false when ctx is done or the bot is
// shutting down.
func (b *Bot) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-b.shutdownCh:
		return false
	case <-t.C:
		return true
	}
}

func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return "unknown"
}

func channelName(s *discordgo.Session, channelID string) string {
	if s != nil && s.State != nil {
		if ch, err := s.State.Channel(channelID); err == nil && ch.Name != "" {
			return ch.Name
		}
	}
	return strings.TrimSpace(channelID)
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"questbot/internal/importer"
	"questbot/internal/quest"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

var (
	gameOption = func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "game",
			Description: "Game number",
			Required:    required,
			MinValue:    &minGameID,
		}
	}
	minGameID = float64(1)

	commands = []*discordgo.ApplicationCommand{
		{
			Name:        "upload",
			Description: "Create a game from a YAML definition",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "file",
					Description: "Game definition (.yaml)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "start",
					Description: "Override the start time (2006-01-02 15:04 or RFC3339)",
					Required:    false,
				},
			},
		},
		{
			Name:        "list",
			Description: "List the games created in this channel",
		},
		{
			Name:        "join",
			Description: "Join a game with this channel",
			Options:     []*discordgo.ApplicationCommandOption{gameOption(true)},
		},
		{
			Name:        "move_start",
			Description: "Move the start of a pending game you own",
			Options: []*discordgo.ApplicationCommandOption{
				gameOption(true),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "start",
					Description: "New start time (2006-01-02 15:04 or RFC3339)",
					Required:    true,
				},
			},
		},
		{
			Name:        "delete",
			Description: "Delete a game you own",
			Options:     []*discordgo.ApplicationCommandOption{gameOption(true)},
		},
		{
			Name:        "status",
			Description: "Show progress on the current level",
		},
		{
			Name:        "task",
			Description: "Show the task of the current level",
		},
		{
			Name:        "info",
			Description: "Show the running game and time left",
		},
		{
			Name:        "stat",
			Description: "Show points per level",
			Options:     []*discordgo.ApplicationCommandOption{gameOption(false)},
		},
		{
			Name:        "code",
			Description: "Submit a code",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "value",
					Description: "The code you found",
					Required:    true,
				},
			},
		},
	}
)

func (b *Bot) cmdList(ctx context.Context, chat *quest.Chat) (string, error) {
	games, err := b.store.OwnedGames(ctx, chat.ID)
	if err != nil {
		return "", err
	}
	if len(games) == 0 {
		return "You have no games.", nil
	}
	lines := make([]string, 0, len(games))
	for _, g := range games {
		lines = append(lines, fmt.Sprintf("#%d: [%s] %s (%s, %d levels, %d players)",
			g.ID, g.StartAt.In(b.location).Format(startLayout), g.Name, g.Status, len(g.LevelNames), g.Players))
	}
	return "Your games:\n" + strings.Join(lines, "\n"), nil
}

func (b *Bot) cmdJoin(ctx context.Context, chat *quest.Chat, gameID int64) (string, error) {
	if gameID <= 0 {
		return "", quest.ErrGameNotFound
	}
	if err := b.store.JoinGame(ctx, chat.ID, gameID); err != nil {
		return "", err
	}
	log.Info().Str("chat", chat.ID.String()).Int64("game", gameID).Msg("chat joined game")
	return fmt.Sprintf("You joined game #%d.", gameID), nil
}

func (b *Bot) cmdStatus(ctx context.Context, chat *quest.Chat, now time.Time) (string, error) {
	report, err := b.engine.Status(ctx, chat.ID, now)
	if err != nil {
		return "", err
	}
	return statusMessage(report.Level, report.Summary), nil
}

func (b *Bot) cmdTask(ctx context.Context, chat *quest.Chat, now time.Time) (string, error) {
	pos, err := b.engine.Locate(ctx, chat.ID, now)
	if err != nil {
		return "", err
	}
	return taskMessage(pos.Number, pos.Level, quest.Remaining(pos.Game, pos.Level, now)), nil
}

func (b *Bot) cmdInfo(ctx context.Context, chat *quest.Chat, now time.Time) (string, error) {
	g, err := b.engine.ResolveRunningGame(ctx, chat.ID)
	if err != nil {
		return "", err
	}
	return infoMessage(g, now, b.location), nil
}

func (b *Bot) cmdStat(ctx context.Context, chat *quest.Chat, gameID int64, now time.Time) (string, error) {
	var g *quest.Game
	var err error
	if gameID > 0 {
		g, err = b.visibleGame(ctx, chat, gameID)
	} else {
		g, err = b.engine.ResolveRunningGame(ctx, chat.ID)
	}
	if err != nil {
		return "", err
	}
	stats, err := b.engine.Stats(ctx, chat.ID, g)
	if err != nil {
		return "", err
	}
	return statsMessage(stats), nil
}

// visibleGame loads a game that chat owns or plays in. Other games are
// reported as missing so their levels stay hidden.
func (b *Bot) visibleGame(ctx context.Context, chat *quest.Chat, gameID int64) (*quest.Game, error) {
	g, err := b.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.OwnerChatID == chat.ID {
		return g, nil
	}
	players, err := b.store.Participants(ctx, gameID)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		if p.ID == chat.ID {
			return g, nil
		}
	}
	return nil, quest.ErrGameNotFound
}

func (b *Bot) cmdMoveStart(ctx context.Context, chat *quest.Chat, gameID int64, arg string) (string, error) {
	start, err := importer.ParseStart(arg, b.location)
	if err != nil {
		return "", err
	}
	if err := b.store.UpdateStart(ctx, chat.ID, gameID, start); err != nil {
		return "", err
	}
	log.Info().Int64("game", gameID).Time("start", start).Msg("game start moved")
	return fmt.Sprintf("Game #%d now starts at %s.", gameID, start.In(b.location).Format("2006-01-02 15:04:05 -0700")), nil
}

func (b *Bot) cmdDelete(ctx context.Context, chat *quest.Chat, gameID int64) (string, error) {
	if err := b.store.DeleteGame(ctx, chat.ID, gameID); err != nil {
		return "", err
	}
	log.Info().Int64("game", gameID).Str("chat", chat.ID.String()).Msg("game deleted")
	return fmt.Sprintf("Game #%d deleted.", gameID), nil
}

// cmdUpload builds a game owned by chat from a YAML definition.
func (b *Bot) cmdUpload(ctx context.Context, chat *quest.Chat, r io.Reader, startOverride string) (string, error) {
	def, err := importer.Parse(r, b.location)
	if err != nil && !(startOverride != "" && errors.Is(err, importer.ErrMissingStart)) {
		return "", err
	}
	if startOverride != "" {
		start, err := importer.ParseStart(startOverride, b.location)
		if err != nil {
			return "", err
		}
		def.Start = start
	}
	g, err := b.engine.Registry().BuildGame(chat.ID, def)
	if err != nil {
		return "", err
	}
	if err := b.store.CreateGame(ctx, g); err != nil {
		return "", err
	}
	log.Info().Int64("game", g.ID).Str("chat", chat.ID.String()).Int("levels", len(g.Levels)).Msg("game uploaded")
	return fmt.Sprintf("Game #%d %q created: %d levels, starts at %s.",
		g.ID, g.Name, len(g.Levels), g.Start.In(b.location).Format(startLayout)), nil
}

func (b *Bot) cmdCode(ctx context.Context, chat *quest.Chat, code string, at time.Time) (string, error) {
	res, err := b.engine.Submit(ctx, chat.ID, code, at)
	if err != nil {
		return "", err
	}
	log.Info().
		Str("chat", chat.ID.String()).
		Int64("game", res.Game.ID).
		Int("level", res.Number).
		Str("redemption", res.Redemption.ID).
		Msg("code accepted")
	return codeMessage(res), nil
}

func (b *Bot) handleUpload(ctx context.Context, chat *quest.Chat, data discordgo.ApplicationCommandInteractionData, start string) (string, error) {
	att, err := uploadedAttachment(data)
	if err != nil {
		return "", err
	}
	body, err := b.fetchAttachment(ctx, att)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return b.cmdUpload(ctx, chat, body, start)
}

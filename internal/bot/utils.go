package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"questbot/internal/importer"
	"questbot/internal/quest"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// maxMessageLen is Discord's limit for message content.
const maxMessageLen = 2000

// respond replaces the deferred interaction response with text.
func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, text string) {
	text = clip(text, maxMessageLen)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &text}); err != nil {
		log.Error().Err(err).Str("channel", i.ChannelID).Msg("error editing interaction response")
	}
}

// errorReply turns err into a message for the chat. Errors that are not
// player mistakes are logged.
func (b *Bot) errorReply(err error, chat *quest.Chat, command string) string {
	if msg, ok := userMessage(err); ok {
		return msg
	}
	log.Error().Err(err).Str("chat", chat.ID.String()).Str("command", command).Msg("command failed")
	return "Something went wrong, please try again later."
}

func userMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, quest.ErrCodeNotFound):
		return "Wrong code.", true
	case errors.Is(err, quest.ErrAlreadyRedeemed):
		return "This code was already accepted.", true
	case errors.Is(err, quest.ErrNoActiveGame):
		return "You are not playing any running game.", true
	case errors.Is(err, quest.ErrAmbiguousGame):
		return "You are playing more than one running game. Leave all but one to continue.", true
	case errors.Is(err, quest.ErrNoActiveLevel):
		return "No level is open right now.", true
	case errors.Is(err, quest.ErrGameNotFound):
		return "Game not found.", true
	case errors.Is(err, quest.ErrNotOwner):
		return "Only the channel that created the game can do that.", true
	case errors.Is(err, quest.ErrNotPending):
		return "The game has already started.", true
	case errors.Is(err, importer.ErrMissingStart):
		return "The game has no start time. Add `start:` to the file or pass the start option.", true
	case errors.Is(err, quest.ErrDuplicateCode), errors.Is(err, quest.ErrInvalidGame):
		return "Invalid game: " + err.Error(), true
	}
	return "", false
}

// parseCode extracts a code from a message that starts with prefix.
func parseCode(content, prefix string) (string, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", false
	}
	code := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if code == "" {
		return "", false
	}
	return code, true
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func intOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	if opt, ok := opts[name]; ok && opt.Type == discordgo.ApplicationCommandOptionInteger {
		return opt.IntValue()
	}
	return 0
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := opts[name]; ok && opt.Type == discordgo.ApplicationCommandOptionString {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func uploadedAttachment(data discordgo.ApplicationCommandInteractionData) (*discordgo.MessageAttachment, error) {
	opt, ok := optionMap(data.Options)["file"]
	if !ok || data.Resolved == nil {
		return nil, fmt.Errorf("%w: no file attached", quest.ErrInvalidGame)
	}
	id, _ := opt.Value.(string)
	att, ok := data.Resolved.Attachments[id]
	if !ok {
		return nil, fmt.Errorf("%w: no file attached", quest.ErrInvalidGame)
	}
	if att.Size > importer.MaxSize {
		return nil, fmt.Errorf("%w: file is larger than %d bytes", quest.ErrInvalidGame, importer.MaxSize)
	}
	return att, nil
}

func (b *Bot) fetchAttachment(ctx context.Context, att *discordgo.MessageAttachment) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading %s: %w", att.Filename, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("error downloading %s: status %d", att.Filename, resp.StatusCode)
	}
	return resp.Body, nil
}

// truncateString pads s to maxLen or cuts it with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s + strings.Repeat(" ", maxLen-len(r))
	}
	return string(r[:maxLen-3]) + "..."
}

func clip(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// formatTable creates a Discord-friendly table with fixed-width columns
func formatTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len([]rune(header))
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var result strings.Builder
	result.WriteString("```\n")
	for i, header := range headers {
		result.WriteString(pad(header, widths[i]+2))
	}
	result.WriteString("\n")
	for _, width := range widths {
		result.WriteString(strings.Repeat("-", width+2))
	}
	result.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			result.WriteString(pad(cell, widths[i]+2))
		}
		result.WriteString("\n")
	}
	result.WriteString("```")
	return result.String()
}

func pad(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/homebot/internal/assistant"
)

// DiscordPrefix marks chat IDs that belong to Discord channels.
const DiscordPrefix = "dc:"

// Discord allows at most five buttons per row and five rows per message.
const discordMaxButtons = 5

type DiscordGateway struct {
	Session *discordgo.Session
	Handler Handler

	done     chan struct{}
	stopOnce sync.Once
}

func NewDiscordGateway(token string, handler Handler) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	dg := &DiscordGateway{
		Session: s,
		Handler: handler,
		done:    make(chan struct{}),
	}
	s.AddHandler(dg.onMessage)
	s.AddHandler(dg.onInteraction)
	return dg, nil
}

// Start opens the websocket and blocks until Stop.
func (dg *DiscordGateway) Start() error {
	if err := dg.Session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	if u := dg.Session.State.User; u != nil {
		log.Printf("Authorized on Discord as %s", u.Username)
	}
	<-dg.done
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}
	log.Printf("[%s] %s", m.Author.Username, m.Content)

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	chatID := DiscordPrefix + m.ChannelID
	reply, err := dg.Handler.HandleText(ctx, chatID, m.Content)
	if err != nil {
		log.Printf("Error handling message from %s: %v", chatID, err)
	}
	if reply.Text == "" {
		return
	}
	if _, err := s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:    reply.Text,
		Components: components(reply.Buttons),
	}); err != nil {
		log.Printf("Error sending reply to %s: %v", chatID, err)
	}
}

// onInteraction handles button presses by replacing the message they belong to.
func (dg *DiscordGateway) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	chatID := DiscordPrefix + i.ChannelID
	data := i.MessageComponentData().CustomID
	reply, err := dg.Handler.HandleCallback(ctx, chatID, data)
	if err != nil {
		log.Printf("Error handling callback %q from %s: %v", data, chatID, err)
	}
	if reply.Text == "" {
		reply.Text = "…"
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    reply.Text,
			Components: components(reply.Buttons),
		},
	}); err != nil {
		log.Printf("Error answering interaction in %s: %v", chatID, err)
	}
}

// components converts button rows into action rows, splitting rows that are
// too wide and dropping anything past Discord's row limit. An empty slice
// clears existing buttons.
func components(buttons [][]assistant.Button) []discordgo.MessageComponent {
	out := []discordgo.MessageComponent{}
	for _, row := range buttons {
		for start := 0; start < len(row); start += discordMaxButtons {
			end := min(start+discordMaxButtons, len(row))
			var btns []discordgo.MessageComponent
			for _, b := range row[start:end] {
				btns = append(btns, discordgo.Button{
					Label:    b.Text,
					Style:    buttonStyle(b.Data),
					CustomID: b.Data,
				})
			}
			if len(out) == discordMaxButtons {
				return out
			}
			out = append(out, discordgo.ActionsRow{Components: btns})
		}
	}
	return out
}

func buttonStyle(data string) discordgo.ButtonStyle {
	switch {
	case strings.HasSuffix(data, ":abort"):
		return discordgo.DangerButton
	case strings.HasSuffix(data, ":done"), strings.HasSuffix(data, ":go"):
		return discordgo.SuccessButton
	}
	return discordgo.SecondaryButton
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	channelID, ok := strings.CutPrefix(chatID, DiscordPrefix)
	if !ok || channelID == "" {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	_, err := dg.Session.ChannelMessageSend(channelID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	dg.stopOnce.Do(func() {
		close(dg.done)
	})
	return dg.Session.Close()
}

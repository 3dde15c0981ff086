package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/logger"

	"github.com/maaaruch/tg-lucky-bot/internal/lottery"
)

// Sender is the part of *tgbotapi.BotAPI the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Options struct {
	// AllowedChats restricts the bot to these chats, all sharing Scope.
	// When empty every chat is its own scope.
	AllowedChats []int64
	Scope        string
	VideoPath    string

	ScheduleChatID int64
	ScheduleScope  string
}

type App struct {
	bot     Sender
	game    *lottery.Service
	opts    Options
	allowed map[int64]bool
	now     func() time.Time
}

func New(bot Sender, game *lottery.Service, opts Options) *App {
	allowed := make(map[int64]bool, len(opts.AllowedChats))
	for _, id := range opts.AllowedChats {
		allowed[id] = true
	}
	return &App{
		bot:     bot,
		game:    game,
		opts:    opts,
		allowed: allowed,
		now:     time.Now,
	}
}

// Run handles long-polled updates until ctx is done or the channel closes.
func (a *App) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return

		case update, ok := <-updates:
			if !ok {
				return
			}
			a.HandleUpdate(ctx, update)
		}
	}
}

func (a *App) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		a.handleMessage(ctx, update.Message)
	}
}

// RegisterCommands publishes the command menu.
func (a *App) RegisterCommands() error {
	_, err := a.bot.Request(tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "register", Description: "Register to the game"},
		tgbotapi.BotCommand{Command: "lucky", Description: "Try your luck"},
		tgbotapi.BotCommand{Command: "champion", Description: "Find out who is the GOAT of the month"},
		tgbotapi.BotCommand{Command: "top", Description: "Get the top participants"},
		tgbotapi.BotCommand{Command: "ping", Description: "Ping the bot"},
	))
	return err
}

// ---------- Updates ----------

const (
	cmdRegister = "register"
	cmdLucky    = "lucky"
	cmdChampion = "champion"
	cmdTop      = "top"
	cmdPing     = "ping"
)

var commandPrefixes = []struct {
	prefix string
	name   string
}{
	{"/register", cmdRegister},
	{"/lucky", cmdLucky},
	{"/draw", cmdLucky},
	{"/champion", cmdChampion},
	{"/top", cmdTop},
	{"/ping", cmdPing},
}

// matchCommand finds the command the text starts with. Anything after the
// prefix, including a @botname suffix or arguments, is ignored.
func matchCommand(text string) string {
	for _, c := range commandPrefixes {
		if strings.HasPrefix(text, c.prefix) {
			return c.name
		}
	}
	return ""
}

func isFromPerson(msg *tgbotapi.Message) bool {
	return msg.From != nil && !msg.From.IsBot && msg.Chat != nil
}

// scopeFor maps a chat to its ledger scope; ok is false for chats the bot
// does not serve.
func (a *App) scopeFor(chatID int64) (scope string, ok bool) {
	if len(a.allowed) == 0 {
		return strconv.FormatInt(chatID, 10), true
	}
	if !a.allowed[chatID] {
		return "", false
	}
	return a.opts.Scope, true
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return strconv.FormatInt(u.ID, 10)
}

func (a *App) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !isFromPerson(msg) {
		return
	}

	cmd := matchCommand(msg.Text)
	if cmd == "" {
		return
	}

	scope, ok := a.scopeFor(msg.Chat.ID)
	if !ok {
		logger.Infof("ignoring /%s from unknown chat %d", cmd, msg.Chat.ID)
		return
	}

	switch cmd {
	case cmdRegister:
		a.handleRegister(ctx, msg, scope)
	case cmdLucky:
		a.handleLucky(ctx, msg, scope)
	case cmdChampion:
		a.handleChampion(ctx, msg, scope)
	case cmdTop:
		a.handleTop(ctx, msg, scope)
	case cmdPing:
		a.sendPlain(msg.Chat.ID, "Pong!")
	}
}

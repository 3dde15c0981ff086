package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/logger"

	"github.com/maaaruch/tg-lucky-bot/internal/domain"
	"github.com/maaaruch/tg-lucky-bot/internal/lottery"
)

const (
	textNoParticipants = "No participants yet!"
	textFailure        = "Something went wrong..."
	goatEmoji          = "🐐🐐🐐"
	trophyEmoji        = "🏆🍾🥇🐐"
)

func (a *App) handleRegister(ctx context.Context, msg *tgbotapi.Message, scope string) {
	reg, err := a.game.Register(ctx, scope, msg.From.ID, displayName(msg.From))
	if err != nil {
		a.fail(msg.Chat.ID, "register", err)
		return
	}

	if reg.Already {
		a.send(msg.Chat.ID, fmt.Sprintf("%s is already registered!", mention(reg.Participant)))
		return
	}
	a.send(msg.Chat.ID, fmt.Sprintf("%s successfully registered!", mention(reg.Participant)))
}

func (a *App) handleLucky(ctx context.Context, msg *tgbotapi.Message, scope string) {
	out, err := a.game.Draw(ctx, scope, a.now())
	a.deliverDraw(msg.Chat.ID, out, err)
}

// ScheduledDraw is the unattended daily draw. It picks with a plain uniform
// selector and reports to the configured chat.
func (a *App) ScheduledDraw(ctx context.Context, now time.Time) {
	if a.opts.ScheduleChatID == 0 {
		return
	}
	out, err := a.game.DrawWith(ctx, lottery.UniformSelector{}, a.opts.ScheduleScope, now)
	a.deliverDraw(a.opts.ScheduleChatID, out, err)
}

func (a *App) deliverDraw(chatID int64, out *lottery.DrawOutcome, err error) {
	if err != nil {
		if errors.Is(err, lottery.ErrEmptyCandidateSet) {
			a.send(chatID, textNoParticipants)
			return
		}
		a.fail(chatID, "draw", err)
		return
	}

	winner := mention(out.Result.Winner)
	switch {
	case !out.Fresh:
		a.send(chatID, fmt.Sprintf("The luck is over! %s got it all!", winner))
	case out.Leader:
		a.celebrate(chatID, fmt.Sprintf("Luck is on %s's side today! %s", winner, goatEmoji))
	default:
		a.send(chatID, fmt.Sprintf("Luck is on %s's side today!", winner))
	}
}

func (a *App) handleChampion(ctx context.Context, msg *tgbotapi.Message, scope string) {
	chatID := msg.Chat.ID

	announce := func(top []domain.Participant) error {
		names := make([]string, 0, len(top))
		for _, p := range top {
			names = append(names, mention(p))
		}
		a.send(chatID, fmt.Sprintf("Who is the GOAT of the month %s? %s", strings.Join(names, " or "), trophyEmoji))
		return nil
	}

	out, err := a.game.Champion(ctx, scope, a.now(), announce)
	switch {
	case errors.Is(err, lottery.ErrNotMonthEnd):
		a.send(chatID, "Today is not the last day of the month!")
		return
	case errors.Is(err, lottery.ErrNotDrawnToday):
		a.send(chatID, "First you need to find out who is the luckiest today!")
		return
	case errors.Is(err, lottery.ErrEmptyCandidateSet):
		a.send(chatID, textNoParticipants)
		return
	case errors.Is(err, lottery.ErrSingleLeader):
		a.send(chatID, "There is only one participant with the highest points!")
		return
	case err != nil:
		a.fail(chatID, "champion", err)
		return
	}

	if !out.Fresh {
		a.send(chatID, fmt.Sprintf("The GOAT of the month is already known! It is %s %s", mention(out.Result.Winner), trophyEmoji))
		return
	}

	w := out.Result.Winner
	w.Name = strings.ToUpper(w.Name)
	a.celebrate(chatID, fmt.Sprintf("%s IS THE GOAT OF THE MONTH! %s", mention(w), trophyEmoji))
}

func (a *App) handleTop(ctx context.Context, msg *tgbotapi.Message, scope string) {
	ranking, err := a.game.Rank(ctx, scope)
	if err != nil {
		a.fail(msg.Chat.ID, "top", err)
		return
	}
	if len(ranking) == 0 {
		a.send(msg.Chat.ID, textNoParticipants)
		return
	}
	a.send(msg.Chat.ID, formatRanking(ranking))
}

func formatRanking(ranking []domain.Participant) string {
	var sb strings.Builder
	sb.WriteString("*Ranking:*")
	for i, p := range ranking {
		sb.WriteString(fmt.Sprintf("\n%d. %s - %d points", i+1, mention(p), p.Points))
	}
	return sb.String()
}

// ---------- Delivery ----------

// mention links the participant by id. Legacy Markdown cannot escape "]"
// inside link text, so it is dropped.
func mention(p domain.Participant) string {
	name := strings.ReplaceAll(p.Name, "]", "")
	return fmt.Sprintf("[%s](tg://user?id=%d)", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, name), p.ID)
}

func (a *App) send(chatID int64, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdown
	if _, err := a.bot.Send(m); err != nil {
		logger.Errorf("send to %d: %v", chatID, err)
	}
}

func (a *App) sendPlain(chatID int64, text string) {
	if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logger.Errorf("send to %d: %v", chatID, err)
	}
}

// celebrate sends the goat video with caption, or the caption alone when
// the video cannot be sent.
func (a *App) celebrate(chatID int64, caption string) {
	v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(a.opts.VideoPath))
	v.Caption = caption
	v.ParseMode = tgbotapi.ModeMarkdown
	if _, err := a.bot.Send(v); err != nil {
		logger.Warningf("send video to %d: %v", chatID, err)
		a.send(chatID, caption)
	}
}

// fail reports a store or delivery failure to the chat, raw error included.
func (a *App) fail(chatID int64, op string, err error) {
	logger.Errorf("%s in chat %d: %v", op, chatID, err)
	a.sendPlain(chatID, textFailure)
	a.sendPlain(chatID, err.Error())
}

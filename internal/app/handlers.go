package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/buildinfo"
	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/notify"
	"github.com/m3rciful/feedbot/core/telegram/commands"
	"github.com/m3rciful/feedbot/core/telegram/conversation"
	"github.com/m3rciful/feedbot/core/telegram/format"
	"github.com/m3rciful/feedbot/core/telegram/keyboard"
	"github.com/m3rciful/feedbot/core/telegram/session"
)

// Callback unique keys.
const (
	cbHome      = "home"
	cbPosts     = "posts"
	cbSettings  = "settings"
	cbSubscribe = "subscribe"
	cbDigest    = "digest"
	cbNewPost   = "new_post"
	cbAbout     = "about"
	cbClose     = "close"
)

const (
	maxTitleLen  = 200
	closeDelay   = 5 * time.Second
	homeText     = "*Board*\nPick a section"
	adminsOnly   = "Only the admin can post"
	noPostsText  = "No posts yet"
	digestPrompt = "Send a date, e\\.g\\. 2025\\-08\\-30 or 30\\.08"
)

func (a *App) register() error {
	a.registry.RegisterCommand("/start", commands.Command{
		Handler:     a.engine.Handle(a.start),
		Description: "Open the board",
		Aliases:     []string{"menu"},
	})
	a.registry.RegisterCommand("/stats", commands.Command{
		Handler:     a.engine.Handle(a.stats),
		Description: "Runtime counters",
		AdminOnly:   true,
	})

	handlers := map[string]conversation.HandlerFunc{
		cbHome:      a.home,
		cbPosts:     a.posts,
		cbSettings:  a.settings,
		cbSubscribe: a.subscribe,
		cbDigest:    a.digest,
		cbNewPost:   a.newPost,
		cbAbout:     a.about,
		cbClose:     a.close,
	}
	var errs []error
	for unique, h := range handlers {
		errs = append(errs, a.registry.RegisterCallback(unique, a.engine.Handle(h)))
	}
	return errors.Join(errs...)
}

func (a *App) isAdmin(user int64) bool {
	return a.cfg.Core.Telegram.AdminID != 0 && user == a.cfg.Core.Telegram.AdminID
}

func (a *App) homeMenu(user int64) *tele.ReplyMarkup {
	buttons := []keyboard.Button{
		{Text: "Posts", Unique: cbPosts, Data: "1"},
		{Text: "Settings", Unique: cbSettings},
		{Text: "Digest", Unique: cbDigest},
		{Text: "About", Unique: cbAbout},
	}
	if a.isAdmin(user) {
		buttons = append(buttons, keyboard.Button{Text: "New post", Unique: cbNewPost})
	}
	kb := keyboard.Grid(buttons, 2)
	kb.InlineKeyboard = append(kb.InlineKeyboard, keyboard.Rows([]keyboard.Button{{Text: "Close", Unique: cbClose}}).InlineKeyboard...)
	return kb
}

func (a *App) start(x *conversation.Context) error {
	return x.SendScreen(homeText, a.homeMenu(x.UserID()), conversation.WithParseMode(tele.ModeMarkdownV2))
}

func (a *App) home(x *conversation.Context) error {
	return x.EditScreen(homeText, a.homeMenu(x.UserID()),
		conversation.NoReturn(), conversation.WithParseMode(tele.ModeMarkdownV2))
}

// posts lists one page of the board. Paging within the list shares a single
// back action so one press leaves the list.
func (a *App) posts(x *conversation.Context) error {
	page, err := x.Payload().Int()
	if err != nil {
		page = 1
	}
	items, pages := a.board.Page(page, a.cfg.Feed.PageSize)
	page = min(max(page, 1), pages)
	text := noPostsText
	if len(items) > 0 {
		text = renderItems(items) + fmt.Sprintf("\n\n_%d/%d_", page, pages)
	}
	kb := keyboard.Rows(keyboard.Pager(cbPosts, page, pages))
	return x.EditScreen(text, kb, conversation.Grouped(), conversation.WithParseMode(tele.ModeMarkdownV2))
}

func renderItems(items []notify.Item) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%d\\. %s", it.ID, it.Notification(0).Text))
	}
	return strings.Join(lines, "\n")
}

func (a *App) settings(x *conversation.Context) error {
	state, label := "off", "Subscribe"
	if a.board.Subscribed(x.UserID()) {
		state, label = "on", "Unsubscribe"
	}
	kb := keyboard.Column(keyboard.Button{Text: label, Unique: cbSubscribe})
	return x.EditScreen("New post notifications: "+state, kb)
}

// subscribe toggles notifications. Its back button re-runs settings so the
// state shown there is current.
func (a *App) subscribe(x *conversation.Context) error {
	user := x.UserID()
	on := a.board.Toggle(user)
	text := "You will no longer get new posts"
	if on {
		if err := a.publisher.Prime(x.Context(), boardFeed, user, a.board.LastID()); err != nil {
			a.board.Toggle(user)
			return err
		}
		text = "You will get new posts as they appear"
	}
	return x.EditScreen(text, nil, conversation.RefreshReturn())
}

// digest asks for a date and lists the posts made since then.
func (a *App) digest(x *conversation.Context) error {
	if err := x.EditScreen(digestPrompt, nil, conversation.WithParseMode(tele.ModeMarkdownV2)); err != nil {
		return err
	}
	msg, err := x.NextMessage(
		conversation.Filter(session.Date),
		conversation.ErrorText("That is not a date I understand, try 2025-08-30"),
	)
	if err != nil {
		return waitFailed(err)
	}
	since, _ := session.ParseDate(msg.Text)
	items := a.board.Since(since)
	text := "Nothing was posted since " + format.EscapeV2(since.Format("2006-01-02"))
	if len(items) > 0 {
		text = renderItems(items)
	}
	started := time.Now()
	return x.EditScreen(text, nil,
		conversation.WithParseMode(tele.ModeMarkdownV2),
		conversation.AfterReturn(func(ctx context.Context) error {
			logger.Debug(ctx, logger.CompTG, "digest.closed",
				slog.Int("count", len(items)),
				slog.Duration("duration", logger.Took(started)),
			)
			return nil
		}),
	)
}

// newPost collects a title and a link and adds the post to the board.
func (a *App) newPost(x *conversation.Context) error {
	if !a.isAdmin(x.UserID()) {
		return x.Answer(adminsOnly, true)
	}
	if err := x.EditScreen("Send the post title", nil); err != nil {
		return err
	}
	title, err := x.NextMessage(conversation.Filter(session.All(session.NonEmpty, session.MaxLen(maxTitleLen))))
	if err != nil {
		return waitFailed(err)
	}

	if err := x.EditScreen("Send the link, or - for none", nil, conversation.NoReturn()); err != nil {
		return err
	}
	link, err := x.NextMessage(
		conversation.Filter(isLink),
		conversation.ErrorText("Send an http(s) link, or - for none"),
	)
	if err != nil {
		return waitFailed(err)
	}
	href := strings.TrimSpace(link.Text)
	if href == "-" {
		href = ""
	}

	it := a.board.Post(strings.TrimSpace(title.Text), href)
	logger.Info(x.Context(), logger.CompApp, "board.post",
		slog.String("status", "ok"),
		slog.Int64("item_id", it.ID),
	)
	kb := keyboard.Column(keyboard.Button{Text: "Home", Unique: cbHome})
	return x.EditScreen(fmt.Sprintf("Posted as #%d", it.ID), kb, conversation.NoReturn())
}

func isLink(msg *tele.Message) bool {
	s := strings.TrimSpace(msg.Text)
	if s == "-" {
		return true
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// waitFailed turns an ended wait into the handler result. A cancelled wait
// means the user moved on; a timeout already cleaned the prompt up.
func waitFailed(err error) error {
	if errors.Is(err, session.ErrCancelled) || errors.Is(err, session.ErrTimeout) {
		return nil
	}
	return err
}

func (a *App) about(x *conversation.Context) error {
	text := fmt.Sprintf("feedbot %s (%s)", buildinfo.Version, buildinfo.Commit)
	return x.Answer(text, true)
}

func (a *App) close(x *conversation.Context) error {
	if err := x.Answer("Closing", false); err != nil {
		return err
	}
	return x.Delete(closeDelay)
}

func (a *App) stats(x *conversation.Context) error {
	text := fmt.Sprintf("sent: %d\nerrors: %d\npending: %d\nreturns: %d\nwaits: %d\nsubscribers: %d",
		a.dispatcher.Sent(),
		a.dispatcher.ErrorCount(),
		a.dispatcher.Pending(),
		a.nav.Returns().Len(),
		a.sessions.Len(),
		len(a.board.Subscribers()),
	)
	return x.SendScreen(text, nil)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/maaaruch/online-voting/internal/domain"
	"github.com/maaaruch/online-voting/internal/metrics"
	"github.com/maaaruch/online-voting/internal/report"
	"github.com/maaaruch/online-voting/internal/session"
	"github.com/maaaruch/online-voting/internal/voting"
)

// Bot is the part of *tgbotapi.BotAPI the app talks to.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// maxReportBytes leaves room under Telegram's 4096 limit for the <pre>
// wrapper and HTML escaping.
const maxReportBytes = 3500

type App struct {
	bot      Bot
	svc      *voting.Service
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func New(bot Bot, svc *voting.Service, m *metrics.Metrics, logger *zerolog.Logger) *App {
	a := &App{
		bot:      bot,
		svc:      svc,
		sessions: session.NewManager(),
		metrics:  m,
		logger:   zerolog.Nop(),
	}
	if logger != nil {
		a.logger = logger.With().Str("component", "bot").Logger()
	}
	return a
}

// Run handles updates one at a time until ctx is done or the update
// channel closes.
func (a *App) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				a.handleMessage(update.Message)
			} else if update.CallbackQuery != nil {
				a.handleCallback(update.CallbackQuery)
			}
		}
	}
}

func (a *App) getSession(userID int64) *session.Session {
	return a.sessions.Get(userID)
}

func (a *App) reply(chatID int64, text string) {
	if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		a.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (a *App) send(c tgbotapi.Chattable) {
	if _, err := a.bot.Send(c); err != nil {
		a.logger.Error().Err(err).Msg("send")
	}
}

// describe turns a service error into the text shown to the user.
func (a *App) describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyName):
		return "Election name is required."
	case errors.Is(err, domain.ErrEmptyInput):
		return "Please enter both username and password."
	case errors.Is(err, domain.ErrAlreadyExists):
		return "Username already exists. Please choose a different one."
	case errors.Is(err, domain.ErrUnknownUser):
		return "Username does not exist. Please register first."
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "Invalid password. Please try again."
	case errors.Is(err, domain.ErrDuplicateName):
		return "Election name already exists."
	case errors.Is(err, domain.ErrEmptyCandidateList):
		return "No candidates added to the ballot."
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownElection):
		return "This election does not exist."
	case errors.Is(err, domain.ErrUnknownCandidate):
		return "This candidate is not on the ballot."
	case errors.Is(err, domain.ErrNoVotes):
		return "Invalid election or no results available."
	case errors.Is(err, domain.ErrNotLoggedIn):
		return "Please log in first."
	default:
		a.logger.Error().Err(err).Msg("unexpected service error")
		return "Something went wrong, please try again."
	}
}

// ---------- Updates ----------

func (a *App) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	sess := a.getSession(msg.From.ID)

	// 1) собираем кандидатов для нового бюллетеня
	if sess.Draft != nil && !msg.IsCommand() {
		a.handleDraftEntry(msg, sess)
		return
	}

	// 2) команды
	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			a.reply(msg.Chat.ID, "Online Voting System\n\n"+
				"/register username password – create an account\n"+
				"/login username password – log in\n"+
				"/logout – log out\n"+
				"/whoami – who is logged in\n"+
				"/create_ballot Name – start a ballot, then send one candidate per message and /done\n"+
				"/create_ballot Name | A | B – create a ballot in one go\n"+
				"/elections – list ballots\n"+
				"/vote – cast a vote\n"+
				"/results – see who won")

		case "register":
			a.handleRegister(msg, sess)

		case "login":
			a.handleLogin(msg, sess)

		case "logout":
			a.handleLogout(msg, sess)

		case "whoami":
			if user, ok := sess.CurrentUser(); ok {
				a.reply(msg.Chat.ID, "Logged in as: "+user)
			} else {
				a.reply(msg.Chat.ID, "Nobody is logged in.")
			}

		case "create_ballot":
			a.handleCreateBallot(msg, sess)

		case "done":
			if sess.Draft == nil {
				a.reply(msg.Chat.ID, "There is no ballot in progress. Start one with /create_ballot Name")
				return
			}
			a.finishDraft(msg.Chat.ID, sess)

		case "cancel":
			if sess.Draft != nil {
				sess.Draft = nil
				a.reply(msg.Chat.ID, "Ballot creation cancelled.")
			}

		case "elections":
			if _, err := sess.Require(); err != nil {
				a.reply(msg.Chat.ID, a.describe(err))
				return
			}
			a.handleElections(msg)

		case "vote":
			if _, err := sess.Require(); err != nil {
				a.reply(msg.Chat.ID, a.describe(err))
				return
			}
			a.sendElectionPicker(msg.Chat.ID, "vote", "Select an election:")

		case "results":
			if _, err := sess.Require(); err != nil {
				a.reply(msg.Chat.ID, a.describe(err))
				return
			}
			a.sendElectionPicker(msg.Chat.ID, "res", "Select an election to view results:")

		default:
			a.reply(msg.Chat.ID, "Unknown command. Try /start")
		}
		return
	}

	// 3) просто текст
	a.reply(msg.Chat.ID, "Send /start to see what I can do.")
}

func (a *App) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	data := cq.Data
	chatID := cq.Message.Chat.ID
	sess := a.getSession(cq.From.ID)

	// убрать "часики" у кнопки
	if _, err := a.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		a.logger.Debug().Err(err).Msg("answer callback")
	}

	if _, err := sess.Require(); err != nil {
		a.reply(chatID, a.describe(err))
		return
	}

	switch {
	case data == "back:vote":
		a.sendElectionPicker(chatID, "vote", "Select an election:")

	// выбор выборов, показать кандидатов
	case strings.HasPrefix(data, "vote:"):
		idx, err := parseIndexes(strings.TrimPrefix(data, "vote:"), 1)
		if err != nil {
			return
		}
		name, ok := a.electionAt(chatID, idx[0])
		if !ok {
			return
		}
		a.sendCandidatePicker(chatID, idx[0], name)

	// голос за кандидата
	case strings.HasPrefix(data, "cast:"):
		idx, err := parseIndexes(strings.TrimPrefix(data, "cast:"), 2)
		if err != nil {
			return
		}
		name, ok := a.electionAt(chatID, idx[0])
		if !ok {
			return
		}
		candidates, err := a.svc.Candidates(name)
		if err != nil {
			a.reply(chatID, a.describe(err))
			return
		}
		if idx[1] >= len(candidates) {
			a.reply(chatID, "No candidates in the selected election.")
			return
		}
		candidate := candidates[idx[1]]

		if err := a.svc.CastVote(name, candidate); err != nil {
			a.reply(chatID, a.describe(err))
			return
		}
		user, _ := sess.CurrentUser()
		a.logger.Info().Str("username", user).Str("session_id", sess.ID()).Str("election", name).Msg("vote accepted")
		a.reply(chatID, "Vote cast for "+candidate)

	// результаты
	case strings.HasPrefix(data, "res:"):
		idx, err := parseIndexes(strings.TrimPrefix(data, "res:"), 1)
		if err != nil {
			return
		}
		name, ok := a.electionAt(chatID, idx[0])
		if !ok {
			return
		}
		a.sendResults(chatID, name)
	}
}

// ---------- Credentials ----------

// forget deletes a message that carried a password.
func (a *App) forget(msg *tgbotapi.Message) {
	if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		a.logger.Debug().Err(err).Msg("delete password message")
	}
}

func (a *App) handleRegister(msg *tgbotapi.Message, sess *session.Session) {
	args := msg.CommandArguments()
	if strings.TrimSpace(args) == "" {
		a.reply(msg.Chat.ID, "Format: /register username password")
		return
	}
	a.forget(msg)

	if user, ok := sess.CurrentUser(); ok {
		a.reply(msg.Chat.ID, "You are already logged in as "+user+". /logout first.")
		return
	}

	username, password := splitCredentials(args)
	if err := a.svc.Register(username, password); err != nil {
		a.reply(msg.Chat.ID, a.describe(err))
		return
	}
	a.reply(msg.Chat.ID, fmt.Sprintf("Registration successful for user: %s. You can now log in.", strings.TrimSpace(username)))
}

func (a *App) handleLogin(msg *tgbotapi.Message, sess *session.Session) {
	args := msg.CommandArguments()
	if strings.TrimSpace(args) == "" {
		a.reply(msg.Chat.ID, "Format: /login username password")
		return
	}
	a.forget(msg)

	if user, ok := sess.CurrentUser(); ok {
		a.reply(msg.Chat.ID, "You are already logged in as "+user+". /logout first.")
		return
	}

	username, password := splitCredentials(args)
	if err := a.svc.Authenticate(username, password); err != nil {
		a.reply(msg.Chat.ID, a.describe(err))
		return
	}

	username = strings.TrimSpace(username)
	sess.LogIn(username)
	a.metrics.SetActiveSessions(a.sessions.Active())
	a.logger.Info().Str("username", username).Str("session_id", sess.ID()).Msg("logged in")

	a.reply(msg.Chat.ID, "Logged in as: "+username)
}

func (a *App) handleLogout(msg *tgbotapi.Message, sess *session.Session) {
	user, ok := sess.CurrentUser()
	if !ok {
		a.reply(msg.Chat.ID, "Nobody is logged in.")
		return
	}
	a.logger.Info().
		Str("username", user).
		Str("session_id", sess.ID()).
		Dur("session_duration", time.Since(sess.LoggedInAt())).
		Msg("logged out")

	sess.LogOut()
	sess.Draft = nil
	a.metrics.SetActiveSessions(a.sessions.Active())

	a.reply(msg.Chat.ID, "Logged out.")
}

// ---------- Ballots ----------

func (a *App) handleCreateBallot(msg *tgbotapi.Message, sess *session.Session) {
	if _, err := sess.Require(); err != nil {
		a.reply(msg.Chat.ID, a.describe(err))
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		text := "Format: /create_ballot Name\n" +
			"then send candidate names one per message and finish with /done.\n\n" +
			"Or all at once:\n/create_ballot Board 2025 | Alice | Bob"
		a.reply(msg.Chat.ID, text)
		return
	}

	if name, rest, found := strings.Cut(args, "|"); found {
		name = strings.TrimSpace(name)
		if name == "" {
			a.reply(msg.Chat.ID, "Election name is required.")
			return
		}
		candidates := splitPipeArgs(rest, -1)
		if err := a.svc.CreateElection(name, candidates); err != nil {
			a.reply(msg.Chat.ID, a.describe(err))
			return
		}
		a.reply(msg.Chat.ID, "Ballot created for "+name)
		return
	}

	// имя занято: сразу говорим, не собирая кандидатов
	if _, err := a.svc.Candidates(args); err == nil {
		a.reply(msg.Chat.ID, a.describe(domain.ErrDuplicateName))
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		a.reply(msg.Chat.ID, a.describe(err))
		return
	}

	sess.Draft = &session.BallotDraft{Election: args}
	a.reply(msg.Chat.ID, fmt.Sprintf(
		"Creating ballot %q.\nSend candidate names, one per message (or one per line). "+
			"An empty line or /done finishes, /cancel aborts.", args))
}

func (a *App) handleDraftEntry(msg *tgbotapi.Message, sess *session.Session) {
	for _, line := range strings.Split(msg.Text, "\n") {
		if sess.Draft.Add(line) {
			a.finishDraft(msg.Chat.ID, sess)
			return
		}
	}
	n := len(sess.Draft.Candidates)
	a.reply(msg.Chat.ID, fmt.Sprintf("%d candidate(s) so far. Send more or /done.", n))
}

func (a *App) finishDraft(chatID int64, sess *session.Session) {
	d := sess.Draft
	sess.Draft = nil

	if err := a.svc.CreateElection(d.Election, d.Candidates); err != nil {
		a.reply(chatID, a.describe(err))
		return
	}
	a.reply(chatID, "Ballot created for "+d.Election)
}

func (a *App) handleElections(msg *tgbotapi.Message) {
	names, err := a.svc.ListElections()
	if err != nil {
		a.reply(msg.Chat.ID, a.describe(err))
		return
	}
	if len(names) == 0 {
		a.reply(msg.Chat.ID, "No elections yet. Create one: /create_ballot Name")
		return
	}

	var sb strings.Builder
	sb.WriteString("Elections:\n")
	for _, name := range names {
		candidates, err := a.svc.Candidates(name)
		if err != nil {
			a.logger.Error().Err(err).Str("election", name).Msg("list candidates")
			continue
		}
		sb.WriteString(fmt.Sprintf("• %s — %s\n", name, strings.Join(candidates, ", ")))
	}
	a.reply(msg.Chat.ID, sb.String())
}

// ---------- Pickers ----------

// electionAt maps a keyboard index back to an election name. Ballots are
// never removed, so the index stays valid.
func (a *App) electionAt(chatID int64, idx int) (string, bool) {
	names, err := a.svc.ListElections()
	if err != nil {
		a.reply(chatID, a.describe(err))
		return "", false
	}
	if idx < 0 || idx >= len(names) {
		a.reply(chatID, "This election does not exist.")
		return "", false
	}
	return names[idx], true
}

func (a *App) sendElectionPicker(chatID int64, prefix, prompt string) {
	names, err := a.svc.ListElections()
	if err != nil {
		a.reply(chatID, a.describe(err))
		return
	}
	if len(names) == 0 {
		a.reply(chatID, "No elections yet. Create one: /create_ballot Name")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(names))
	for i, name := range names {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(name, fmt.Sprintf("%s:%d", prefix, i)),
		))
	}

	m := tgbotapi.NewMessage(chatID, prompt)
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	a.send(m)
}

func (a *App) sendCandidatePicker(chatID int64, electionIdx int, name string) {
	candidates, err := a.svc.Candidates(name)
	if err != nil {
		a.reply(chatID, a.describe(err))
		return
	}
	if len(candidates) == 0 {
		a.reply(chatID, "No candidates in the selected election.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(candidates)+1)
	for j, c := range candidates {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c, fmt.Sprintf("cast:%d:%d", electionIdx, j)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back to elections", "back:vote"),
	))

	m := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s\nSelect a candidate:", name))
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	a.send(m)
}

func (a *App) sendResults(chatID int64, name string) {
	res, err := a.svc.Results(name)
	if err != nil {
		a.reply(chatID, a.describe(err))
		return
	}

	body := report.String(res)
	if cut := truncate(body, maxReportBytes); len(cut) < len(body) {
		body = cut + "\n(truncated, too many candidates)"
	}
	m := tgbotapi.NewMessage(chatID, "<pre>"+html.EscapeString(body)+"</pre>")
	m.ParseMode = tgbotapi.ModeHTML
	a.send(m)
}

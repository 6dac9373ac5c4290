package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"chatsync/internal/app/chat"
	"chatsync/internal/app/model"
	"chatsync/internal/app/notify"
	"chatsync/internal/app/session"
	"chatsync/internal/app/transport"
	"chatsync/internal/app/user"
	"chatsync/internal/configs"
	"chatsync/internal/pkg/errs"
)

const helpText = `Commands:
  /chats                     list conversations
  /users [term]              list users, or search them by name or email
  /open <n|id>               open a conversation
  /dm <user>                 start a direct conversation
  /group <name> <user,...>   create a group
  /typing                    tell the conversation you are typing
  /logout                    sign out and quit
  /quit                      quit
Anything else is sent to the open conversation.`

// printer serializes terminal output and doubles as the notice sink.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// Notify implements notify.Notifier.
func (p *printer) Notify(n notify.Notice) {
	mark := "*"
	if n.Level == notify.LevelError {
		mark = "!"
	}
	p.Printf("%s %s: %s\n", mark, n.Title, n.Body)
}

// readLines feeds stdin lines into a channel that closes on EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

type cli struct {
	mgr  *chat.Manager
	sess *session.Session
	out  *printer
}

func newCLI(mgr *chat.Manager, sess *session.Session, out *printer) *cli {
	return &cli{mgr: mgr, sess: sess, out: out}
}

// run executes commands until /quit, /logout, EOF or ctx is done.
func (c *cli) run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle executes one input line and reports whether the client should exit.
func (c *cli) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		if _, err := c.mgr.Send(ctx, line); errs.Is(err, errs.ErrNoActiveConversation) {
			c.out.Printf("! Open a conversation first (/open)\n")
		}
		return false
	}

	name, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)

	switch name {
	case "/help":
		c.out.Printf("%s\n", helpText)

	case "/chats":
		c.printConversations()

	case "/users":
		if len(args) == 0 {
			c.printUsers(c.mgr.Users())
			return false
		}
		c.searchUsers(strings.Join(args, " "))

	case "/open":
		if len(args) != 1 {
			c.out.Printf("usage: /open <n|id>\n")
			return false
		}
		c.open(ctx, args[0])

	case "/dm":
		if len(args) != 1 {
			c.out.Printf("usage: /dm <user>\n")
			return false
		}
		if _, err := c.mgr.CreateDirect(ctx, c.resolveUser(args[0])); err == nil {
			c.printHistory(ctx)
		}

	case "/group":
		if len(args) < 2 {
			c.out.Printf("usage: /group <name> <user,...>\n")
			return false
		}
		var members []string
		for _, ref := range strings.Split(strings.Join(args[1:], ","), ",") {
			if ref = strings.TrimSpace(ref); ref != "" {
				members = append(members, c.resolveUser(ref))
			}
		}
		if _, err := c.mgr.CreateGroup(ctx, args[0], members); err == nil {
			c.printHistory(ctx)
		}

	case "/typing":
		_ = c.mgr.SetTyping(true)

	case "/logout":
		c.sess.Logout()
		return true

	case "/quit":
		return true

	default:
		c.out.Printf("! Unknown command %s. Try /help\n", name)
	}

	return false
}

func (c *cli) open(ctx context.Context, ref string) {
	id := ref
	if n, err := strconv.Atoi(ref); err == nil {
		convs := c.mgr.Conversations.Conversations()
		if n < 1 || n > len(convs) {
			c.out.Printf("! No conversation #%d\n", n)
			return
		}
		id = convs[n-1].ID
	}

	if err := c.mgr.Select(ctx, id); err != nil {
		if errs.Is(err, errs.ErrConversationNotFound) {
			c.out.Printf("! %s\n", errs.Message(err))
		}
		return
	}
	c.printHistory(ctx)
}

// resolveUser maps a username to its id; anything else is taken as an id.
func (c *cli) resolveUser(ref string) string {
	for _, u := range c.mgr.Users() {
		if strings.EqualFold(u.Username, ref) {
			return u.ID
		}
	}
	return ref
}

func (c *cli) printConversations() {
	convs := c.mgr.Conversations.Conversations()
	if len(convs) == 0 {
		c.out.Printf("No conversations yet. Start one with /dm or /group.\n")
		return
	}

	activeID := c.mgr.Conversations.ActiveID()
	selfID := c.sess.UserID()

	var b strings.Builder
	if n := c.mgr.Conversations.TotalUnread(); n > 0 {
		fmt.Fprintf(&b, "Conversations (%d unread)\n", n)
	}
	for i, conv := range convs {
		marker := " "
		if conv.ID == activeID {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %2d. %s", marker, i+1, c.mgr.Conversations.DisplayName(conv, selfID))
		if conv.UnreadCount > 0 {
			fmt.Fprintf(&b, " (%d)", conv.UnreadCount)
		}
		if conv.LastMessage != nil {
			fmt.Fprintf(&b, "  %s", preview(conv.LastMessage.Content))
		}
		b.WriteString("\n")
	}
	c.out.Printf("%s", b.String())
}

func (c *cli) printUsers(users []user.User) {
	var b strings.Builder
	for _, u := range users {
		fmt.Fprintf(&b, "  %s  %s  %s\n", u.Username, presence(u), u.ID)
	}
	c.out.Printf("%s", b.String())
}

func (c *cli) searchUsers(term string) {
	if len([]rune(strings.TrimSpace(term))) < chat.MinSearchLength {
		c.out.Printf("Type at least %d characters to search\n", chat.MinSearchLength)
		return
	}

	found := c.mgr.SearchUsers(term)
	if len(found) == 0 {
		c.out.Printf("No users found.\n")
		return
	}
	c.printUsers(found)
}

// printHistory prints the open conversation. Senders who are no longer
// participants are looked up once per call.
func (c *cli) printHistory(ctx context.Context) {
	conv, ok := c.mgr.Conversations.Active()
	if !ok {
		return
	}

	names := make(map[string]string)
	nameOf := func(senderID string) string {
		if name, ok := c.senderName(conv, senderID); ok {
			return name
		}
		if name, ok := names[senderID]; ok {
			return name
		}
		name := model.UnknownUserName
		if u, ok := c.mgr.FindUser(ctx, senderID); ok && u.Username != "" {
			name = u.Username
		}
		names[senderID] = name
		return name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s ---\n", c.mgr.Conversations.DisplayName(conv, c.sess.UserID()))
	for _, e := range c.mgr.Messages.Entries() {
		b.WriteString(formatMessage(nameOf(e.Message.SenderID), e.Message, e.Pending()))
	}
	c.out.Printf("%s", b.String())
}

// senderName names senderID from the conversation alone.
func (c *cli) senderName(conv model.Conversation, senderID string) (string, bool) {
	if senderID == c.sess.UserID() {
		return "you", true
	}
	if p, ok := conv.Participant(senderID); ok {
		return p.Username, true
	}
	return "", false
}

func formatMessage(name string, m model.Message, pending bool) string {
	suffix := ""
	if pending {
		suffix = " (sending)"
	}
	return fmt.Sprintf("[%s] %s: %s%s\n", m.Timestamp.Local().Format("15:04"), name, m.Content, suffix)
}

// onChange prints live updates for the open conversation and the connection.
func (c *cli) onChange(ch chat.Change) {
	switch ch.Kind {
	case chat.ChangeDelivered:
		if ch.Message == nil || ch.ChatID != c.mgr.Conversations.ActiveID() {
			return
		}
		if conv, ok := c.mgr.Conversations.Get(ch.ChatID); ok {
			name, known := c.senderName(conv, ch.Message.SenderID)
			if !known {
				name = model.UnknownUserName
			}
			c.out.Printf("%s", formatMessage(name, *ch.Message, false))
		}

	case chat.ChangeTyping:
		conv, ok := c.mgr.Conversations.Get(ch.ChatID)
		if !ok {
			return
		}
		var names []string
		for _, id := range c.mgr.Typing.TypingUsers() {
			if p, ok := conv.Participant(id); ok {
				names = append(names, p.Username)
			}
		}
		if len(names) > 0 {
			c.out.Printf("  %s typing...\n", strings.Join(names, ", "))
		}

	case chat.ChangeStatus:
		if ch.Status != transport.StatusConnecting {
			c.out.Printf("  [%s]\n", ch.Status)
		}
	}
}

func presence(u user.User) string {
	if u.IsOnline {
		return "online"
	}
	if u.LastSeen != nil {
		return "last seen " + u.LastSeen.Local().Format("Jan 2 15:04")
	}
	return "offline"
}

func preview(s string) string {
	const limit = 40
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

// signIn authenticates with the configured credentials: a configured username
// registers a new account, otherwise the email and password log in.
func signIn(ctx context.Context, sess *session.Session, cfg *configs.AppConfig) error {
	if cfg.Username != "" {
		return sess.Register(ctx, session.RegisterInput{
			Username:        cfg.Username,
			Email:           cfg.Email,
			Password:        cfg.Password,
			ConfirmPassword: cfg.Password,
		})
	}
	return sess.Login(ctx, cfg.Email, cfg.Password)
}

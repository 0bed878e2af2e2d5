package telegram

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"userbotgo/backend/internal/config"
	"userbotgo/backend/internal/dispatch"
	"userbotgo/backend/internal/models"

	"github.com/gotd/td/session"
	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog/log"
)

// Inbound delivers one normalized message to the dispatch layer together
// with the connection it arrived on.
type Inbound func(ctx context.Context, msg models.IncomingMessage, sender dispatch.Sender)

// Conn is one live MTProto connection for one account.
type Conn interface {
	dispatch.Sender

	// Profile returns the authorized user's name and username.
	Profile() (firstName, lastName, username string)

	// Done yields the terminal error once the connection dies.
	Done() <-chan error

	// Close tears the connection down. Safe to call more than once.
	Close()
}

// Transport dials MTProto connections. The supervisor owns reconnects; Dial
// performs exactly one attempt.
type Transport interface {
	Dial(ctx context.Context, account *models.Account, sessionData []byte, onMessage Inbound) (Conn, error)
}

// MTProtoTransport is the production Transport backed by gotd.
type MTProtoTransport struct{}

func NewTransport() *MTProtoTransport { return &MTProtoTransport{} }

type mtConn struct {
	client *tgclient.Client
	api    *tg.Client
	cancel context.CancelFunc
	done   chan error
	ready  chan struct{}

	firstName string
	lastName  string
	username  string

	mu    sync.Mutex
	peers map[int64]tg.InputPeerClass

	closeOnce sync.Once
}

// Dial connects, verifies the session is still authorized and starts the
// update loop. It returns once the connection is usable or the connect
// timeout elapses.
func (t *MTProtoTransport) Dial(ctx context.Context, account *models.Account, sessionData []byte, onMessage Inbound) (Conn, error) {
	storage := &session.StorageMemory{}
	if err := storage.StoreSession(ctx, sessionData); err != nil {
		return nil, fmt.Errorf("seed session: %w", err)
	}

	c := &mtConn{
		done:  make(chan error, 1),
		ready: make(chan struct{}),
		peers: make(map[int64]tg.InputPeerClass),
	}

	dispatcher := tg.NewUpdateDispatcher()
	client := tgclient.NewClient(account.APIID, account.APIHash, tgclient.Options{
		SessionStorage: storage,
		UpdateHandler:  dispatcher,
	})
	c.client = client
	c.api = client.API()

	accountID := account.ID
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		if msg, ok := c.normalize(accountID, e, u.Message); ok {
			onMessage(ctx, msg, c)
		}
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		if msg, ok := c.normalize(accountID, e, u.Message); ok {
			onMessage(ctx, msg, c)
		}
		return nil
	})

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		err := client.Run(runCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return err
			}
			if !status.Authorized {
				return fmt.Errorf("stored session no longer authorized: %w", models.ErrMissingSession)
			}
			if self, err := client.Self(ctx); err == nil {
				c.firstName = self.FirstName
				c.lastName = self.LastName
				c.username = self.Username
			}
			close(c.ready)
			<-ctx.Done()
			return ctx.Err()
		})
		c.done <- err
	}()

	select {
	case <-c.ready:
		log.Info().Str("account_id", account.ID).Msg("mtproto connection established")
		return c, nil
	case err := <-c.done:
		cancel()
		return nil, err
	case <-time.After(config.ConnectTimeout):
		cancel()
		return nil, fmt.Errorf("connect timeout: %w", models.ErrTransportDisconnected)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

func (c *mtConn) Profile() (string, string, string) {
	return c.firstName, c.lastName, c.username
}

func (c *mtConn) Done() <-chan error { return c.done }

func (c *mtConn) Close() {
	c.closeOnce.Do(c.cancel)
}

// normalize converts a raw update into an IncomingMessage and caches the
// input peers needed to answer it. Outgoing messages are skipped.
func (c *mtConn) normalize(accountID string, e tg.Entities, raw tg.MessageClass) (models.IncomingMessage, bool) {
	msg, ok := raw.(*tg.Message)
	if !ok || msg.Out {
		return models.IncomingMessage{}, false
	}

	out := models.IncomingMessage{
		AccountID:   accountID,
		MessageID:   msg.ID,
		Text:        msg.Message,
		MessageType: classifyMedia(msg.Media),
		Timestamp:   time.Unix(int64(msg.Date), 0),
	}

	switch p := msg.PeerID.(type) {
	case *tg.PeerUser:
		out.ChatID = p.UserID
		out.ChatType = "private"
		if u, ok := e.Users[p.UserID]; ok {
			out.ChatTitle = strings.TrimSpace(u.FirstName + " " + u.LastName)
			c.rememberPeer(out.ChatID, &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash})
		}
	case *tg.PeerChat:
		out.ChatID = -p.ChatID
		out.ChatType = "group"
		c.rememberPeer(out.ChatID, &tg.InputPeerChat{ChatID: p.ChatID})
		if ch, ok := e.Chats[p.ChatID]; ok {
			out.ChatTitle = ch.Title
			out.ChatMembers = ch.ParticipantsCount
		}
	case *tg.PeerChannel:
		out.ChatID = -1000000000000 - p.ChannelID
		out.ChatType = "supergroup"
		if ch, ok := e.Channels[p.ChannelID]; ok {
			c.rememberPeer(out.ChatID, &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash})
			out.ChatTitle = ch.Title
			out.ChatMembers = ch.ParticipantsCount
			if ch.Broadcast {
				out.ChatType = "channel"
			}
		}
	default:
		return models.IncomingMessage{}, false
	}

	if from, ok := msg.FromID.(*tg.PeerUser); ok {
		out.UserID = from.UserID
	} else if out.ChatType == "private" {
		out.UserID = out.ChatID
	}
	if u, ok := e.Users[out.UserID]; ok {
		out.Username = u.Username
		out.FirstName = u.FirstName
	}

	return out, true
}

func (c *mtConn) rememberPeer(chatID int64, peer tg.InputPeerClass) {
	c.mu.Lock()
	c.peers[chatID] = peer
	c.mu.Unlock()
}

func (c *mtConn) peer(chatID int64) (tg.InputPeerClass, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[chatID]
	if !ok {
		return nil, fmt.Errorf("no cached peer for chat %d: %w", chatID, models.ErrNotFound)
	}
	return p, nil
}

func (c *mtConn) SendText(ctx context.Context, chatID int64, text string, opts dispatch.SendOptions) (int, error) {
	peer, err := c.peer(chatID)
	if err != nil {
		return 0, err
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: rand.Int63(),
	}
	if opts.ReplyTo != 0 {
		req.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: opts.ReplyTo})
	}
	if markup := buildMarkup(opts.Buttons); markup != nil {
		req.SetReplyMarkup(markup)
	}

	updates, err := c.api.MessagesSendMessage(ctx, req)
	if err != nil {
		return 0, err
	}
	return sentMessageID(updates), nil
}

func (c *mtConn) SendPhoto(ctx context.Context, chatID int64, path, caption string, opts dispatch.SendOptions) (int, error) {
	peer, err := c.peer(chatID)
	if err != nil {
		return 0, err
	}

	file, err := uploader.NewUploader(c.api).FromPath(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", path, err)
	}

	req := &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    &tg.InputMediaUploadedPhoto{File: file},
		Message:  caption,
		RandomID: rand.Int63(),
	}
	if opts.ReplyTo != 0 {
		req.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: opts.ReplyTo})
	}
	if markup := buildMarkup(opts.Buttons); markup != nil {
		req.SetReplyMarkup(markup)
	}

	updates, err := c.api.MessagesSendMedia(ctx, req)
	if err != nil {
		return 0, err
	}
	return sentMessageID(updates), nil
}

func (c *mtConn) SendReaction(ctx context.Context, chatID int64, messageID int, emoticon string) error {
	peer, err := c.peer(chatID)
	if err != nil {
		return err
	}

	req := &tg.MessagesSendReactionRequest{Peer: peer, MsgID: messageID}
	req.SetReaction([]tg.ReactionClass{&tg.ReactionEmoji{Emoticon: emoticon}})
	_, err = c.api.MessagesSendReaction(ctx, req)
	return err
}

func (c *mtConn) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	peer, err := c.peer(chatID)
	if err != nil {
		return err
	}

	// Channel messages live in their own namespace.
	if ch, ok := peer.(*tg.InputPeerChannel); ok {
		_, err := c.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash},
			ID:      []int{messageID},
		})
		return err
	}

	_, err = c.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		ID:     []int{messageID},
		Revoke: true,
	})
	return err
}

func buildMarkup(rows [][]models.Button) tg.ReplyMarkupClass {
	if len(rows) == 0 {
		return nil
	}
	markup := &tg.ReplyInlineMarkup{}
	for _, row := range rows {
		var buttons []tg.KeyboardButtonClass
		for _, b := range row {
			buttons = append(buttons, &tg.KeyboardButtonURL{Text: b.Text, URL: b.URL})
		}
		markup.Rows = append(markup.Rows, tg.KeyboardButtonRow{Buttons: buttons})
	}
	return markup
}

func sentMessageID(u tg.UpdatesClass) int {
	switch v := u.(type) {
	case *tg.UpdateShortSentMessage:
		return v.ID
	case *tg.Updates:
		for _, upd := range v.Updates {
			if m, ok := upd.(*tg.UpdateMessageID); ok {
				return m.ID
			}
		}
	}
	return 0
}

func classifyMedia(media tg.MessageMediaClass) string {
	switch m := media.(type) {
	case nil:
		return "text"
	case *tg.MessageMediaPhoto:
		return "photo"
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return "document"
		}
		var video, animated bool
		for _, attr := range doc.Attributes {
			switch a := attr.(type) {
			case *tg.DocumentAttributeSticker:
				return "sticker"
			case *tg.DocumentAttributeAnimated:
				animated = true
			case *tg.DocumentAttributeAudio:
				if a.Voice {
					return "voice"
				}
				return "audio"
			case *tg.DocumentAttributeVideo:
				video = true
			}
		}
		if animated {
			return "animation"
		}
		if video {
			return "video"
		}
		return "document"
	default:
		return "other"
	}
}

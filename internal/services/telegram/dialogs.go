package telegram

import (
	"context"
	"time"

	"github.com/gotd/td/tg"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/model"
)

// rawDialogs is the flattened payload of messages.getDialogs: the dialog
// order plus the lookup tables needed to name peers and preview messages.
type rawDialogs struct {
	dialogs  []tg.DialogClass
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
	messages map[int]*tg.Message
}

func (c *mtprotoClient) fetchDialogs(ctx context.Context) (rawDialogs, error) {
	res, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      maxDialogs,
	})
	if err != nil {
		return rawDialogs{}, normalizeTransportErr(err)
	}

	var (
		dialogs  []tg.DialogClass
		users    []tg.UserClass
		chats    []tg.ChatClass
		messages []tg.MessageClass
	)
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		dialogs, users, chats, messages = d.Dialogs, d.Users, d.Chats, d.Messages
	case *tg.MessagesDialogsSlice:
		dialogs, users, chats, messages = d.Dialogs, d.Users, d.Chats, d.Messages
	default:
		return rawDialogs{}, nil
	}

	raw := rawDialogs{
		dialogs:  dialogs,
		users:    make(map[int64]*tg.User, len(users)),
		chats:    make(map[int64]*tg.Chat),
		channels: make(map[int64]*tg.Channel),
		messages: make(map[int]*tg.Message, len(messages)),
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			raw.users[user.ID] = user
		}
	}
	for _, ch := range chats {
		switch chat := ch.(type) {
		case *tg.Chat:
			raw.chats[chat.ID] = chat
		case *tg.Channel:
			raw.channels[chat.ID] = chat
		}
	}
	for _, m := range messages {
		if msg, ok := m.(*tg.Message); ok {
			raw.messages[msg.ID] = msg
		}
	}

	return raw, nil
}

func mapDialogs(raw rawDialogs) []model.Chat {
	out := make([]model.Chat, 0, len(raw.dialogs))
	for _, dc := range raw.dialogs {
		dialog, ok := dc.(*tg.Dialog)
		if !ok {
			continue
		}

		chat := model.Chat{UnreadCount: dialog.UnreadCount}
		switch peer := dialog.Peer.(type) {
		case *tg.PeerUser:
			chat.ID = peer.UserID
			chat.Type = "user"
			if user, ok := raw.users[peer.UserID]; ok {
				chat.Title = displayName(user)
			}
		case *tg.PeerChat:
			chat.ID = peer.ChatID
			chat.Type = "group"
			if c, ok := raw.chats[peer.ChatID]; ok {
				chat.Title = c.Title
			}
		case *tg.PeerChannel:
			chat.ID = peer.ChannelID
			chat.Type = "channel"
			if c, ok := raw.channels[peer.ChannelID]; ok {
				chat.Title = c.Title
			}
		default:
			continue
		}

		if msg, ok := raw.messages[dialog.TopMessage]; ok {
			chat.LastMessage = msg.Message
			chat.LastDate = time.Unix(int64(msg.Date), 0).UTC()
		}

		out = append(out, chat)
	}

	return out
}

// resolvePeer builds the access-hashed input peer for a chat id listed in the
// current dialogs. Peers outside the dialog window come back as not found.
func resolvePeer(raw rawDialogs, chatID int64) (tg.InputPeerClass, string, error) {
	if user, ok := raw.users[chatID]; ok {
		return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, displayName(user), nil
	}
	if chat, ok := raw.chats[chatID]; ok {
		return &tg.InputPeerChat{ChatID: chat.ID}, chat.Title, nil
	}
	if channel, ok := raw.channels[chatID]; ok {
		return &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, channel.Title, nil
	}
	return nil, "", ErrChatNotFound
}

func mapHistory(res tg.MessagesMessagesClass) []model.Message {
	var msgs []tg.MessageClass
	switch h := res.(type) {
	case *tg.MessagesMessages:
		msgs = h.Messages
	case *tg.MessagesMessagesSlice:
		msgs = h.Messages
	case *tg.MessagesChannelMessages:
		msgs = h.Messages
	default:
		return nil
	}

	out := make([]model.Message, 0, len(msgs))
	for _, mc := range msgs {
		msg, ok := mc.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, model.Message{
			ID:       int64(msg.ID),
			Text:     msg.Message,
			Date:     time.Unix(int64(msg.Date), 0).UTC(),
			Outgoing: msg.Out,
		})
	}

	return out
}

func displayName(user *tg.User) string {
	switch {
	case user.FirstName != "" && user.LastName != "":
		return user.FirstName + " " + user.LastName
	case user.FirstName != "":
		return user.FirstName
	case user.Username != "":
		return "@" + user.Username
	default:
		return "Telegram user"
	}
}

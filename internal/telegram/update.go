package telegram

import (
	"strings"

	"github.com/go-telegram/bot/models"

	"tg_shop_bot/internal/domain"
)

// UpdateKind names the update variants the dispatcher routes.
type UpdateKind string

const (
	KindText       UpdateKind = "text"
	KindPhotoReply UpdateKind = "photo_reply"
	KindCallback   UpdateKind = "callback_query"
)

// Sender identifies who produced an update.
type Sender struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// Handle returns the @username or first name used in admin-facing messages.
func (s Sender) Handle() string {
	if s.Username != "" {
		return s.Username
	}
	return s.FirstName
}

// Update is one inbound event. The set of implementations is closed.
type Update interface {
	Kind() UpdateKind
	Chat() int64
	From() Sender
	sealed()
}

// TextMessage is a message with text.
type TextMessage struct {
	ChatID int64
	Sender Sender
	Text   string
}

// PhotoReply is a photo sent as a reply to an earlier message.
type PhotoReply struct {
	ChatID        int64
	Sender        Sender
	RepliedToText string
	FileID        string
}

// CallbackQuery is an inline button tap.
type CallbackQuery struct {
	ID     string
	ChatID int64
	Sender Sender
	Data   string
}

func (u TextMessage) Kind() UpdateKind   { return KindText }
func (u PhotoReply) Kind() UpdateKind    { return KindPhotoReply }
func (u CallbackQuery) Kind() UpdateKind { return KindCallback }

func (u TextMessage) Chat() int64   { return u.ChatID }
func (u PhotoReply) Chat() int64    { return u.ChatID }
func (u CallbackQuery) Chat() int64 { return u.ChatID }

func (u TextMessage) From() Sender   { return u.Sender }
func (u PhotoReply) From() Sender    { return u.Sender }
func (u CallbackQuery) From() Sender { return u.Sender }

func (TextMessage) sealed()   {}
func (PhotoReply) sealed()    {}
func (CallbackQuery) sealed() {}

// Classify converts a platform update into a routable Update. It reports false
// for shapes the dispatcher does not handle: messages with neither text nor a
// replied-to photo, edits, membership changes.
func Classify(update *models.Update) (Update, bool) {
	if update == nil {
		return nil, false
	}

	switch {
	case update.Message != nil:
		msg := update.Message
		sender := senderFrom(msg.From)
		if sender.UserID == 0 {
			sender.UserID = msg.Chat.ID
		}

		if len(msg.Photo) > 0 && msg.ReplyToMessage != nil {
			replied := msg.ReplyToMessage.Text
			if replied == "" {
				replied = msg.ReplyToMessage.Caption
			}
			return PhotoReply{
				ChatID:        msg.Chat.ID,
				Sender:        sender,
				RepliedToText: replied,
				FileID:        largestPhoto(msg.Photo),
			}, true
		}

		if strings.TrimSpace(msg.Text) == "" {
			return nil, false
		}
		return TextMessage{ChatID: msg.Chat.ID, Sender: sender, Text: msg.Text}, true
	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		sender := senderFrom(&query.From)
		chat := messageChatID(query.Message)
		if chat == 0 {
			chat = sender.UserID
		}
		return CallbackQuery{
			ID:     query.ID,
			ChatID: chat,
			Sender: sender,
			Data:   query.Data,
		}, true
	default:
		return nil, false
	}
}

func profileOf(u Update) domain.UserProfile {
	s := u.From()
	return domain.UserProfile{
		UserID:    s.UserID,
		ChatID:    s.UserID,
		Username:  s.Username,
		FirstName: s.FirstName,
		LastName:  s.LastName,
	}
}

func senderFrom(user *models.User) Sender {
	if user == nil {
		return Sender{}
	}
	return Sender{
		UserID:    user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

func largestPhoto(sizes []models.PhotoSize) string {
	best := sizes[0]
	for _, size := range sizes[1:] {
		if size.Width*size.Height > best.Width*best.Height {
			best = size
		}
	}
	return best.FileID
}

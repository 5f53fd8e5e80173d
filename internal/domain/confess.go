package domain

import "time"

// Confess is an anonymous message to the admin, or a menfess when TargetUsername is set.
type Confess struct {
	ID             string     `bson:"_id" json:"id"`
	Message        string     `bson:"message" json:"message"`
	IsAnonymous    bool       `bson:"is_anonymous" json:"is_anonymous"`
	SenderChatID   int64      `bson:"sender_chat_id,omitempty" json:"sender_chat_id,omitempty"`
	SenderUsername string     `bson:"sender_username,omitempty" json:"sender_username,omitempty"`
	TargetUsername string     `bson:"target_username,omitempty" json:"target_username,omitempty"`
	Status         string     `bson:"status" json:"status"`
	AdminResponse  string     `bson:"admin_response,omitempty" json:"admin_response,omitempty"`
	RespondedBy    string     `bson:"responded_by,omitempty" json:"responded_by,omitempty"`
	RespondedAt    *time.Time `bson:"responded_at,omitempty" json:"responded_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updated_at"`
}

// IsMenfess reports whether the confession is directed at a named recipient.
func (c Confess) IsMenfess() bool {
	return c.TargetUsername != ""
}

package domain

import "time"

// Purchase is one buy attempt of a product by a buyer chat.
type Purchase struct {
	ID               string     `bson:"_id" json:"id"`
	BuyerChatID      int64      `bson:"buyer_chat_id" json:"buyer_chat_id"`
	BuyerUsername    string     `bson:"buyer_username,omitempty" json:"buyer_username,omitempty"`
	ProductID        string     `bson:"product_id" json:"product_id"`
	ProductTitle     string     `bson:"product_title" json:"product_title"`
	Amount           int64      `bson:"amount" json:"amount"`
	Status           string     `bson:"status" json:"status"`
	ProofFileID      string     `bson:"proof_file_id,omitempty" json:"proof_file_id,omitempty"`
	ProofSubmittedAt *time.Time `bson:"proof_submitted_at,omitempty" json:"proof_submitted_at,omitempty"`
	ResolvedAt       *time.Time `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at" json:"updated_at"`
}

// ProofSubmitted reports whether the buyer has replied with a payment screenshot.
func (p Purchase) ProofSubmitted() bool {
	return p.ProofSubmittedAt != nil
}

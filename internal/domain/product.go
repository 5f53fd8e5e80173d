package domain

import "time"

// ProductStatusAvailable marks a product that can be bought.
const ProductStatusAvailable = "available"

// Product is a catalog entry; the bot only reads it, except for /addproduct.
type Product struct {
	ID          string    `bson:"_id" json:"id"`
	Title       string    `bson:"title" json:"title" validate:"required,max=200"`
	Description string    `bson:"description" json:"description" validate:"required,max=2000"`
	Price       int64     `bson:"price" json:"price" validate:"gte=0"`
	ImageURL    string    `bson:"image_url,omitempty" json:"image_url,omitempty"`
	FileURL     string    `bson:"file_url,omitempty" json:"file_url,omitempty"`
	Status      string    `bson:"status" json:"status"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

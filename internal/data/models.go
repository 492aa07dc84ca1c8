// Package data provides DB models and stores.
package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TimestampLayout is the human-readable format stored in date and
// created_time fields (DD/MM/YYYY HH:MM:SS, local clock).
const TimestampLayout = "02/01/2006 15:04:05"

// FormatTimestamp renders t in TimestampLayout using the local time zone.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// Status is the presence flag the monitoring app keeps per user.
type Status string

const (
	StatusIn  Status = "In"
	StatusOut Status = "Out"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusIn || s == StatusOut
}

// User maps to users collection (username, cellphone, image path, status)
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Username  string        `bson:"username"`
	Cellphone string        `bson:"cellphone,omitempty"`
	Image     string        `bson:"image,omitempty"`
	Status    Status        `bson:"status,omitempty"`
}

// Blob is a stored image as described by the GridFS files collection.
type Blob struct {
	ID         bson.ObjectID `bson:"_id"`
	Path       string        `bson:"filename"`
	Size       int64         `bson:"length"`
	UploadedAt time.Time     `bson:"uploadDate"`
	Metadata   BlobMetadata  `bson:"metadata"`
}

// BlobMetadata is written alongside every upload.
type BlobMetadata struct {
	SHA256 string `bson:"sha256"`
	Source string `bson:"source,omitempty"`
}

// Contacts names both participants of a conversation.
type Contacts struct {
	User1 string `bson:"user_1"`
	User2 string `bson:"user_2"`
}

// Chat maps to chats collection: the conversation header shared by both
// participants' ChatLinks.
type Chat struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Contacts  Contacts      `bson:"contacts"`
	PairKey   string        `bson:"pair_key"`
	CreatedAt time.Time     `bson:"created_at"`
	// MessageCount is bumped atomically by SendMessage and hands out
	// Message.Seq.
	MessageCount int64 `bson:"message_count"`
}

// ChatLink maps to chat_links collection: one participant's summary of a
// conversation. Every chat has exactly two, one per owner.
type ChatLink struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	Owner       string        `bson:"owner"`
	ChatID      bson.ObjectID `bson:"chat_id"`
	Receiver    string        `bson:"receiver"`
	LastMessage string        `bson:"last_message"`
	CreatedTime string        `bson:"created_time"`
	UpdatedTime time.Time     `bson:"updated_time"`
}

// Message maps to messages collection (sender, receiver, text, date)
type Message struct {
	ID       bson.ObjectID `bson:"_id,omitempty"`
	ChatID   bson.ObjectID `bson:"chat_id"`
	Sender   string        `bson:"sender"`
	Receiver string        `bson:"receiver"`
	Text     string        `bson:"message"`
	Date     string        `bson:"date"`
	SentAt   time.Time     `bson:"sent_at"`
	// Seq is the message's position in its conversation, starting at 1.
	Seq int64 `bson:"seq"`
}

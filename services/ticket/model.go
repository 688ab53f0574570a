package ticket

import (
	"time"
)

const (
	StatusOpen     = "open"
	StatusAnswered = "answered"
	StatusClosed   = "closed"
)

type Ticket struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Code      string    `gorm:"column:code;uniqueIndex;not null" json:"code"`
	UserID    string    `gorm:"column:user_id;index;not null" json:"user_id"`
	Subject   string    `gorm:"column:subject;not null" json:"subject"`
	Status    string    `gorm:"column:status;default:'open';index" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

type Message struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	TicketID  string    `gorm:"column:ticket_id;index;not null" json:"ticket_id"`
	AuthorID  string    `gorm:"column:author_id;not null" json:"author_id"`
	Staff     bool      `gorm:"column:staff;default:false" json:"staff"`
	Body      string    `gorm:"column:body;not null" json:"body"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "ticket_messages"
}

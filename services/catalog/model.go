package catalog

import (
	"time"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Service order types.
const (
	TypeDefault  = "default"
	TypeDripfeed = "dripfeed"
)

type Category struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Slug      string    `gorm:"column:slug;uniqueIndex;not null" json:"slug"`
	Position  int       `gorm:"column:position;default:0" json:"position"`
	Status    string    `gorm:"column:status;default:'active';index" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}

// Service is a sellable catalog entry. Rate is the customer price per 1000
// units in the home currency; ProviderRate keeps the upstream cost so margin
// stays visible after markup changes.
type Service struct {
	ID                string    `gorm:"column:id;primaryKey" json:"id"`
	CategoryID        string    `gorm:"column:category_id;index;not null" json:"category_id"`
	ProviderID        string    `gorm:"column:provider_id;index" json:"provider_id,omitempty"`
	ProviderServiceID string    `gorm:"column:provider_service_id" json:"provider_service_id,omitempty"`
	Name              string    `gorm:"column:name;not null" json:"name"`
	Type              string    `gorm:"column:type;default:'default'" json:"type"`
	Description       string    `gorm:"column:description" json:"description"`
	Rate              float64   `gorm:"column:rate;not null" json:"rate"`
	ProviderRate      float64   `gorm:"column:provider_rate;default:0" json:"-"`
	Min               int       `gorm:"column:min;default:1" json:"min"`
	Max               int       `gorm:"column:max;default:1000" json:"max"`
	Dripfeed          bool      `gorm:"column:dripfeed;default:false" json:"dripfeed"`
	Refill            bool      `gorm:"column:refill;default:false" json:"refill"`
	Cancel            bool      `gorm:"column:cancel;default:false" json:"cancel"`
	Position          int       `gorm:"column:position;default:0" json:"position"`
	Status            string    `gorm:"column:status;default:'active';index" json:"status"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Service) TableName() string {
	return "services"
}

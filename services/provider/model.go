package provider

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusTrash    = "trash"
)

// Provider is an upstream SMM API endpoint. ParamMap and ActionMap translate
// the panel's canonical request fields into whatever names the upstream
// expects, so onboarding a new provider is a row insert, not a code change.
type Provider struct {
	ID              string            `gorm:"column:id;primaryKey" json:"id"`
	Name            string            `gorm:"column:name;not null" json:"name"`
	APIURL          string            `gorm:"column:api_url;not null" json:"api_url"`
	APIKey          string            `gorm:"column:api_key;not null" json:"-"`
	Format          string            `gorm:"column:format;default:'form'" json:"format"`
	ParamMap        datatypes.JSONMap `gorm:"column:param_map" json:"param_map"`
	ActionMap       datatypes.JSONMap `gorm:"column:action_map" json:"action_map"`
	EndpointMap     datatypes.JSONMap `gorm:"column:endpoint_map" json:"endpoint_map"`
	Status          string            `gorm:"column:status;default:'active';index" json:"status"`
	Balance         float64           `gorm:"column:balance;default:0" json:"balance"`
	BalanceCurrency string            `gorm:"column:balance_currency" json:"balance_currency"`
	BalanceSyncedAt *time.Time        `gorm:"column:balance_synced_at" json:"balance_synced_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Provider) TableName() string {
	return "providers"
}

// Canonical request field names. ParamMap entries rename these per provider.
const (
	ParamKey      = "key"
	ParamAction   = "action"
	ParamService  = "service"
	ParamLink     = "link"
	ParamQuantity = "quantity"
	ParamOrder    = "order"
	ParamOrders   = "orders"
	ParamRuns     = "runs"
	ParamInterval = "interval"
)

// paramName resolves the wire name for a canonical field.
func (p *Provider) paramName(canonical string) string {
	if p.ParamMap != nil {
		if v, ok := p.ParamMap[canonical].(string); ok && v != "" {
			return v
		}
	}
	return canonical
}

// actionValue resolves the wire value of the action field for an operation.
func (p *Provider) actionValue(op Op) string {
	if p.ActionMap != nil {
		if v, ok := p.ActionMap[string(op)].(string); ok && v != "" {
			return v
		}
	}
	return string(op)
}

// endpointURL resolves the URL for an operation. Most upstreams serve every
// action on one endpoint; EndpointMap covers the ones with per-op paths.
func (p *Provider) endpointURL(op Op) string {
	if p.EndpointMap != nil {
		if v, ok := p.EndpointMap[string(op)].(string); ok && v != "" {
			if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
				return v
			}
			return strings.TrimRight(p.APIURL, "/") + "/" + strings.TrimLeft(v, "/")
		}
	}
	return p.APIURL
}

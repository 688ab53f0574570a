package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/services/provider"
)

type CategoryInput struct {
	Name     string `json:"name" binding:"required"`
	Position *int   `json:"position"`
	Status   string `json:"status"`
}

type ServiceInput struct {
	CategoryID        string   `json:"category_id"`
	ProviderID        string   `json:"provider_id"`
	ProviderServiceID string   `json:"provider_service_id"`
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	Description       string   `json:"description"`
	Rate              *float64 `json:"rate"`
	Min               int      `json:"min"`
	Max               int      `json:"max"`
	Dripfeed          bool     `json:"dripfeed"`
	Refill            bool     `json:"refill"`
	Cancel            bool     `json:"cancel"`
	Position          int      `json:"position"`
	Status            string   `json:"status"`
}

type ImportInput struct {
	ProviderID string  `json:"provider_id" binding:"required"`
	Markup     float64 `json:"markup"`
}

type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ServiceSource lists sellable services from an upstream provider.
type ServiceSource interface {
	FetchServices(ctx context.Context, providerID string) ([]provider.RemoteService, error)
}

// CategoryView groups enabled services for the public catalog listing.
type CategoryView struct {
	Category
	Services []*Service `json:"services"`
}

type Catalog interface {
	CreateCategory(ctx context.Context, in CategoryInput) (*Category, error)
	UpdateCategory(ctx context.Context, id string, in CategoryInput) (*Category, error)
	DeleteCategory(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]*Category, error)

	CreateService(ctx context.Context, in ServiceInput) (*Service, error)
	UpdateService(ctx context.Context, id string, in ServiceInput) (*Service, error)
	DeleteService(ctx context.Context, id string) error
	GetService(ctx context.Context, id string) (*Service, error)
	ListServices(ctx context.Context) ([]*Service, error)

	PublicCatalog(ctx context.Context) ([]*CategoryView, error)
	ImportFromProvider(ctx context.Context, in ImportInput) (*ImportResult, error)
}

type catalog struct {
	node       *snowflake.Node
	categories repository.Repository[Category]
	services   repository.Repository[Service]
	providers  ServiceSource
}

type CatalogParams struct {
	fx.In

	Node       *snowflake.Node
	Categories repository.Repository[Category]
	Services   repository.Repository[Service]
	Providers  ServiceSource
}

func NewCatalog(p CatalogParams) Catalog {
	return &catalog{
		node:       p.Node,
		categories: p.Categories,
		services:   p.Services,
		providers:  p.Providers,
	}
}

func (c *catalog) CreateCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	status := in.Status
	if status == "" {
		status = StatusActive
	}

	cat := &Category{
		ID:     c.node.Generate().String(),
		Name:   in.Name,
		Status: status,
	}
	if in.Position != nil {
		cat.Position = *in.Position
	}

	unique, err := c.uniqueSlug(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	cat.Slug = unique

	if err := c.categories.Create(ctx, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

// uniqueSlug appends a numeric suffix until the slug is free.
func (c *catalog) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	candidate := base
	for i := 2; ; i++ {
		existing, err := c.categories.FindOne(ctx, &Category{Slug: candidate})
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (c *catalog) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*Category, error) {
	cat, err := c.getCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if in.Name != "" && in.Name != cat.Name {
		values["name"] = in.Name
		unique, err := c.uniqueSlug(ctx, in.Name)
		if err != nil {
			return nil, err
		}
		values["slug"] = unique
	}
	if in.Position != nil {
		values["position"] = *in.Position
	}
	if in.Status != "" {
		if in.Status != StatusActive && in.Status != StatusInactive {
			return nil, errutil.BadRequest("Status must be active or inactive")
		}
		values["status"] = in.Status
	}
	if len(values) == 0 {
		return cat, nil
	}
	if err := c.categories.Update(ctx, id, values); err != nil {
		return nil, err
	}
	return c.getCategory(ctx, id)
}

func (c *catalog) DeleteCategory(ctx context.Context, id string) error {
	if _, err := c.getCategory(ctx, id); err != nil {
		return err
	}
	count, err := c.services.Count(ctx, &Service{CategoryID: id})
	if err != nil {
		return err
	}
	if count > 0 {
		return errutil.Conflict("Category still has services")
	}
	return c.categories.Delete(ctx, id)
}

func (c *catalog) ListCategories(ctx context.Context) ([]*Category, error) {
	return c.categories.Find(ctx, &Category{})
}

func (c *catalog) getCategory(ctx context.Context, id string) (*Category, error) {
	cat, err := c.categories.FindOne(ctx, &Category{ID: id})
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, errutil.NotFound("Category not found")
	}
	return cat, nil
}

func (c *catalog) CreateService(ctx context.Context, in ServiceInput) (*Service, error) {
	if in.CategoryID == "" || in.Name == "" || in.Rate == nil {
		return nil, errutil.ValidationFailed("category_id, name and rate are required")
	}
	if _, err := c.getCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}
	if err := validateBounds(in.Min, in.Max); err != nil {
		return nil, err
	}

	svc := &Service{
		ID:                c.node.Generate().String(),
		CategoryID:        in.CategoryID,
		ProviderID:        in.ProviderID,
		ProviderServiceID: in.ProviderServiceID,
		Name:              in.Name,
		Type:              serviceType(in.Type),
		Description:       in.Description,
		Rate:              *in.Rate,
		Min:               in.Min,
		Max:               in.Max,
		Dripfeed:          in.Dripfeed,
		Refill:            in.Refill,
		Cancel:            in.Cancel,
		Position:          in.Position,
		Status:            StatusActive,
	}
	if in.Status != "" {
		svc.Status = in.Status
	}
	if svc.Min <= 0 {
		svc.Min = 1
	}
	if svc.Max <= 0 {
		svc.Max = 1000
	}
	if err := c.services.Create(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (c *catalog) UpdateService(ctx context.Context, id string, in ServiceInput) (*Service, error) {
	if _, err := c.GetService(ctx, id); err != nil {
		return nil, err
	}
	if err := validateBounds(in.Min, in.Max); err != nil {
		return nil, err
	}

	values := map[string]any{}
	if in.CategoryID != "" {
		if _, err := c.getCategory(ctx, in.CategoryID); err != nil {
			return nil, err
		}
		values["category_id"] = in.CategoryID
	}
	if in.Name != "" {
		values["name"] = in.Name
	}
	if in.Type != "" {
		values["type"] = serviceType(in.Type)
	}
	if in.Description != "" {
		values["description"] = in.Description
	}
	if in.Rate != nil {
		values["rate"] = *in.Rate
	}
	if in.Min > 0 {
		values["min"] = in.Min
	}
	if in.Max > 0 {
		values["max"] = in.Max
	}
	if in.Status != "" {
		if in.Status != StatusActive && in.Status != StatusInactive {
			return nil, errutil.BadRequest("Status must be active or inactive")
		}
		values["status"] = in.Status
	}
	values["dripfeed"] = in.Dripfeed
	values["refill"] = in.Refill
	values["cancel"] = in.Cancel

	if err := c.services.Update(ctx, id, values); err != nil {
		return nil, err
	}
	return c.GetService(ctx, id)
}

func (c *catalog) DeleteService(ctx context.Context, id string) error {
	if _, err := c.GetService(ctx, id); err != nil {
		return err
	}
	return c.services.Delete(ctx, id)
}

func (c *catalog) GetService(ctx context.Context, id string) (*Service, error) {
	svc, err := c.services.FindOne(ctx, &Service{ID: id})
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, errutil.NotFound("Service not found")
	}
	return svc, nil
}

func (c *catalog) ListServices(ctx context.Context) ([]*Service, error) {
	return c.services.Find(ctx, &Service{})
}

func (c *catalog) PublicCatalog(ctx context.Context) ([]*CategoryView, error) {
	categories, err := c.categories.Find(ctx, &Category{Status: StatusActive})
	if err != nil {
		return nil, err
	}
	services, err := c.services.Find(ctx, &Service{Status: StatusActive})
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string][]*Service, len(categories))
	for _, svc := range services {
		byCategory[svc.CategoryID] = append(byCategory[svc.CategoryID], svc)
	}

	views := make([]*CategoryView, 0, len(categories))
	for _, cat := range categories {
		views = append(views, &CategoryView{
			Category: *cat,
			Services: byCategory[cat.ID],
		})
	}
	return views, nil
}

// ImportFromProvider pulls the upstream service list and upserts it into the
// catalog, keyed by (provider_id, provider_service_id). Markup is a percentage
// on top of the upstream rate. Remote categories become local ones by name.
func (c *catalog) ImportFromProvider(ctx context.Context, in ImportInput) (*ImportResult, error) {
	span := trace.SpanFromContext(ctx)

	if in.Markup < 0 {
		return nil, errutil.BadRequest("Markup cannot be negative")
	}

	remote, err := c.providers.FetchServices(ctx, in.ProviderID)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	categoryIDs := map[string]string{}

	for _, r := range remote {
		if r.Service == "" || r.Name == "" {
			result.Skipped++
			continue
		}

		categoryName := strings.TrimSpace(r.Category)
		if categoryName == "" {
			categoryName = "Imported"
		}
		categoryID, ok := categoryIDs[categoryName]
		if !ok {
			cat, err := c.findOrCreateCategory(ctx, categoryName)
			if err != nil {
				return nil, err
			}
			categoryID = cat.ID
			categoryIDs[categoryName] = categoryID
		}

		rate := r.Rate * (1 + in.Markup/100)

		existing, err := c.services.FindOne(ctx, &Service{ProviderID: in.ProviderID, ProviderServiceID: r.Service})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := c.services.Update(ctx, existing.ID, map[string]any{
				"rate":          rate,
				"provider_rate": r.Rate,
				"min":           r.Min,
				"max":           r.Max,
				"dripfeed":      r.Dripfeed,
				"refill":        r.Refill,
				"cancel":        r.Cancel,
			}); err != nil {
				return nil, err
			}
			result.Updated++
			continue
		}

		svc := &Service{
			ID:                c.node.Generate().String(),
			CategoryID:        categoryID,
			ProviderID:        in.ProviderID,
			ProviderServiceID: r.Service,
			Name:              r.Name,
			Type:              serviceType(r.Type),
			Rate:              rate,
			ProviderRate:      r.Rate,
			Min:               r.Min,
			Max:               r.Max,
			Dripfeed:          r.Dripfeed,
			Refill:            r.Refill,
			Cancel:            r.Cancel,
			Status:            StatusActive,
		}
		if svc.Min <= 0 {
			svc.Min = 1
		}
		if svc.Max <= 0 {
			svc.Max = 1000
		}
		if err := c.services.Create(ctx, svc); err != nil {
			return nil, err
		}
		result.Created++
	}

	zap.L().Info("provider services imported",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("provider_id", in.ProviderID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (c *catalog) findOrCreateCategory(ctx context.Context, name string) (*Category, error) {
	existing, err := c.categories.FindOne(ctx, &Category{Name: name})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return c.CreateCategory(ctx, CategoryInput{Name: name})
}

func serviceType(t string) string {
	if strings.EqualFold(t, TypeDripfeed) || strings.EqualFold(t, "drip-feed") {
		return TypeDripfeed
	}
	return TypeDefault
}

func validateBounds(min, max int) error {
	if min > 0 && max > 0 && min > max {
		return errutil.BadRequest("Min cannot exceed max")
	}
	return nil
}

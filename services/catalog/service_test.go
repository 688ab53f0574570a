package catalog

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/services/provider"
	"smmpanel/services/testutil"
)

type stubSource struct {
	services []provider.RemoteService
	err      error
}

func (s *stubSource) FetchServices(ctx context.Context, providerID string) ([]provider.RemoteService, error) {
	return s.services, s.err
}

func newTestCatalog(t *testing.T, source ServiceSource) Catalog {
	t.Helper()

	db := testutil.NewTestDB(t, &Category{}, &Service{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewCatalog(CatalogParams{
		Node:       node,
		Categories: repository.ProvideStore[Category](db),
		Services:   repository.ProvideStore[Service](db),
		Providers:  source,
	})
}

func TestCreateCategorySlug(t *testing.T) {
	cat := newTestCatalog(t, nil)
	ctx := context.Background()

	first, err := cat.CreateCategory(ctx, CategoryInput{Name: "Instagram Followers"})
	require.NoError(t, err)
	require.Equal(t, "instagram-followers", first.Slug)

	second, err := cat.CreateCategory(ctx, CategoryInput{Name: "Instagram Followers"})
	require.NoError(t, err)
	require.Equal(t, "instagram-followers-2", second.Slug)
}

func TestDeleteCategoryWithServices(t *testing.T) {
	cat := newTestCatalog(t, nil)
	ctx := context.Background()

	category, err := cat.CreateCategory(ctx, CategoryInput{Name: "Likes"})
	require.NoError(t, err)

	rate := 1.5
	_, err = cat.CreateService(ctx, ServiceInput{
		CategoryID: category.ID,
		Name:       "Post Likes",
		Rate:       &rate,
		Min:        10,
		Max:        1000,
	})
	require.NoError(t, err)

	err = cat.DeleteCategory(ctx, category.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.CodeOf(err))
}

func TestCreateServiceValidation(t *testing.T) {
	cat := newTestCatalog(t, nil)
	ctx := context.Background()

	category, err := cat.CreateCategory(ctx, CategoryInput{Name: "Views"})
	require.NoError(t, err)

	rate := 0.5
	_, err = cat.CreateService(ctx, ServiceInput{
		CategoryID: category.ID,
		Name:       "Video Views",
		Rate:       &rate,
		Min:        100,
		Max:        10,
	})
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadRequest, errutil.CodeOf(err))
}

func TestImportFromProvider(t *testing.T) {
	source := &stubSource{services: []provider.RemoteService{
		{Service: "101", Name: "Followers", Category: "Instagram", Rate: 1.0, Min: 10, Max: 5000, Refill: true},
		{Service: "102", Name: "Likes", Category: "Instagram", Rate: 0.5, Min: 10, Max: 10000},
		{Service: "", Name: "Broken", Category: "Instagram"},
	}}
	cat := newTestCatalog(t, source)
	ctx := context.Background()

	result, err := cat.ImportFromProvider(ctx, ImportInput{ProviderID: "p1", Markup: 20})
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 0, result.Updated)
	require.Equal(t, 1, result.Skipped)

	services, err := cat.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)

	var followers *Service
	for _, svc := range services {
		if svc.ProviderServiceID == "101" {
			followers = svc
		}
	}
	require.NotNil(t, followers)
	require.InDelta(t, 1.2, followers.Rate, 1e-9)
	require.Equal(t, 1.0, followers.ProviderRate)
	require.True(t, followers.Refill)

	// Re-import updates rates instead of duplicating rows.
	source.services[0].Rate = 2.0
	result, err = cat.ImportFromProvider(ctx, ImportInput{ProviderID: "p1", Markup: 20})
	require.NoError(t, err)
	require.Equal(t, 0, result.Created)
	require.Equal(t, 2, result.Updated)

	updated, err := cat.GetService(ctx, followers.ID)
	require.NoError(t, err)
	require.InDelta(t, 2.4, updated.Rate, 1e-9)

	categories, err := cat.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.Equal(t, "instagram", categories[0].Slug)
}

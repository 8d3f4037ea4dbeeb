package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/payments"
	"github.com/foodiehq/api/internal/platform/auth"
	"github.com/foodiehq/api/internal/platform/config"
	pfirestore "github.com/foodiehq/api/internal/platform/firestore"
	"github.com/foodiehq/api/internal/repositories"
	repofirestore "github.com/foodiehq/api/internal/repositories/firestore"
	"github.com/foodiehq/api/internal/services"
)

// Repositories bundles the persistence contracts the services depend on.
type Repositories struct {
	Users      repositories.UserRepository
	Categories repositories.CategoryRepository
	MenuItems  repositories.MenuItemRepository
	Carts      repositories.CartRepository
	Orders     repositories.OrderRepository
	Health     repositories.HealthRepository
}

// Services bundles the service-layer contracts the handlers rely upon.
type Services struct {
	Accounts services.AuthService
	Catalog  services.CatalogService
	Carts    services.CartService
	Orders   services.OrderService
	Media    services.MediaService
}

// ContainerDeps carries the externally constructed collaborators. The
// Firestore provider is required; gateway, event publisher, and media store
// are optional and the dependent services degrade accordingly (no gateway
// checkout, no emitted events, no image endpoints).
type ContainerDeps struct {
	Config       config.Config
	Provider     *pfirestore.Provider
	Gateway      payments.Gateway
	Events       services.OrderEventPublisher
	Media        services.MenuImageStore
	HealthChecks []repositories.DependencyCheck
	Logger       func(ctx context.Context, event string, fields map[string]any)
	Clock        func() time.Time
}

// Container wires repositories, auth primitives, and services for runtime use.
type Container struct {
	Config        config.Config
	Repositories  Repositories
	TokenManager  *auth.TokenManager
	Authenticator *auth.Authenticator
	Services      Services

	provider *pfirestore.Provider
}

// NewContainer constructs the runtime dependency graph.
func NewContainer(deps ContainerDeps) (*Container, error) {
	if deps.Provider == nil {
		return nil, errors.New("di: firestore provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	repos, err := buildRepositories(deps)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenManager(auth.TokenManagerConfig{
		Secret: deps.Config.Auth.JWTSecret,
		TTL:    deps.Config.Auth.TokenTTL,
		Clock:  clock,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build token manager: %w", err)
	}
	authn := auth.NewAuthenticator(tokens, userGetterFunc(repos.Users.FindByID))

	svc, err := buildServices(deps, repos, tokens, clock)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:        deps.Config,
		Repositories:  repos,
		TokenManager:  tokens,
		Authenticator: authn,
		Services:      svc,
		provider:      deps.Provider,
	}, nil
}

// Close releases the Firestore client held by the provider.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.provider == nil {
		return nil
	}
	return c.provider.Close(ctx)
}

func buildRepositories(deps ContainerDeps) (Repositories, error) {
	var repos Repositories

	users, err := repofirestore.NewUserRepository(deps.Provider)
	if err != nil {
		return repos, fmt.Errorf("di: build user repository: %w", err)
	}
	categories, err := repofirestore.NewCategoryRepository(deps.Provider)
	if err != nil {
		return repos, fmt.Errorf("di: build category repository: %w", err)
	}
	menuItems, err := repofirestore.NewMenuItemRepository(deps.Provider)
	if err != nil {
		return repos, fmt.Errorf("di: build menu item repository: %w", err)
	}
	carts, err := repofirestore.NewCartRepository(deps.Provider)
	if err != nil {
		return repos, fmt.Errorf("di: build cart repository: %w", err)
	}
	orders, err := repofirestore.NewOrderRepository(deps.Provider)
	if err != nil {
		return repos, fmt.Errorf("di: build order repository: %w", err)
	}

	repos = Repositories{
		Users:      users,
		Categories: categories,
		MenuItems:  menuItems,
		Carts:      carts,
		Orders:     orders,
	}

	if len(deps.HealthChecks) > 0 {
		health, err := repositories.NewDependencyHealthRepository(deps.HealthChecks)
		if err != nil {
			return repos, fmt.Errorf("di: build health repository: %w", err)
		}
		repos.Health = health
	}

	return repos, nil
}

func buildServices(deps ContainerDeps, repos Repositories, tokens *auth.TokenManager, clock func() time.Time) (Services, error) {
	var svc Services

	accounts, err := services.NewAuthService(services.AuthServiceDeps{
		Users:  repos.Users,
		Tokens: tokens,
		Clock:  clock,
		Logger: deps.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("di: build auth service: %w", err)
	}
	svc.Accounts = accounts

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		MenuItems:  repos.MenuItems,
		Categories: repos.Categories,
		Clock:      clock,
		Logger:     deps.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("di: build catalog service: %w", err)
	}
	svc.Catalog = catalog

	carts, err := services.NewCartService(services.CartServiceDeps{
		Carts:     repos.Carts,
		MenuItems: repos.MenuItems,
		Clock:     clock,
		Logger:    deps.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("di: build cart service: %w", err)
	}
	svc.Carts = carts

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:         repos.Orders,
		Carts:          repos.Carts,
		Gateway:        deps.Gateway,
		CallbackSecret: deps.Config.Payments.CallbackSecret,
		Currency:       deps.Config.Payments.Currency,
		DeliveryFee:    deps.Config.Payments.DeliveryFee,
		MinimumCharge:  deps.Config.Payments.MinimumCharge,
		Clock:          clock,
		Events:         deps.Events,
		Logger:         deps.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("di: build order service: %w", err)
	}
	svc.Orders = orders

	if deps.Media != nil {
		media, err := services.NewMediaService(services.MediaServiceDeps{
			MenuItems: repos.MenuItems,
			Store:     deps.Media,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return svc, fmt.Errorf("di: build media service: %w", err)
		}
		svc.Media = media
	}

	return svc, nil
}

// userGetterFunc adapts a repository lookup to the auth.UserGetter contract.
type userGetterFunc func(ctx context.Context, id string) (domain.User, error)

func (f userGetterFunc) GetUser(ctx context.Context, id string) (domain.User, error) {
	return f(ctx, id)
}

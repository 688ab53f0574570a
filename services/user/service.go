package user

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"smmpanel/pkg/config"
	"smmpanel/pkg/db/option"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/middleware"
	"smmpanel/pkg/repository"
)

// ReferralRecorder attributes a signup to an affiliate. The affiliate
// service provides the implementation; a failed attribution never fails
// the signup itself.
type ReferralRecorder interface {
	RecordSignup(ctx context.Context, userID, refCode string) error
}

// CurrencyConverter turns a home-currency amount into another currency.
// The funds service provides the implementation.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount float64, from, to string) (float64, error)
}

type RegisterInput struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
	RefCode      string `json:"-"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateInput struct {
	Name         *string `json:"name"`
	CurrencyCode *string `json:"currency_code"`
	Role         *string `json:"role"`
	Status       *string `json:"status"`
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*User, error)
	Login(ctx context.Context, in LoginInput) (string, *User, error)
	Get(ctx context.Context, id string) (*User, error)
	GetByAPIKey(ctx context.Context, key string) (*User, error)
	Update(ctx context.Context, id string, in UpdateInput) (*User, error)
	RotateAPIKey(ctx context.Context, id string) (string, error)
	List(ctx context.Context, opts ...option.QueryOption) ([]*User, error)
}

type service struct {
	cfg       *config.Config
	node      *snowflake.Node
	users     repository.Repository[User]
	referral  ReferralRecorder
	converter CurrencyConverter
}

type ServiceParams struct {
	fx.In

	Config    *config.Config
	Node      *snowflake.Node
	Users     repository.Repository[User]
	Referral  ReferralRecorder  `optional:"true"`
	Converter CurrencyConverter `optional:"true"`
}

func NewService(p ServiceParams) Service {
	return &service{
		cfg:       p.Config,
		node:      p.Node,
		users:     p.Users,
		referral:  p.Referral,
		converter: p.Converter,
	}
}

func (s *service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	span := trace.SpanFromContext(ctx)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	existing, err := s.users.FindOne(ctx, &User{Email: email})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("Email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errutil.Internal("Failed to hash password", errutil.WithErr(err))
	}

	currency := strings.ToUpper(in.CurrencyCode)
	if currency == "" {
		currency = s.cfg.Currency.DisplayDefault
	}

	u := &User{
		ID:           s.node.Generate().String(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         in.Name,
		Role:         RoleUser,
		Status:       StatusActive,
		CurrencyCode: currency,
		APIKey:       uuid.NewString(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	if s.referral != nil && in.RefCode != "" {
		if err := s.referral.RecordSignup(ctx, u.ID, in.RefCode); err != nil {
			zap.L().Warn("referral attribution failed",
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.String("user_id", u.ID),
				zap.String("ref_code", in.RefCode),
				zap.Error(err),
			)
		}
	}

	zap.L().Info("user registered",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("user_id", u.ID),
	)
	return u, nil
}

func (s *service) Login(ctx context.Context, in LoginInput) (string, *User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	u, err := s.users.FindOne(ctx, &User{Email: email})
	if err != nil {
		return "", nil, err
	}
	if u == nil {
		return "", nil, errutil.Unauthorized("Invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return "", nil, errutil.Unauthorized("Invalid email or password")
	}
	if u.Status != StatusActive {
		return "", nil, errutil.Forbidden("Account suspended")
	}

	token, err := s.issueToken(u)
	if err != nil {
		return "", nil, errutil.Internal("Failed to issue session token", errutil.WithErr(err))
	}
	return token, u, nil
}

func (s *service) issueToken(u *User) (string, error) {
	now := time.Now()
	claims := middleware.SessionClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Session.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Session.Secret))
}

func (s *service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.users.FindOne(ctx, &User{ID: id})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errutil.NotFound("User not found")
	}
	return u, nil
}

func (s *service) GetByAPIKey(ctx context.Context, key string) (*User, error) {
	if key == "" {
		return nil, errutil.Unauthorized("Invalid API key")
	}
	u, err := s.users.FindOne(ctx, &User{APIKey: key})
	if err != nil {
		return nil, err
	}
	if u == nil || u.Status != StatusActive {
		return nil, errutil.Unauthorized("Invalid API key")
	}
	return u, nil
}

func (s *service) Update(ctx context.Context, id string, in UpdateInput) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if in.Name != nil {
		values["name"] = *in.Name
	}
	if in.CurrencyCode != nil {
		code := strings.ToUpper(*in.CurrencyCode)
		values["currency_code"] = code
		// The display balance is a snapshot in the user's currency and
		// goes stale the moment the currency changes.
		if s.converter != nil && code != u.CurrencyCode {
			balance, err := s.converter.Convert(ctx, u.BalanceUSD, s.cfg.Currency.HomeCode, code)
			if err != nil {
				return nil, err
			}
			values["balance"] = balance
		}
	}
	if in.Role != nil {
		switch *in.Role {
		case RoleAdmin, RoleModerator, RoleUser:
			values["role"] = *in.Role
		default:
			return nil, errutil.BadRequest("Unknown role")
		}
	}
	if in.Status != nil {
		switch *in.Status {
		case StatusActive, StatusSuspended:
			values["status"] = *in.Status
		default:
			return nil, errutil.BadRequest("Unknown status")
		}
	}
	if len(values) == 0 {
		return u, nil
	}
	if err := s.users.Update(ctx, id, values); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *service) RotateAPIKey(ctx context.Context, id string) (string, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return "", err
	}
	key := uuid.NewString()
	if err := s.users.Update(ctx, id, map[string]any{"api_key": key}); err != nil {
		return "", err
	}
	return key, nil
}

func (s *service) List(ctx context.Context, opts ...option.QueryOption) ([]*User, error) {
	return s.users.Find(ctx, &User{}, opts...)
}

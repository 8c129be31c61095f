// Package iamcontainer wires the authentication module. Everything external
// comes in through Deps; cmd/ only sees services, handlers and middleware.
package iamcontainer

import (
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/keyward-io/keyward/pkg/config"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/iam/audit/auditinfra"
	"github.com/keyward-io/keyward/pkg/iam/audit/auditsrv"
	"github.com/keyward-io/keyward/pkg/iam/auth/authapi"
	"github.com/keyward-io/keyward/pkg/iam/auth/authsrv"
	"github.com/keyward-io/keyward/pkg/iam/cleanup"
	"github.com/keyward-io/keyward/pkg/iam/oauth"
	"github.com/keyward-io/keyward/pkg/iam/oauth/oauthinfra"
	"github.com/keyward-io/keyward/pkg/iam/oauth/oauthsrv"
	"github.com/keyward-io/keyward/pkg/iam/password"
	"github.com/keyward-io/keyward/pkg/iam/principal/principalinfra"
	"github.com/keyward-io/keyward/pkg/iam/ratelimit"
	"github.com/keyward-io/keyward/pkg/iam/ratelimit/ratelimitinfra"
	"github.com/keyward-io/keyward/pkg/iam/reset/resetinfra"
	"github.com/keyward-io/keyward/pkg/iam/reset/resetsrv"
	"github.com/keyward-io/keyward/pkg/iam/token"
	"github.com/keyward-io/keyward/pkg/iam/token/tokeninfra"
	"github.com/keyward-io/keyward/pkg/iam/token/tokensrv"
	"github.com/keyward-io/keyward/pkg/logx"
	"github.com/keyward-io/keyward/pkg/notify"
	"github.com/redis/go-redis/v9"
)

// Deps are the external dependencies of the module. Redis may be nil; the
// container then falls back to in-process state and rate limiting.
type Deps struct {
	DB     *sqlx.DB
	Redis  *redis.Client
	Mailer *notify.Client
	Cfg    *config.Config
}

// Container is the public surface of the authentication module.
type Container struct {
	AuthService  *authsrv.Service
	TokenService *tokensrv.Service
	ResetService *resetsrv.Service
	OAuthService *oauthsrv.Service
	AuditService *auditsrv.Service

	Handlers   *authapi.Handlers
	Middleware *authapi.Middleware

	CleanupService *cleanup.Service
}

const resetEmailTemplate = `Hello,

A password reset was requested for your account. Follow this link to choose
a new password:

{{.Link}}

The link expires in {{.ExpiresMinutes}} minutes. If you did not request a
reset, ignore this email.
`

// New builds the full dependency graph. Order: repositories, infrastructure,
// services, handlers.
func New(deps Deps) (*Container, error) {
	c := &Container{}

	principalRepo := principalinfra.NewPostgresRepository(deps.DB)
	tokenRepo := tokeninfra.NewPostgresRepository(deps.DB)
	resetRepo := resetinfra.NewPostgresRepository(deps.DB)
	auditRepo := auditinfra.NewPostgresRepository(deps.DB)

	signer, err := newSigner(&deps.Cfg.JWT)
	if err != nil {
		return nil, err
	}
	hasher := password.NewBcryptHasher()

	rules := map[ratelimit.Namespace]ratelimit.Rule{
		ratelimit.NamespaceLogin: {Limit: deps.Cfg.RateLimit.LoginLimit, Window: deps.Cfg.RateLimit.LoginWindow},
		ratelimit.NamespaceOAuth: {Limit: deps.Cfg.RateLimit.OAuthLimit, Window: deps.Cfg.RateLimit.OAuthWindow},
		ratelimit.NamespaceReset: {Limit: deps.Cfg.RateLimit.ResetLimit, Window: deps.Cfg.RateLimit.ResetWindow},
	}

	var limiter ratelimit.Limiter
	var stateStore oauth.StateStore
	var sweepers []cleanup.Sweeper
	if deps.Redis != nil {
		limiter = ratelimitinfra.NewRedisLimiter(deps.Redis, rules)
		stateStore = oauthinfra.NewRedisStateStore(deps.Redis)
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(rules)
		memStates := oauthinfra.NewMemoryStateStore()
		limiter = memLimiter
		stateStore = memStates
		sweepers = append(sweepers, memLimiter, memStates)
		logx.Warn("redis not configured, using in-process rate limiting and oauth state")
	}

	c.AuditService = auditsrv.NewService(auditRepo)

	c.TokenService = tokensrv.NewService(tokenRepo, principalRepo, signer, tokensrv.Config{
		AccessTTL:  deps.Cfg.JWT.AccessTokenTTL,
		RefreshTTL: deps.Cfg.JWT.RefreshTokenTTL,
		Issuer:     deps.Cfg.JWT.Issuer,
		Audience:   deps.Cfg.JWT.Audience,
	})

	c.AuthService = authsrv.NewService(principalRepo, hasher, c.TokenService, limiter, c.AuditService)

	if err := deps.Mailer.RegisterTemplate(resetsrv.TemplateName, resetEmailTemplate); err != nil {
		return nil, err
	}
	c.ResetService = resetsrv.NewService(resetRepo, principalRepo, hasher, c.TokenService, limiter, deps.Mailer, resetsrv.Config{
		TokenTTL:     deps.Cfg.Reset.TokenTTL,
		ResetBaseURL: deps.Cfg.Reset.BaseURL,
	})

	providers := make(map[iam.Provider]oauth.ProviderClient)
	if deps.Cfg.OAuth.Google.Enabled {
		providers[iam.ProviderGoogle] = oauthinfra.NewGoogleClient(oauthinfra.GoogleConfig{
			ClientID:     deps.Cfg.OAuth.Google.ClientID,
			ClientSecret: deps.Cfg.OAuth.Google.ClientSecret,
			RedirectURL:  deps.Cfg.OAuth.Google.RedirectURL,
			AuthURL:      deps.Cfg.OAuth.Google.AuthURL,
			TokenURL:     deps.Cfg.OAuth.Google.TokenURL,
		})
		logx.Info("google oauth enabled")
	}
	if deps.Cfg.OAuth.Apple.Enabled {
		providers[iam.ProviderApple] = oauthinfra.NewAppleClient(oauthinfra.AppleConfig{
			ClientID:     deps.Cfg.OAuth.Apple.ClientID,
			ClientSecret: deps.Cfg.OAuth.Apple.ClientSecret,
			RedirectURL:  deps.Cfg.OAuth.Apple.RedirectURL,
			AuthURL:      deps.Cfg.OAuth.Apple.AuthURL,
			TokenURL:     deps.Cfg.OAuth.Apple.TokenURL,
		})
		logx.Info("apple oauth enabled")
	}
	c.OAuthService = oauthsrv.NewService(stateStore, providers, principalRepo, c.TokenService, limiter, c.AuditService, oauthsrv.Config{
		StateTTL: deps.Cfg.OAuth.StateTTL,
	})

	c.Handlers = authapi.NewHandlers(c.AuthService, c.ResetService, c.OAuthService, c.AuditService)
	c.Middleware = authapi.NewMiddleware(c.TokenService)
	c.CleanupService = cleanup.NewService(tokenRepo, resetRepo, deps.Cfg.Cleanup.Interval, sweepers...)

	return c, nil
}

func newSigner(cfg *config.JWTConfig) (token.Signer, error) {
	privPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, errx.Wrap(err, "failed to read jwt private key", errx.TypeInternal)
	}
	pubPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, errx.Wrap(err, "failed to read jwt public key", errx.TypeInternal)
	}
	return token.NewRS256Signer(privPEM, pubPEM, cfg.Issuer, cfg.Audience)
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"idserver/internal/authorize"
	"idserver/internal/clientauth"
	"idserver/internal/consent"
	"idserver/internal/idtoken"
	"idserver/internal/interactive"
	"idserver/internal/jose"
	"idserver/internal/oauth"
	"idserver/internal/ownerauth"
	"idserver/internal/platform/config"
	"idserver/internal/platform/httpserver"
	"idserver/internal/platform/logger"
	"idserver/internal/platform/metrics"
	platformredis "idserver/internal/platform/redis"
	"idserver/internal/registration"
	authorizationcode "idserver/internal/store/authorization-code"
	clientstore "idserver/internal/store/client"
	confirmationcode "idserver/internal/store/confirmation-code"
	grantedtoken "idserver/internal/store/granted-token"
	resourceowner "idserver/internal/store/resource-owner"
	"idserver/internal/token"
	httptransport "idserver/internal/transport/http"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/audit/kafka"
	"idserver/pkg/platform/audit/publisher"
	auditmemory "idserver/pkg/platform/audit/store/memory"
)

// tokenStore is everything the server needs from granted-token persistence,
// satisfied by both the in-memory and the Redis implementations.
type tokenStore interface {
	token.TokenStore
	authorize.TokenStore
	httptransport.UserInfoSource
}

// codeStore unifies the issue and exchange sides of authorization code
// persistence.
type codeStore interface {
	token.CodeStore
	authorize.CodeStore
}

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// TODO: load a persisted key set once key rotation lands; until then
	// id tokens do not survive a restart.
	keys, err := jose.NewEphemeralKeys()
	if err != nil {
		return err
	}
	engine := jose.NewEngine(keys)

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
	}

	var (
		tokens        tokenStore
		codes         codeStore
		confirmations interactive.ConfirmationStore
	)
	if rdb != nil {
		tokens = grantedtoken.NewRedis(rdb.Client)
		codes = authorizationcode.NewRedis(rdb.Client, cfg.AuthorizationCodeValidity)
		confirmations = confirmationcode.NewRedis(rdb.Client)
		log.Info("using redis backed token stores")
	} else {
		tokens = grantedtoken.New()
		codes = authorizationcode.New()
		confirmations = confirmationcode.New()
		log.Warn("redis not configured, token stores are in-memory")
	}

	var (
		owners       interactive.OwnerRepository
		ownerLookup  ownerauth.OwnerStore
		consentStore consent.Store
	)
	if db != nil {
		pg := resourceowner.NewPostgres(db)
		owners, ownerLookup = pg, pg
		consentStore = consent.NewPostgresStore(db)
		log.Info("using postgres backed owner and consent stores")
	} else {
		mem := resourceowner.New(demoOwners(log)...)
		owners, ownerLookup = mem, mem
		consentStore = consent.NewInMemoryStore()
		log.Warn("postgres not configured, owner and consent stores are in-memory")
	}

	var sink audit.Store
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := kafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer ks.Close()
		sink = ks
		log.Info("audit events publish to kafka", "topic", cfg.Kafka.Topic)
	} else {
		sink = auditmemory.NewInMemoryStore()
	}
	auditPub := publisher.NewPublisher(sink,
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
	)
	defer auditPub.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	clients := clientstore.New(demoClients()...)

	issuance := cfg.Issuance()
	generator := token.NewGenerator([]byte(cfg.AccessTokenSigningKey), issuance)
	builder := idtoken.NewBuilder(issuance)
	ownerAuth := ownerauth.NewService(ownerLookup, ownerauth.PasswordAMR{})
	consentSvc := consent.NewService(consentStore)

	actions := token.NewActions(
		clientauth.New(clients, cfg.IssuerName+"/token"),
		ownerAuth,
		tokens,
		codes,
		generator,
		builder,
		engine,
		issuance,
		auditPub,
		m,
	)

	responseGen := authorize.NewGenerator(tokens, codes, consentSvc, generator, builder, engine, auditPub, m)

	codec, err := interactive.NewCodec([]byte(cfg.RequestCodeKey))
	if err != nil {
		return err
	}
	codec.WithSessionTTL(cfg.TokenValidity)
	dispatchers := map[oauth.TwoFactorChannel]interactive.Dispatcher{
		oauth.TwoFactorSMS:   logDispatcher{channel: "sms", logger: log},
		oauth.TwoFactorEmail: logDispatcher{channel: "email", logger: log},
	}
	confirmation := interactive.NewConfirmation(confirmations, dispatchers, auditPub, m)
	flow := interactive.NewFlow(clients, owners, ownerAuth, consentSvc, confirmation, codec, responseGen, auditPub, m)

	router := httptransport.NewRouter(httptransport.Handlers{
		Authorize: httptransport.NewAuthorizeHandler(flow, log),
		Token:     httptransport.NewTokenHandler(actions),
		Discovery: httptransport.NewDiscoveryHandler(cfg.IssuerName, engine),
		UserInfo:  httptransport.NewUserInfoHandler(tokens),
		Register:  httptransport.NewRegistrationHandler(registration.NewService(clients, auditPub)),
	}, generator, log)

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting idserver", "addr", cfg.Addr, "issuer", cfg.IssuerName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweepExpired(ctx, log, cfg, tokens, codes, confirmations)
		return nil
	})

	return g.Wait()
}

// sweepExpired periodically evicts expired tokens and codes from stores that
// cannot do it themselves. The Redis stores expire keys natively and never
// match the assertions below.
func sweepExpired(ctx context.Context, log *slog.Logger, cfg config.Server, tokens tokenStore, codes codeStore, confirmations interactive.ConfirmationStore) {
	tokenSweeper, _ := tokens.(interface {
		DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
	})
	codeSweeper, _ := codes.(interface {
		DeleteExpiredCodes(ctx context.Context, validity time.Duration, now time.Time) (int, error)
	})
	confirmationSweeper, _ := confirmations.(interface {
		DeleteExpiredCodes(ctx context.Context, now time.Time) (int, error)
	})
	if tokenSweeper == nil && codeSweeper == nil && confirmationSweeper == nil {
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if tokenSweeper != nil {
				if n, err := tokenSweeper.DeleteExpiredTokens(ctx, now); err == nil && n > 0 {
					log.Debug("swept expired tokens", "count", n)
				}
			}
			if codeSweeper != nil {
				if n, err := codeSweeper.DeleteExpiredCodes(ctx, cfg.AuthorizationCodeValidity, now); err == nil && n > 0 {
					log.Debug("swept expired authorization codes", "count", n)
				}
			}
			if confirmationSweeper != nil {
				if n, err := confirmationSweeper.DeleteExpiredCodes(ctx, now); err == nil && n > 0 {
					log.Debug("swept expired confirmation codes", "count", n)
				}
			}
		}
	}
}

// logDispatcher writes confirmation codes to the log instead of delivering
// them. Stands in until an SMS or mail provider is wired up.
type logDispatcher struct {
	channel string
	logger  *slog.Logger
}

func (d logDispatcher) Dispatch(_ context.Context, owner *oauth.ResourceOwner, code string) error {
	d.logger.Info("confirmation code dispatched", "channel", d.channel, "subject", owner.Subject, "code", code)
	return nil
}

// demoClients seeds the client registry alongside whatever the registration
// endpoint adds at runtime.
func demoClients() []*oauth.Client {
	return []*oauth.Client{
		{
			ID:            "demo-client",
			Secret:        "demo-secret",
			RedirectURIs:  []string{"http://localhost:3000/callback"},
			AllowedScopes: []string{"openid", "profile", "email"},
			GrantTypes: []oauth.GrantType{
				oauth.GrantAuthorizationCode,
				oauth.GrantPassword,
				oauth.GrantRefreshToken,
				oauth.GrantClientCredentials,
			},
			ResponseTypes: []oauth.ResponseType{
				oauth.ResponseTypeCode,
				oauth.ResponseTypeToken,
				oauth.ResponseTypeIDToken,
			},
			TokenEndpointAuth: oauth.AuthMethodSecretBasic,
		},
	}
}

// demoOwners seeds a development login when no Postgres store is configured.
func demoOwners(log *slog.Logger) []*oauth.ResourceOwner {
	hash, err := ownerauth.HashPassword("password")
	if err != nil {
		log.Error("failed to hash demo password", "error", err)
		return nil
	}
	log.Warn("seeded demo resource owner", "subject", "demo", "password", "password")
	return []*oauth.ResourceOwner{
		{
			Subject:      "demo",
			PasswordHash: hash,
			Claims: map[string]string{
				oauth.ClaimName:  "Demo User",
				oauth.ClaimEmail: "demo@example.com",
			},
			IsLocal:   true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

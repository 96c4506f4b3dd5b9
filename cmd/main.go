package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	transfers "transfer_ledger_back"
	"transfer_ledger_back/internal/wallet"
	"transfer_ledger_back/models"
	"transfer_ledger_back/pkg/cache"
	"transfer_ledger_back/pkg/decoration"
	"transfer_ledger_back/pkg/handler"
	"transfer_ledger_back/pkg/ledgerclient"
	"transfer_ledger_back/pkg/repository"
	"transfer_ledger_back/pkg/service"
	"transfer_ledger_back/pkg/session"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))
	logrus.Infoln("starting transfer ledger client")
	if err := godotenv.Load(); err != nil {
		logrus.Infof("no .env loaded: %s", err)
	}

	if err := InitConfig(); err != nil {
		logrus.Fatalf("read config.yaml: %s", err.Error())
	}
	logrus.Infoln("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chain, err := ethclient.DialContext(ctx, viper.GetString("chain.rpc_url"))
	if err != nil {
		logrus.Fatalf("dial chain rpc: %s", err.Error())
	}
	defer chain.Close()

	provider, err := newProvider(ctx, chain)
	if err != nil {
		logrus.Fatalf("wallet provider: %s", err.Error())
	}
	if !provider.HasProvider() {
		logrus.Warn("no wallet provider available, the client will stay disconnected")
	}

	ledger, err := ledgerclient.NewLedgerClient(chain, provider, ledgerclient.Config{
		Contract:       viper.GetString("chain.contract"),
		ConfirmTimeout: viper.GetDuration("chain.confirm_timeout"),
		PollInterval:   viper.GetDuration("chain.poll_interval"),
	})
	if err != nil {
		logrus.Fatalf("ledger client: %s", err.Error())
	}

	store, err := newCountStore()
	if err != nil {
		logrus.Fatalf("transaction cache: %s", err.Error())
	}
	counts := cache.NewTransactionCache(store)
	defer counts.Close()

	sess := session.NewSession(provider)
	fetcher := decoration.NewFetcher(decoration.Config{
		BaseURL:  viper.GetString("decoration.base_url"),
		APIKey:   os.Getenv("GIPHY_API_KEY"),
		Timeout:  viper.GetDuration("decoration.timeout"),
		CacheTTL: viper.GetDuration("decoration.cache_ttl"),
	})

	svc := service.NewService(sess, ledger, counts, fetcher)
	if err := svc.Start(ctx); err != nil {
		logrus.Warnf("initial sync: %s", err)
	}
	go sess.Watch(ctx, viper.GetDuration("wallet.watch_interval"), func(account models.Account) {
		svc.AccountChanged(ctx, account)
	})

	h := handler.NewHandler(svc, handler.Config{
		AllowOrigins: viper.GetStringSlice("cors.origins"),
		ExplorerURL:  viper.GetString("chain.explorer_url"),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = viper.GetString("port")
	}
	srv := new(transfers.Server)
	go func() {
		if err := srv.Run(port, h.InitRoute()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("http server: %s", err)
		}
	}()
	logrus.Infof("listening on :%s", port)

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("shutdown: %s", err)
	}
}

func InitConfig() error {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	viper.SetDefault("port", "8000")
	viper.SetDefault("chain.confirm_timeout", ledgerclient.DefaultConfirmTimeout)
	viper.SetDefault("chain.poll_interval", ledgerclient.DefaultPollInterval)
	viper.SetDefault("wallet.mode", "rpc")
	viper.SetDefault("wallet.watch_interval", session.DefaultWatchInterval)
	viper.SetDefault("cache.driver", "badger")
	viper.SetDefault("cache.path", "data/client_state")
	viper.SetDefault("redis.prefix", "transfer_ledger")
	return viper.ReadInConfig()
}

func newProvider(ctx context.Context, chain *ethclient.Client) (wallet.Provider, error) {
	switch mode := viper.GetString("wallet.mode"); mode {
	case "key":
		key := os.Getenv("WALLET_PRIVATE_KEY")
		if key == "" {
			w, err := wallet.GenerateWallet()
			if err != nil {
				return nil, err
			}
			logrus.Warnf("WALLET_PRIVATE_KEY not set, using throwaway account %s", w.Address)
			key = w.PrivateKey
		}
		return wallet.NewKeyProvider(chain, key, wallet.AutoApprove{}, viper.GetBool("wallet.preauthorized"))
	case "rpc":
		return wallet.DialRPCProvider(ctx, viper.GetString("wallet.rpc_url")), nil
	default:
		return nil, errors.New("unknown wallet.mode " + mode)
	}
}

func newCountStore() (cache.CountStore, error) {
	switch driver := viper.GetString("cache.driver"); driver {
	case "badger":
		return cache.OpenBadgerStore(viper.GetString("cache.path"))
	case "postgres":
		db, err := repository.NewPostgresDB(repository.Config{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: os.Getenv("DB_PASS_LOCAL"),
			DBName:   viper.GetString("db.dbname"),
			SSLMode:  viper.GetString("db.sslmode"),
		})
		if err != nil {
			return nil, err
		}
		logrus.Info("postgres connected")
		repos, err := repository.NewRepository(db)
		if err != nil {
			return nil, err
		}
		return repos.ClientState, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     viper.GetString("redis.addr"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("redis.db"),
		})
		return cache.NewRedisStore(client, viper.GetString("redis.prefix")), nil
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return nil, errors.New("unknown cache.driver " + driver)
	}
}

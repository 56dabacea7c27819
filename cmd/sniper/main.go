package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nadsniper/internal/chain"
	"github.com/betbot/nadsniper/internal/controller"
	"github.com/betbot/nadsniper/internal/discovery"
	"github.com/betbot/nadsniper/internal/executor"
	"github.com/betbot/nadsniper/internal/ledger"
	"github.com/betbot/nadsniper/internal/metrics"
	"github.com/betbot/nadsniper/internal/oracle"
	"github.com/betbot/nadsniper/internal/risk"
	"github.com/betbot/nadsniper/internal/statusapi"
	"github.com/betbot/nadsniper/pkg/clock"
	"github.com/betbot/nadsniper/pkg/config"
	"github.com/betbot/nadsniper/pkg/logger"
	"github.com/betbot/nadsniper/pkg/ratelimit"
	sdkhttp "github.com/betbot/nadsniper/pkg/sdk/http"
	"github.com/betbot/nadsniper/pkg/secretstore"
	"github.com/betbot/nadsniper/pkg/shutdown"
	"github.com/betbot/nadsniper/pkg/wallet"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json），为空则使用默认值和环境变量")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logrus.Errorf("Fatal error: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	base, err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	runID := uuid.NewString()
	log := base.WithField("run_id", runID)

	fmt.Println(renderBanner(cfg, runID))

	sd := shutdown.NewManager()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sd.Shutdown(ctx)
	}()

	// 钱包
	signer, err := loadSigner(cfg, sd)
	if err != nil {
		if errors.Is(err, wallet.ErrKeyFileCreated) {
			log.Warnf("Creating sample %s file. Please edit this file with your actual private key.", cfg.Wallet.PrivateKeyFile)
			return errors.New("please set up your wallet first")
		}
		if errors.Is(err, wallet.ErrPlaceholderKey) {
			return fmt.Errorf("you need to edit the %s file with your actual private key", cfg.Wallet.PrivateKeyFile)
		}
		return err
	}
	log.Infof("Starting sniper with address: %s", signer.Address.Hex())

	// 链
	dialCtx, cancelDial := context.WithTimeout(context.Background(), 15*time.Second)
	eth, err := chain.Dial(dialCtx, cfg.Chain.RPCURL)
	cancelDial()
	if err != nil {
		return err
	}
	sd.OnShutdown("ethclient", func(context.Context) { eth.Close() })

	chainClient := chain.NewClient(eth, signer.Key, chain.Config{
		ChainID:        cfg.Chain.ChainID,
		Router:         common.HexToAddress(cfg.Contracts.Router),
		FeeHeadroomPct: cfg.Gas.FeeHeadroomPct,
	}, logger.Component(log, "chain"))

	purchase, err := cfg.PurchaseAmountWei()
	if err != nil {
		return err
	}
	balCtx, cancelBal := context.WithTimeout(context.Background(), 15*time.Second)
	balance, err := chainClient.NativeBalance(balCtx)
	cancelBal()
	if err != nil {
		log.WithError(err).Error("Error getting balance")
	} else {
		log.Infof("Account balance: %s %s", executor.FormatEther(balance), cfg.Chain.Symbol)
		if lowBalance(balance, purchase) {
			need := new(big.Int).Mul(purchase, big.NewInt(2))
			log.Warnf("Low balance. You need at least %s %s to snipe effectively",
				executor.FormatEther(need), cfg.Chain.Symbol)
		}
	}

	// 账本
	store, err := openStore(cfg, sd)
	if err != nil {
		return err
	}
	book, err := ledger.Open(store, logger.Component(log, "ledger"))
	if err != nil {
		return err
	}

	// HTTP
	httpc := sdkhttp.NewClient(sdkhttp.Options{
		Timeout: cfg.Oracle.AttemptTimeout(),
		Headers: map[string]string{
			"User-Agent":     cfg.API.UserAgent,
			"Origin":         cfg.API.Origin,
			"Referer":        cfg.API.Origin + "/",
			"Sec-Fetch-Site": "same-site",
		},
		Limiter: ratelimit.NewTokenBucket(cfg.API.RateLimitPerSecond, cfg.API.RateLimitPerSecond),
	})

	clk := clock.Real{}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	feed := discovery.NewFeed(httpc, cfg.API.DiscoveryURL, logger.Component(log, "discovery"))
	prices := oracle.New(oracle.Config{
		BaseURL:        cfg.API.PriceBaseURL,
		Retries:        cfg.Oracle.Retries,
		BaseDelay:      cfg.Oracle.BaseDelay(),
		AttemptTimeout: cfg.Oracle.AttemptTimeout(),
	}, httpc, rnd, clk, logger.Component(log, "oracle"))
	prices.OnResult(func(o oracle.Outcome) { metrics.PriceOutcomes.Add(o.String(), 1) })

	exec := executor.New(executor.Config{
		FeePercent:     cfg.Trading.FeePercent,
		DeadlineHours:  cfg.Trading.DeadlineHours,
		BuyGasLimitMin: cfg.Gas.BuyGasLimitMin,
		BuyGasLimitMax: cfg.Gas.BuyGasLimitMax,
		SellGasLimit:   cfg.Gas.SellGasLimit,
		FeeHeadroomPct: cfg.Gas.FeeHeadroomPct,
		NativeSymbol:   cfg.Chain.Symbol,
		TxExplorer:     cfg.Chain.TxExplorer,
	}, chainClient, book, rnd, clk, logger.Component(log, "executor"))

	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
		MaxConsecutiveErrors: cfg.Trading.MaxConsecutiveBuyFailures,
	})

	ctrl := controller.New(controller.Config{
		PurchaseAmount:     purchase,
		MaxTokenAge:        cfg.Monitoring.MaxTokenAge(),
		MonitorDelay:       cfg.Monitoring.MonitorDelay(),
		PriceCheckInterval: cfg.Monitoring.PriceCheckInterval,
		StaleAfter:         cfg.Monitoring.StaleAfter(),
		TakeProfitPct:      decimal.NewFromFloat(cfg.Trading.TakeProfitPct),
		StopLossPct:        decimal.NewFromFloat(cfg.Trading.StopLossPct),
		NativeSymbol:       cfg.Chain.Symbol,
	}, feed, prices, exec, book, breaker, clk, logger.Component(log, "controller"))

	if cfg.Status.Listen != "" {
		api := statusapi.New(ctrl, book, logger.Component(log, "statusapi"))
		if err := api.Start(cfg.Status.Listen); err != nil {
			return fmt.Errorf("启动状态接口失败: %w", err)
		}
		sd.OnShutdown("statusapi", func(ctx context.Context) { _ = api.Shutdown(ctx) })
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = ctrl.Run(ctx)
	log.Info("收到退出信号，正在关闭...")
	return err
}

func loadSigner(cfg config.Config, sd *shutdown.Manager) (*wallet.Signer, error) {
	src := wallet.Source{
		KeyFile:        cfg.Wallet.PrivateKeyFile,
		DerivationPath: cfg.Wallet.DerivationPath,
	}
	if cfg.Wallet.SecretDB != "" {
		key, err := secretstore.ParseKey(os.Getenv(cfg.Wallet.SecretKeyEnv))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Wallet.SecretKeyEnv, err)
		}
		ss, err := secretstore.Open(secretstore.OpenOptions{
			Path:          cfg.Wallet.SecretDB,
			EncryptionKey: key,
			ReadOnly:      true,
		})
		if err != nil {
			return nil, err
		}
		sd.OnShutdown("secretstore", func(context.Context) { _ = ss.Close() })
		src.Secrets = ss
	}
	return wallet.Load(src)
}

func openStore(cfg config.Config, sd *shutdown.Manager) (ledger.Store, error) {
	if cfg.Ledger.Driver == "sqlite" {
		s, err := ledger.OpenSQLiteStore(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		sd.OnShutdown("ledger", func(context.Context) { _ = s.Close() })
		return s, nil
	}
	return ledger.NewJSONStore(cfg.Ledger.Path), nil
}

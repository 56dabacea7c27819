package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// ChainConfig 链配置
type ChainConfig struct {
	RPCURL     string `yaml:"rpc_url" json:"rpc_url"`
	ChainID    int64  `yaml:"chain_id" json:"chain_id"`
	Symbol     string `yaml:"symbol" json:"symbol"`
	TxExplorer string `yaml:"tx_explorer" json:"tx_explorer"`
}

// ContractsConfig 合约地址
type ContractsConfig struct {
	Router string `yaml:"router" json:"router"`
}

// APIConfig 发现/价格接口配置
type APIConfig struct {
	DiscoveryURL       string `yaml:"discovery_url" json:"discovery_url"`
	PriceBaseURL       string `yaml:"price_base_url" json:"price_base_url"`
	RateLimitPerSecond int    `yaml:"rate_limit_per_second" json:"rate_limit_per_second"` // 0 表示不限流
	UserAgent          string `yaml:"user_agent" json:"user_agent"`
	Origin             string `yaml:"origin" json:"origin"`
}

// WalletConfig 钱包配置（私钥本身不进入配置）
type WalletConfig struct {
	PrivateKeyFile string `yaml:"private_key_file" json:"private_key_file"`
	SecretDB       string `yaml:"secret_db" json:"secret_db"`           // badger 密钥库路径（可选）
	SecretKeyEnv   string `yaml:"secret_key_env" json:"secret_key_env"` // 保存 badger 加密 key 的环境变量名
	DerivationPath string `yaml:"derivation_path" json:"derivation_path"`
}

// TradingConfig 交易参数
type TradingConfig struct {
	PurchaseAmount            string  `yaml:"purchase_amount" json:"purchase_amount"` // 原生币单位，例如 "0.5"
	FeePercent                int64   `yaml:"fee_percent" json:"fee_percent"`
	DeadlineHours             int64   `yaml:"deadline_hours" json:"deadline_hours"`
	TakeProfitPct             float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	StopLossPct               float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	MaxConsecutiveBuyFailures int64   `yaml:"max_consecutive_buy_failures" json:"max_consecutive_buy_failures"` // 0 表示关闭熔断
}

// MonitoringConfig 主循环节奏
type MonitoringConfig struct {
	MonitorDelayMs     int   `yaml:"monitor_delay_ms" json:"monitor_delay_ms"`
	PriceCheckInterval int   `yaml:"price_check_interval" json:"price_check_interval"`
	MaxTokenAgeSec     int64 `yaml:"max_token_age_sec" json:"max_token_age_sec"`
	StaleAfterSec      int64 `yaml:"stale_after_sec" json:"stale_after_sec"`
}

// OracleConfig 价格查询重试策略
type OracleConfig struct {
	Retries          int `yaml:"retries" json:"retries"`
	BaseDelayMs      int `yaml:"base_delay_ms" json:"base_delay_ms"`
	AttemptTimeoutMs int `yaml:"attempt_timeout_ms" json:"attempt_timeout_ms"`
}

// GasConfig gas 参数
type GasConfig struct {
	BuyGasLimitMin uint64 `yaml:"buy_gas_limit_min" json:"buy_gas_limit_min"`
	BuyGasLimitMax uint64 `yaml:"buy_gas_limit_max" json:"buy_gas_limit_max"`
	SellGasLimit   uint64 `yaml:"sell_gas_limit" json:"sell_gas_limit"`
	FeeHeadroomPct int64  `yaml:"fee_headroom_pct" json:"fee_headroom_pct"`
}

// LedgerConfig 持仓账本存储
type LedgerConfig struct {
	Driver string `yaml:"driver" json:"driver"` // json 或 sqlite
	Path   string `yaml:"path" json:"path"`
}

// StatusConfig 只读状态接口
type StatusConfig struct {
	Listen string `yaml:"listen" json:"listen"` // 为空则不启动
}

// Config 应用配置。启动时构造一次，之后只读。
type Config struct {
	Log        LogConfig        `yaml:"log" json:"log"`
	Chain      ChainConfig      `yaml:"chain" json:"chain"`
	Contracts  ContractsConfig  `yaml:"contracts" json:"contracts"`
	API        APIConfig        `yaml:"api" json:"api"`
	Wallet     WalletConfig     `yaml:"wallet" json:"wallet"`
	Trading    TradingConfig    `yaml:"trading" json:"trading"`
	Monitoring MonitoringConfig `yaml:"monitoring" json:"monitoring"`
	Oracle     OracleConfig     `yaml:"oracle" json:"oracle"`
	Gas        GasConfig        `yaml:"gas" json:"gas"`
	Ledger     LedgerConfig     `yaml:"ledger" json:"ledger"`
	Status     StatusConfig     `yaml:"status" json:"status"`
}

// Default 返回默认配置（Monad testnet + nad.fun）
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:      "info",
			File:       "logs/sniper.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Chain: ChainConfig{
			RPCURL:     "https://testnet-rpc.monad.xyz",
			ChainID:    10143,
			Symbol:     "MON",
			TxExplorer: "https://testnet.monadexplorer.com/tx/",
		},
		Contracts: ContractsConfig{
			Router: "0x822EB1ADD41cf87C3F178100596cf24c9a6442f6",
		},
		API: APIConfig{
			DiscoveryURL: "https://testnet-api-server.nad.fun/order/latest_trade?page=1&limit=52",
			PriceBaseURL: "https://testnet-api-server.nad.fun/trade/market/",
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
			Origin:       "https://testnet.nad.fun",
		},
		Wallet: WalletConfig{
			PrivateKeyFile: "private.key",
			SecretKeyEnv:   "SNIPER_SECRET_KEY",
			DerivationPath: "m/44'/60'/0'/0/0",
		},
		Trading: TradingConfig{
			PurchaseAmount: "0.5",
			FeePercent:     1,
			DeadlineHours:  6,
			TakeProfitPct:  20,
			StopLossPct:    15,
		},
		Monitoring: MonitoringConfig{
			MonitorDelayMs:     5000,
			PriceCheckInterval: 6,
			MaxTokenAgeSec:     5,
			StaleAfterSec:      3600,
		},
		Oracle: OracleConfig{
			Retries:          3,
			BaseDelayMs:      2000,
			AttemptTimeoutMs: 10000,
		},
		Gas: GasConfig{
			BuyGasLimitMin: 250000,
			BuyGasLimitMax: 350000,
			SellGasLimit:   300000,
			FeeHeadroomPct: 5,
		},
		Ledger: LedgerConfig{
			Driver: "json",
			Path:   "sniped_tokens.json",
		},
	}
}

// Load 加载配置：默认值 <- 配置文件 <- .env / 环境变量，最后校验。
// filePath 为空时只使用默认值和环境变量。
func Load(filePath string) (Config, error) {
	// .env 不存在不是错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("加载 .env 失败: %w", err)
	}

	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, &cfg); err != nil {
			return Config{}, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadConfigFile 按扩展名解析配置文件，文件中的字段覆盖默认值
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 环境变量优先级最高
func applyEnv(cfg *Config) {
	cfg.Chain.RPCURL = getEnv("SNIPER_RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.ChainID = int64(parseIntEnv("SNIPER_CHAIN_ID", int(cfg.Chain.ChainID)))
	cfg.Contracts.Router = getEnv("SNIPER_ROUTER", cfg.Contracts.Router)
	cfg.Wallet.PrivateKeyFile = getEnv("SNIPER_PRIVATE_KEY_FILE", cfg.Wallet.PrivateKeyFile)
	cfg.Wallet.SecretDB = getEnv("SNIPER_SECRET_DB", cfg.Wallet.SecretDB)
	cfg.Ledger.Path = getEnv("SNIPER_LEDGER_PATH", cfg.Ledger.Path)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Status.Listen = getEnv("SNIPER_STATUS_LISTEN", cfg.Status.Listen)
	cfg.Trading.PurchaseAmount = getEnv("SNIPER_PURCHASE_AMOUNT", cfg.Trading.PurchaseAmount)
	cfg.Trading.TakeProfitPct = parseFloatEnv("SNIPER_TAKE_PROFIT_PCT", cfg.Trading.TakeProfitPct)
	cfg.Trading.StopLossPct = parseFloatEnv("SNIPER_STOP_LOSS_PCT", cfg.Trading.StopLossPct)
}

// Validate 验证配置
func (c Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url 未配置")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id 必须大于 0")
	}
	if !common.IsHexAddress(c.Contracts.Router) {
		return fmt.Errorf("contracts.router 不是合法地址: %q", c.Contracts.Router)
	}
	if strings.TrimSpace(c.API.DiscoveryURL) == "" || strings.TrimSpace(c.API.PriceBaseURL) == "" {
		return fmt.Errorf("api.discovery_url / api.price_base_url 未配置")
	}
	amount, err := c.PurchaseAmountWei()
	if err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("trading.purchase_amount 必须大于 0")
	}
	if c.Trading.FeePercent < 0 {
		return fmt.Errorf("trading.fee_percent 不能为负数")
	}
	if c.Trading.DeadlineHours <= 0 {
		return fmt.Errorf("trading.deadline_hours 必须大于 0")
	}
	if c.Trading.TakeProfitPct < 0 || c.Trading.StopLossPct < 0 {
		return fmt.Errorf("trading.take_profit_pct / stop_loss_pct 不能为负数")
	}
	if c.Trading.StopLossPct > 100 {
		return fmt.Errorf("trading.stop_loss_pct 不能超过 100")
	}
	if c.Monitoring.PriceCheckInterval < 1 {
		return fmt.Errorf("monitoring.price_check_interval 必须 >= 1")
	}
	if c.Monitoring.MonitorDelayMs < 0 || c.Monitoring.MaxTokenAgeSec < 0 {
		return fmt.Errorf("monitoring 参数不能为负数")
	}
	if c.Oracle.Retries < 1 {
		return fmt.Errorf("oracle.retries 必须 >= 1")
	}
	if c.Gas.BuyGasLimitMin == 0 || c.Gas.BuyGasLimitMin > c.Gas.BuyGasLimitMax {
		return fmt.Errorf("gas.buy_gas_limit_min/max 无效: [%d, %d]", c.Gas.BuyGasLimitMin, c.Gas.BuyGasLimitMax)
	}
	if c.Gas.SellGasLimit == 0 {
		return fmt.Errorf("gas.sell_gas_limit 必须大于 0")
	}
	if c.Gas.FeeHeadroomPct < 0 {
		return fmt.Errorf("gas.fee_headroom_pct 不能为负数")
	}
	switch c.Ledger.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("ledger.driver 仅支持 json / sqlite: %q", c.Ledger.Driver)
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		return fmt.Errorf("ledger.path 未配置")
	}
	return nil
}

// PurchaseAmountWei 把 purchase_amount（18 位精度原生币）换算为 wei
func (c Config) PurchaseAmountWei() (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Trading.PurchaseAmount))
	if err != nil {
		return nil, fmt.Errorf("trading.purchase_amount 无效: %w", err)
	}
	return d.Shift(18).BigInt(), nil
}

func (m MonitoringConfig) MonitorDelay() time.Duration {
	return time.Duration(m.MonitorDelayMs) * time.Millisecond
}

func (m MonitoringConfig) MaxTokenAge() time.Duration {
	return time.Duration(m.MaxTokenAgeSec) * time.Second
}

func (m MonitoringConfig) StaleAfter() time.Duration {
	return time.Duration(m.StaleAfterSec) * time.Second
}

func (o OracleConfig) BaseDelay() time.Duration {
	return time.Duration(o.BaseDelayMs) * time.Millisecond
}

func (o OracleConfig) AttemptTimeout() time.Duration {
	return time.Duration(o.AttemptTimeoutMs) * time.Millisecond
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return v
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

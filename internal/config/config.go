package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

// On-chain rules enforced by the vault program. The client prechecks them
// locally so it never submits a transaction the program is known to reject.
const (
	HoldDuration   = 30 * 24 * time.Hour
	RewardInterval = 90 * 24 * time.Hour

	// The manual price anchor is expressed as lamports per this many tokens.
	ManualPriceTokenLot = 10_000

	// Used only when an old Vault account predates the mint_decimals field.
	// The on-chain value is authoritative whenever present.
	FallbackMintDecimals = uint8(6)
)

// Single authoritative copy of every program constant. Earlier prototypes
// hard-coded these per screen and drifted; every call site must go through
// the loaded config.
var (
	defaultProgramID = solana.MustPublicKeyFromBase58("EDY4bp4fXWkAJpJhXUMZLL7fjpDhpKZQFPpygzsTMzro")
	defaultMint      = solana.MustPublicKeyFromBase58("3rCZT3Xw6jvU4JWatQPsivS8fQ7gV7GjUfJnbTk9Ssn5")
	defaultTreasury  = solana.MustPublicKeyFromBase58("CEUmazdgtbUCcQyLq6NCm4BuQbvCsYFzKsS5wdRvZehV")
	defaultFounder   = solana.MustPublicKeyFromBase58("AqPFb5LWQuzKiyoKTX9XgUwsYWoFvpeE8E8uzQvnDTzT")

	defaultPythSolUsdFeedID = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"
)

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

// ProgramConfig identifies the vault program and its fixed collaborator
// accounts. Shared by the client and the relay.
type ProgramConfig struct {
	ProgramID solana.PublicKey
	Mint      solana.PublicKey
	Treasury  solana.PublicKey
	Founder   solana.PublicKey
}

type ClientConfig struct {
	RPCURL                        string
	Commitment                    rpc.CommitmentType
	KeypairPath                   string
	TxTimeout                     time.Duration
	SkipPreflight                 bool
	MaxRetries                    *uint
	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64
	Program                       ProgramConfig
	Log                           LogConfig
}

type PriceConfig struct {
	SourceTimeout       time.Duration
	CacheTTL            time.Duration
	RefreshInterval     time.Duration
	PythFeedID          string
	AllowCoinGecko      bool
	DevSolUsd           float64
	DexPair             string
	FloorUsd            float64
	TreasuryWeight      float64
	MaxSupply           uint64
	CirculatingOverride uint64
}

type TelegramConfig struct {
	BotToken            string
	AdminChatID         string
	WhaleTokenThreshold float64
	DeviationPct        float64
	WatchInterval       time.Duration
}

type APIServerConfig struct {
	ListenAddr     string
	DBDSN          string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	WebhookSecret  string
	MaxKeepEvents  int
	RPCURL         string
	Commitment     rpc.CommitmentType
	Program        ProgramConfig
	Price          PriceConfig
	Telegram       TelegramConfig
	Log            LogConfig
}

func loadProgramConfig() (ProgramConfig, error) {
	programID, err := envPubkey("DMD_PROGRAM_ID", defaultProgramID)
	if err != nil {
		return ProgramConfig{}, err
	}
	mint, err := envPubkey("DMD_MINT", defaultMint)
	if err != nil {
		return ProgramConfig{}, err
	}
	treasury, err := envPubkey("DMD_TREASURY", defaultTreasury)
	if err != nil {
		return ProgramConfig{}, err
	}
	founder, err := envPubkey("DMD_FOUNDER", defaultFounder)
	if err != nil {
		return ProgramConfig{}, err
	}
	return ProgramConfig{
		ProgramID: programID,
		Mint:      mint,
		Treasury:  treasury,
		Founder:   founder,
	}, nil
}

func LoadClientConfig() (ClientConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ClientConfig{}, err
	}

	program, err := loadProgramConfig()
	if err != nil {
		return ClientConfig{}, err
	}

	keypairPath, err := expandHomePath(envOrDefault("CLIENT_KEYPAIR_PATH", envOrDefault("SOLANA_KEYPAIR_PATH", "~/.config/solana/id.json")))
	if err != nil {
		return ClientConfig{}, fmt.Errorf("expand keypair path: %w", err)
	}

	txTimeout, err := envDuration("CLIENT_TX_TIMEOUT", 30*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	commitment, err := envCommitment("SOLANA_COMMITMENT", rpc.CommitmentConfirmed)
	if err != nil {
		return ClientConfig{}, err
	}

	skipPreflight, err := envBool("CLIENT_SKIP_PREFLIGHT", false)
	if err != nil {
		return ClientConfig{}, err
	}

	maxRetries, err := envOptionalUint("CLIENT_MAX_RETRIES")
	if err != nil {
		return ClientConfig{}, err
	}

	cuLimit, err := envUint32("CLIENT_COMPUTE_UNIT_LIMIT", 0)
	if err != nil {
		return ClientConfig{}, err
	}

	cuPrice, err := envUint64("CLIENT_COMPUTE_UNIT_PRICE_MICRO_LAMPORTS", 0)
	if err != nil {
		return ClientConfig{}, err
	}

	return ClientConfig{
		RPCURL:                        envOrDefault("SOLANA_RPC_URL", rpc.MainNetBeta_RPC),
		Commitment:                    commitment,
		KeypairPath:                   keypairPath,
		TxTimeout:                     txTimeout,
		SkipPreflight:                 skipPreflight,
		MaxRetries:                    maxRetries,
		ComputeUnitLimit:              cuLimit,
		ComputeUnitPriceMicroLamports: cuPrice,
		Program:                       program,
		Log:                           buildLogConfig("CLIENT", "dmd"),
	}, nil
}

func LoadPriceConfig() (PriceConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return PriceConfig{}, err
	}

	sourceTimeout, err := envDuration("PRICE_SOURCE_TIMEOUT", 5*time.Second)
	if err != nil {
		return PriceConfig{}, err
	}
	cacheTTL, err := envDuration("PRICE_CACHE_TTL", 20*time.Second)
	if err != nil {
		return PriceConfig{}, err
	}
	refreshInterval, err := envDuration("PRICE_REFRESH_INTERVAL", 30*time.Second)
	if err != nil {
		return PriceConfig{}, err
	}
	allowCoinGecko, err := envBool("PRICE_ALLOW_COINGECKO", false)
	if err != nil {
		return PriceConfig{}, err
	}
	devSolUsd, err := envFloat("PRICE_DEV_SOL_USD", 0)
	if err != nil {
		return PriceConfig{}, err
	}
	floorUsd, err := envFloat("PRICE_FLOOR_USD", 0.01)
	if err != nil {
		return PriceConfig{}, err
	}
	treasuryWeight, err := envFloat("PRICE_TREASURY_WEIGHT", 1.0)
	if err != nil {
		return PriceConfig{}, err
	}
	if treasuryWeight < 0 || treasuryWeight > 1 {
		return PriceConfig{}, fmt.Errorf("invalid PRICE_TREASURY_WEIGHT: must be within [0,1]")
	}
	maxSupply, err := envUint64("PRICE_MAX_SUPPLY", 150_000_000)
	if err != nil {
		return PriceConfig{}, err
	}
	circulatingOverride, err := envUint64("PRICE_CIRCULATING_OVERRIDE", 0)
	if err != nil {
		return PriceConfig{}, err
	}

	return PriceConfig{
		SourceTimeout:       sourceTimeout,
		CacheTTL:            cacheTTL,
		RefreshInterval:     refreshInterval,
		PythFeedID:          strings.ToLower(strings.TrimSpace(envOrDefault("PRICE_PYTH_SOL_USD_FEED_ID", defaultPythSolUsdFeedID))),
		AllowCoinGecko:      allowCoinGecko,
		DevSolUsd:           devSolUsd,
		DexPair:             strings.TrimSpace(envOrDefault("PRICE_DEX_PAIR", "")),
		FloorUsd:            floorUsd,
		TreasuryWeight:      treasuryWeight,
		MaxSupply:           maxSupply,
		CirculatingOverride: circulatingOverride,
	}, nil
}

func loadTelegramConfig() (TelegramConfig, error) {
	whale, err := envFloat("TELEGRAM_WHALE_DMD", 100_000)
	if err != nil {
		return TelegramConfig{}, err
	}
	deviation, err := envFloat("TELEGRAM_PRICE_DEVIATION_PCT", 3)
	if err != nil {
		return TelegramConfig{}, err
	}
	watchInterval, err := envDuration("TELEGRAM_PRICE_WATCH_INTERVAL", 15*time.Second)
	if err != nil {
		return TelegramConfig{}, err
	}
	return TelegramConfig{
		BotToken:            envOrDefault("TELEGRAM_BOT_TOKEN", ""),
		AdminChatID:         envOrDefault("TELEGRAM_ADMIN_CHAT_ID", ""),
		WhaleTokenThreshold: whale,
		DeviationPct:        deviation,
		WatchInterval:       watchInterval,
	}, nil
}

func LoadAPIServerConfig() (APIServerConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return APIServerConfig{}, err
	}

	program, err := loadProgramConfig()
	if err != nil {
		return APIServerConfig{}, err
	}

	price, err := LoadPriceConfig()
	if err != nil {
		return APIServerConfig{}, err
	}

	telegram, err := loadTelegramConfig()
	if err != nil {
		return APIServerConfig{}, err
	}

	readTimeout, err := envDuration("API_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}
	writeTimeout, err := envDuration("API_SERVER_WRITE_TIMEOUT", 15*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}
	idleTimeout, err := envDuration("API_SERVER_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}
	maxKeepEvents, err := envInt("API_SERVER_MAX_KEEP_EVENTS", 500)
	if err != nil {
		return APIServerConfig{}, err
	}
	commitment, err := envCommitment("SOLANA_COMMITMENT", rpc.CommitmentConfirmed)
	if err != nil {
		return APIServerConfig{}, err
	}

	allowedOrigins := parseCSVEnv(
		envOrDefault("API_SERVER_ALLOWED_ORIGINS", "*"),
		[]string{"*"},
	)

	return APIServerConfig{
		ListenAddr:     envOrDefault("API_SERVER_LISTEN_ADDR", ":8787"),
		DBDSN:          envOrDefault("API_SERVER_DB_DSN", ""),
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		AllowedOrigins: allowedOrigins,
		WebhookSecret:  envOrDefault("WEBHOOK_SECRET", ""),
		MaxKeepEvents:  maxKeepEvents,
		RPCURL:         envOrDefault("SOLANA_RPC_URL", rpc.MainNetBeta_RPC),
		Commitment:     commitment,
		Program:        program,
		Price:          price,
		Telegram:       telegram,
		Log:            buildLogConfig("API_SERVER", "api-server"),
	}, nil
}

type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return ConfigSource{
		Phase:  runtimeConfigPhase,
		Path:   runtimeConfigPath,
		Loaded: runtimeConfigLoaded,
	}, nil
}

func buildLogConfig(prefix string, serviceName string) LogConfig {
	level := envOrDefault(prefix+"_LOG_LEVEL", envOrDefault("LOG_LEVEL", "info"))
	format := envOrDefault(prefix+"_LOG_FORMAT", envOrDefault("LOG_FORMAT", "text"))
	output := envOrDefault(prefix+"_LOG_OUTPUT", envOrDefault("LOG_OUTPUT", "console"))
	filePath := envOrDefault(prefix+"_LOG_FILE", envOrDefault("LOG_FILE", filepath.Join(".docker", serviceName, serviceName+".log")))

	return LogConfig{
		Level:    level,
		Format:   format,
		Output:   output,
		FilePath: filePath,
	}
}

func envPubkey(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return pk, nil
}

func envCommitment(key string, fallback rpc.CommitmentType) (rpc.CommitmentType, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	switch strings.ToLower(raw) {
	case string(rpc.CommitmentProcessed):
		return rpc.CommitmentProcessed, nil
	case string(rpc.CommitmentConfirmed):
		return rpc.CommitmentConfirmed, nil
	case string(rpc.CommitmentFinalized):
		return rpc.CommitmentFinalized, nil
	default:
		return "", fmt.Errorf("invalid %s: %q (expected processed|confirmed|finalized)", key, raw)
	}
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return v, nil
}

func envUint64(key string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envUint32(key string, fallback uint32) (uint32, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint32(v), nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envOptionalUint(key string) (*uint, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	out := uint(v)
	return &out, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(valueForKey(key)); value != "" {
		return value
	}
	return fallback
}

func parseCSVEnv(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func expandHomePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return homeDir, nil
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

var (
	runtimeConfigOnce   sync.Once
	runtimeConfigErr    error
	runtimeConfigValues map[string]string
	runtimeConfigLoaded bool
	runtimeConfigPath   string
	runtimeConfigPhase  string
)

func ensureRuntimeConfigLoaded() error {
	runtimeConfigOnce.Do(func() {
		runtimeConfigValues = make(map[string]string)

		phase := strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
		if phase == "" {
			phase = "local"
		}
		runtimeConfigPhase = phase

		configPath := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
		explicitPath := configPath != ""
		if configPath == "" {
			configPath = filepath.Join("config", "config-"+phase+".yaml")
		}

		body, err := os.ReadFile(configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicitPath {
				return
			}
			runtimeConfigErr = fmt.Errorf("read config file %q: %w", configPath, err)
			return
		}

		raw := make(map[string]any)
		if err := yaml.Unmarshal(body, &raw); err != nil {
			runtimeConfigErr = fmt.Errorf("parse config file %q: %w", configPath, err)
			return
		}

		flattened, err := flattenConfig(raw)
		if err != nil {
			runtimeConfigErr = fmt.Errorf("flatten config file %q: %w", configPath, err)
			return
		}

		runtimeConfigValues = flattened
		runtimeConfigLoaded = true
		if absPath, err := filepath.Abs(configPath); err == nil {
			runtimeConfigPath = absPath
		} else {
			runtimeConfigPath = configPath
		}
	})
	return runtimeConfigErr
}

func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	for key, value := range raw {
		segment := normalizeKeySegment(key)
		if segment == "" {
			continue
		}
		if err := flattenConfigValue(segment, value, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flattenConfigValue(prefix string, value any, out map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case map[any]any:
		for keyAny, child := range typed {
			keyText, ok := keyAny.(string)
			if !ok {
				return fmt.Errorf("unsupported map key type %T under %q", keyAny, prefix)
			}
			segment := normalizeKeySegment(keyText)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if strings.TrimSpace(scalar) == "" {
					continue
				}
				parts = append(parts, strings.TrimSpace(scalar))
			case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
		return nil
	case nil:
		return nil
	default:
		out[prefix] = fmt.Sprint(typed)
		return nil
	}
}

func normalizeKeySegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false

	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ""
	}

	if value := strings.TrimSpace(runtimeConfigValues[key]); value != "" {
		return value
	}
	return ""
}

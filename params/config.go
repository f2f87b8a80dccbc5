package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Protocol holds the protocol-wide constants that bound market creation
// and the resolution/dispute game.
type Protocol struct {
	ResolutionBondBase uint64 // base token units (1e18 scale) for round-0 bond
	ResolutionFeeBps   uint64 // protocol-wide resolution fee, not caller-supplied
	MaxFeeBps          uint64 // ceiling on a market's creator_fee_bps
	MaxAffiliateFeeBps uint64 // ceiling on a market's affiliate_fee_bps
	MaxDescriptionLen  int
	MaxExtraInfoLen    int
	MaxTagLen          int
	MaxCategories      int
	MinOrderSpend      uint64 // base token units; orders below this are rejected
}

// API holds the REST/WS listen configuration. ListenAddr is the address
// passed to pkg/api's Server.Start; TxLogPath is loaded but not read by
// any other package.
type API struct {
	ListenAddr string
	TxLogPath  string
}

// Storage holds the embedded Pebble data directory, mirroring
// pkg/storage's NewStore path argument.
type Storage struct {
	DataDir string
}

// Logging mirrors pkg/util.NewLoggerWithFile's file-path argument.
type Logging struct {
	FilePath string
}

type Config struct {
	Protocol Protocol
	API      API
	Storage  Storage
	Logging  Logging
}

func Default() Config {
	return Config{
		Protocol: Protocol{
			ResolutionBondBase: 5_000_000_000_000_000_000, // 5 tokens at 1e18 denomination
			ResolutionFeeBps:   100,
			MaxFeeBps:          500,
			MaxAffiliateFeeBps: 10_000,
			MaxDescriptionLen:  200,
			MaxExtraInfoLen:    400,
			MaxTagLen:          20,
			MaxCategories:      8,
			MinOrderSpend:      100_000_000_000_000_000, // 0.1 token at 1e18 denomination
		},
		API: API{
			ListenAddr: ":8080",
			TxLogPath:  "data/tx.log",
		},
		Storage: Storage{
			DataDir: "data/engine-db",
		},
		Logging: Logging{
			FilePath: "data/engine.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("RESOLUTION_BOND_BASE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Protocol.ResolutionBondBase = n
		}
	}
	if v := os.Getenv("MAX_FEE_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Protocol.MaxFeeBps = n
		}
	}
	if v := os.Getenv("RESOLUTION_FEE_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Protocol.ResolutionFeeBps = n
		}
	}
	if v := os.Getenv("MIN_ORDER_SPEND"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Protocol.MinOrderSpend = n
		}
	}
	if v := os.Getenv("API_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
		cfg.API.TxLogPath = v + "/tx.log"
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.FilePath = v
	}

	return cfg
}

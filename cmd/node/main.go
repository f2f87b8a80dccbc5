package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/predimarket/engine/params"
	"github.com/predimarket/engine/pkg/api"
	"github.com/predimarket/engine/pkg/app/core/market"
	"github.com/predimarket/engine/pkg/app/protocol"
	"github.com/predimarket/engine/pkg/storage"
	"github.com/predimarket/engine/pkg/util"
)

// escrowAddress is the protocol's own custody account, holding reserved
// order spend and resolution stakes until they commit or refund.
var escrowAddress = common.HexToAddress("0x0000000000000000000000000000000000000001")

// defaultOwner judges disputed markets when no OWNER_ADDRESS is set.
var defaultOwner = common.HexToAddress("0x0000000000000000000000000000000000000002")

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = cfg.Logging.FilePath
	}

	// LOG_FILE=- means console-only, no file tee: useful when a container
	// orchestrator already captures stdout and a second copy on disk would
	// just be wasted space.
	var logger *zap.Logger
	var err error
	if logFile == "-" {
		logger, err = util.NewLogger()
	} else {
		logger, err = util.NewLoggerWithFile(logFile)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	store, err := storage.NewStore(cfg.Storage.DataDir)
	if err != nil {
		sugar.Fatalw("storage_init_failed", "err", err)
	}
	defer store.Close()

	owner := defaultOwner
	if v := os.Getenv("OWNER_ADDRESS"); v != "" && common.IsHexAddress(v) {
		owner = common.HexToAddress(v)
	}

	token := protocol.NewMemLedger()
	proto := protocol.New(owner, token, logger, cfg.Protocol, escrowAddress)
	proto.SetPersistHook(func(m *market.Market) {
		if err := store.SaveMarket(m); err != nil {
			sugar.Errorw("market_persist_failed", "market_id", m.ID, "err", err)
		}
	})

	ids, err := store.ListMarketIDs()
	if err != nil {
		sugar.Fatalw("storage_list_failed", "err", err)
	}
	for _, id := range ids {
		m, err := store.LoadMarket(id)
		if err != nil {
			sugar.Fatalw("market_load_failed", "market_id", id, "err", err)
		}
		if m == nil {
			continue
		}
		proto.RestoreMarket(m)
	}
	sugar.Infow("markets_restored", "count", len(ids))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewServer(proto)
	apiAddr := os.Getenv("API_ADDR")
	if apiAddr == "" {
		apiAddr = cfg.API.ListenAddr
	}

	go func() {
		sugar.Infow("api_server_starting", "addr", apiAddr)
		if err := apiServer.Start(apiAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting", "data_dir", cfg.Storage.DataDir, "api_addr", apiAddr)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Info("node_shutting_down")
			return
		case <-ticker.C:
			sugar.Infow("node_heartbeat", "markets", len(proto.ListMarkets()))
		}
	}
}

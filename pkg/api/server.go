package api

import (
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/predimarket/engine/pkg/app/core/amount"
	"github.com/predimarket/engine/pkg/app/core/market"
	"github.com/predimarket/engine/pkg/app/core/orderbook"
	"github.com/predimarket/engine/pkg/app/protocol"
)

// Server handles the REST API and WebSocket connections for the
// prediction-market engine: a mux router over the protocol's public
// operations plus a websocket hub streaming the engine's events.
type Server struct {
	proto  *protocol.Protocol
	router *mux.Router
	hub    *Hub

	// idempotency deduplicates order-submission and market-creation
	// requests carrying the
	// same client-supplied idempotencyKey, replaying the first response
	// instead of re-executing the mutation. Keyed separately from the
	// engine's own monotonic order_id, matching the distinction named in
	// the API's idempotency policy.
	idempotencyMu sync.Mutex
	idempotency   map[string][]byte
}

// NewServer constructs a server backed by the given protocol engine and
// wires its event bus to the websocket hub so every emitted event is
// rebroadcast to subscribed clients.
func NewServer(proto *protocol.Protocol) *Server {
	s := &Server{
		proto:       proto,
		router:      mux.NewRouter(),
		hub:         NewHub(),
		idempotency: make(map[string][]byte),
	}
	proto.Events().SetBroadcaster(s)
	s.setupRoutes()
	return s
}

// Broadcast implements protocol.Broadcaster, fanning every engine event
// out to the "market:{id}" websocket channel (and the "global" channel,
// for clients that haven't narrowed their subscription).
func (s *Server) Broadcast(event protocol.Event) {
	msg := WSMessage{Type: event.EventType(), Data: event}
	s.hub.BroadcastToChannel("global", msg)
	if id, ok := marketIDOf(event); ok {
		s.hub.BroadcastToChannel(channelFor(id), msg)
	}
}

func channelFor(marketID uint64) string {
	return "market:" + uint64ToStr(marketID)
}

func uint64ToStr(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}

// marketIDOf extracts the MarketID field of the event structs that carry
// one via a type switch, since Event only guarantees EventType(); it
// reports false for events without a market (UpdateUserBalance).
func marketIDOf(event protocol.Event) (uint64, bool) {
	switch e := event.(type) {
	case protocol.MarketCreated:
		return e.MarketID, true
	case protocol.OrderPlaced:
		return e.MarketID, true
	case protocol.OrderFilledAtPlacement:
		return e.MarketID, true
	case protocol.OrderPartlyFilled:
		return e.MarketID, true
	case protocol.OrderClosed:
		return e.MarketID, true
	case protocol.OrderCancelled:
		return e.MarketID, true
	case protocol.SharesSold:
		return e.MarketID, true
	case protocol.MarketResoluted:
		return e.MarketID, true
	case protocol.NewResolutionWindow:
		return e.MarketID, true
	case protocol.StakedOnResolution:
		return e.MarketID, true
	case protocol.MarketDisputed:
		return e.MarketID, true
	case protocol.StakedOnDispute:
		return e.MarketID, true
	case protocol.DisputeWithdraw:
		return e.MarketID, true
	case protocol.MarketFinalized:
		return e.MarketID, true
	case protocol.EarningsClaimed:
		return e.MarketID, true
	default:
		return 0, false
	}
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/markets", s.handleCreateMarket).Methods("POST")
	api.HandleFunc("/markets", s.handleListMarkets).Methods("GET")
	api.HandleFunc("/markets/{id}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{id}/orderbooks/{outcome}", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/markets/{id}/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/markets/{id}/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/markets/{id}/sell", s.handleSell).Methods("POST")
	api.HandleFunc("/markets/{id}/resolute", s.handleResolute).Methods("POST")
	api.HandleFunc("/markets/{id}/dispute", s.handleDispute).Methods("POST")
	api.HandleFunc("/markets/{id}/finalize", s.handleFinalize).Methods("POST")
	api.HandleFunc("/markets/{id}/withdraw-stake", s.handleWithdrawStake).Methods("POST")
	api.HandleFunc("/markets/{id}/claim", s.handleClaim).Methods("POST")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the websocket hub and serves the REST/WS API on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
	})

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	if cached, ok := s.replay(req.IdempotencyKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	bond, ok := amount.ParseDecimal(req.CreationBond)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid creationBond", "")
		return
	}
	tradingEnd := time.Unix(req.TradingEndTime, 0)

	m, err := s.proto.CreateMarket(r.Context(), common.HexToAddress(req.Creator), req.NumOutcomes,
		req.Description, req.ExtraInfo, req.OutcomeTags, req.Categories, req.ApiSource, tradingEnd, bond,
		req.CreatorFeeBps, req.AffiliateFeeBps)
	if err != nil {
		respondError(w, http.StatusBadRequest, "create market failed", err.Error())
		return
	}

	s.respondAndCache(w, req.IdempotencyKey, marketInfo(m))
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.proto.ListMarkets()
	out := make([]MarketInfo, 0, len(markets))
	for _, m := range markets {
		m.Lock()
		out = append(out, marketInfo(m))
		m.Unlock()
	}
	respondJSON(w, out)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.marketFromVars(r)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	m.Lock()
	defer m.Unlock()
	respondJSON(w, marketInfo(m))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	m, err := s.marketFromVars(r)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	outcome, ok := parseUint(mux.Vars(r)["outcome"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid outcome", "")
		return
	}

	m.Lock()
	defer m.Unlock()
	book := m.Orderbook(outcome)
	if book == nil {
		respondError(w, http.StatusNotFound, "outcome not found", "")
		return
	}

	levels := make([]PriceLevel, 0, orderbook.MaxPrice)
	for price := uint64(orderbook.MaxPrice); price >= orderbook.MinPrice; price-- {
		shares := book.DepthDownToPrice(price)
		if price+1 <= orderbook.MaxPrice {
			shares = amount.Sub(shares, book.DepthDownToPrice(price+1))
		}
		if !shares.IsZero() {
			levels = append(levels, PriceLevel{Price: price, Shares: shares.String()})
		}
	}

	respondJSON(w, OrderbookSnapshot{
		MarketID:  m.ID,
		Outcome:   outcome,
		Levels:    levels,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseUint(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	if cached, ok := s.replay(req.IdempotencyKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	spend, ok := amount.ParseDecimal(req.Spend)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid spend", "")
		return
	}
	var affiliate *common.Address
	if req.Affiliate != "" {
		a := common.HexToAddress(req.Affiliate)
		affiliate = &a
	}

	filled, orderID, rested, err := s.proto.PlaceOrder(r.Context(), marketID, req.Outcome,
		common.HexToAddress(req.Creator), spend, req.Price, affiliate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "place order failed", err.Error())
		return
	}

	s.respondAndCache(w, req.IdempotencyKey, OrderResponse{
		FilledShares: filled.String(),
		OrderID:      orderID,
		Rested:       rested,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseUint(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	refund, err := s.proto.CancelOrder(r.Context(), marketID, req.Outcome, req.OrderID, common.HexToAddress(req.Caller))
	if err != nil {
		respondError(w, http.StatusBadRequest, "cancel order failed", err.Error())
		return
	}

	respondJSON(w, OrderResponse{Refund: refund.String()})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseUint(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	shares, ok := amount.ParseDecimal(req.Shares)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid shares", "")
		return
	}

	filled, payout, err := s.proto.DynamicMarketSell(r.Context(), marketID, req.Outcome, common.HexToAddress(req.Seller), shares, req.MinPrice)
	if err != nil {
		respondError(w, http.StatusBadRequest, "sell failed", err.Error())
		return
	}

	respondJSON(w, SellResponse{FilledShares: filled.String(), Payout: payout.String()})
}

func (s *Server) handleResolute(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseUint(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}
	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	stake, ok := amount.ParseDecimal(req.Stake)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid stake", "")
		return
	}

	refund, err := s.proto.ResoluteMarket(r.Context(), marketID, req.Outcome, common.HexToAddress(req.Staker), stake)
	if err != nil {
		respondError(w, http.StatusBadRequest, "resolute failed", err.Error())
		return
	}

	respondJSON(w, StakeResponse{Refund: refund.String()})
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseUint(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}
	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	stake, ok := amount.ParseDecimal(req.Stake)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid stake", "")
		return
	}

	refund, err := s.proto.DisputeMarket(r.Context(), marketID, req.Outcome, common.HexToAddress(req.Staker), stake)
	if err != nil {
		respondError(w, http.StatusBadRequest, "dispute failed", err.Error())
		return
	}

	respondJSON(w, StakeResponse{Refund: refund.String()})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseUint(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}
	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := s.proto.FinalizeMarket(r.Context(), marketID, common.HexToAddress(req.Caller), req.JudgeOverride); err != nil {
		respondError(w, http.StatusBadRequest, "finalize failed", err.Error())
		return
	}

	respondJSON(w, map[string]string{"status": "finalized"})
}

func (s *Server) handleWithdrawStake(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseUint(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}
	var req WithdrawStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	refund, err := s.proto.WithdrawResolutionStake(r.Context(), marketID, req.Round, req.Outcome, common.HexToAddress(req.Caller))
	if err != nil {
		respondError(w, http.StatusBadRequest, "withdraw stake failed", err.Error())
		return
	}

	respondJSON(w, StakeResponse{Refund: refund.String()})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseUint(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := s.proto.ClaimEarnings(r.Context(), marketID, common.HexToAddress(req.Claimant))
	if err != nil {
		respondError(w, http.StatusBadRequest, "claim failed", err.Error())
		return
	}

	respondJSON(w, ClaimInfo{
		Winnings:           result.Winnings.String(),
		ClaimableIfInvalid: result.ClaimableIfInvalid.String(),
		ClaimableIfValid:   result.ClaimableIfValid.String(),
		GovernanceEarnings: result.GovernanceEarnings.String(),
		InOpenOrders:       result.InOpenOrders.String(),
		ValidityBond:       result.ValidityBond.String(),
		ResolutionFee:      result.ResolutionFee.String(),
		CreatorFee:         result.CreatorFee.String(),
		Total:              result.Total.String(),
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	addr := common.HexToAddress(addressStr)
	respondJSON(w, AccountInfo{
		Address: addr.Hex(),
		Balance: s.proto.TokenBalance(r.Context(), addr).String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func (s *Server) marketFromVars(r *http.Request) (*market.Market, error) {
	id, ok := parseUint(mux.Vars(r)["id"])
	if !ok {
		return nil, errors.New("invalid market id")
	}
	return s.proto.Market(id)
}

func (s *Server) replay(key string) ([]byte, bool) {
	s.idempotencyMu.Lock()
	defer s.idempotencyMu.Unlock()
	cached, ok := s.idempotency[key]
	return cached, ok
}

func (s *Server) respondAndCache(w http.ResponseWriter, key string, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode failed", err.Error())
		return
	}
	s.idempotencyMu.Lock()
	s.idempotency[key] = body
	s.idempotencyMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func marketInfo(m *market.Market) MarketInfo {
	return MarketInfo{
		ID:               m.ID,
		Creator:          m.Creator.Hex(),
		NumOutcomes:      m.NumOutcomes,
		Description:      m.Description,
		ExtraInfo:        m.ExtraInfo,
		OutcomeTags:      m.OutcomeTags,
		Categories:       m.Categories,
		ApiSource:        m.ApiSource,
		TradingEndTime:   m.TradingEndTime.Unix(),
		CreationBond:     m.CreationBond.String(),
		CreatorFeeBps:    m.Fees.CreatorFeeBps,
		ResolutionFeeBps: m.Fees.ResolutionFeeBps,
		AffiliateFeeBps:  m.Fees.AffiliateFeeBps,
		Status:           m.Status.String(),
		Resoluted:        m.Resoluted,
		Disputed:         m.Disputed,
		Finalized:        m.Finalized,
		WinningOutcome:   m.WinningOutcome,
	}
}

func parseUint(s string) (uint64, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return 0, false
	}
	return n.Uint64(), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}

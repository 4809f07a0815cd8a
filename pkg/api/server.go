package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/coboltblu/exchange/pkg/app/core/exchange"
	"github.com/coboltblu/exchange/pkg/app/core/token"
	"github.com/coboltblu/exchange/pkg/app/core/transaction"
	"github.com/coboltblu/exchange/pkg/app/dex"
	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/types"
)

const (
	maxTxBytes     = 64 << 10
	defaultPage    = 100
	maxPage        = 1000
	shutdownGrace  = 5 * time.Second
	defaultOrigins = "http://localhost:3000"
)

// Config configures the HTTP surface.
type Config struct {
	Addr        string
	CORSOrigins []string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// OnFatal is called when a submitted transaction hits a storage failure.
	OnFatal func(error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	app    *dex.App
	cfg    Config
	router *mux.Router
	hub    *Hub
	logger *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(app *dex.App, cfg Config, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{defaultOrigins}
	}
	s := &Server{
		app:    app,
		cfg:    cfg,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Token ledgers
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/tokens/{token}", s.handleGetToken).Methods("GET")
	api.HandleFunc("/tokens/{token}/balances/{address}", s.handleGetTokenBalance).Methods("GET")
	api.HandleFunc("/tokens/{token}/allowances/{owner}/{spender}", s.handleGetAllowance).Methods("GET")

	// Exchange custody
	api.HandleFunc("/exchange", s.handleGetExchange).Methods("GET")
	api.HandleFunc("/exchange/balances/{address}", s.handleGetCustody).Methods("GET")
	api.HandleFunc("/exchange/balances/{address}/{token}", s.handleGetCustodyToken).Methods("GET")

	// Orders and trades
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	// Log and accounts
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")
	api.HandleFunc("/nonces/{address}", s.handleGetNonce).Methods("GET")

	// Submission
	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	} else {
		s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Hub exposes the WebSocket hub, mainly for tests.
func (s *Server) Hub() *Hub { return s.hub }

// Start feeds the WebSocket hub from the event log and serves HTTP until ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	sub := s.app.Log().Subscribe(0)
	defer sub.Close()
	go s.hub.Run(ctx, sub)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", s.cfg.Addr, "cors", s.cfg.CORSOrigins)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		s.logger.Infow("api_server_stopping", "addr", s.cfg.Addr)
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, head := s.app.Log().Head()
	respondJSON(w, HealthResponse{Status: "ok", Events: n, Head: head})
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.app.Tokens()
	out := make([]TokenInfo, len(tokens))
	for i, l := range tokens {
		out[i] = tokenInfo(l)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	l, ok := s.token(w, mux.Vars(r)["token"])
	if !ok {
		return
	}
	respondJSON(w, tokenInfo(l))
}

func (s *Server) handleGetTokenBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	l, ok := s.token(w, vars["token"])
	if !ok {
		return
	}
	owner, ok := address(w, vars["address"])
	if !ok {
		return
	}
	bal := l.BalanceOf(owner)
	respondJSON(w, BalanceInfo{
		Token:          l.Address(),
		Symbol:         l.Symbol(),
		Owner:          owner,
		Balance:        bal.Dec(),
		BalanceDisplay: types.FormatDisplay(bal, l.Decimals()),
	})
}

func (s *Server) handleGetAllowance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	l, ok := s.token(w, vars["token"])
	if !ok {
		return
	}
	owner, ok := address(w, vars["owner"])
	if !ok {
		return
	}
	spender, ok := address(w, vars["spender"])
	if !ok {
		return
	}
	amt := l.Allowance(owner, spender)
	respondJSON(w, AllowanceInfo{
		Token:            l.Address(),
		Owner:            owner,
		Spender:          spender,
		Allowance:        amt.Dec(),
		AllowanceDisplay: types.FormatDisplay(amt, l.Decimals()),
	})
}

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	ex := s.app.Exchange()
	info := ExchangeInfo{
		Address:        ex.Address(),
		ChainID:        s.app.Config().ChainID,
		FeeAccount:     ex.FeeAccount(),
		FeePercent:     ex.FeePercent(),
		AllowSelfTrade: ex.AllowSelfTrade(),
		OpenOrders:     ex.OpenCount(),
	}
	for _, l := range s.app.Tokens() {
		info.Tokens = append(info.Tokens, tokenInfo(l))
	}
	respondJSON(w, info)
}

func (s *Server) handleGetCustody(w http.ResponseWriter, r *http.Request) {
	user, ok := address(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	held := s.app.Exchange().Balances(user)
	tokens := s.app.Tokens()
	out := make([]BalanceInfo, 0, len(tokens))
	for _, l := range tokens {
		out = append(out, balanceInfo(l, user, held[l.Address()]))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetCustodyToken(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user, ok := address(w, vars["address"])
	if !ok {
		return
	}
	l, ok := s.token(w, vars["token"])
	if !ok {
		return
	}
	respondJSON(w, balanceInfo(l, user, s.app.Exchange().BalanceOf(l.Address(), user)))
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f exchange.OrderFilter
	if v := q.Get("status"); v != "" {
		st, err := exchange.ParseOrderStatus(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "BadRequest", err.Error())
			return
		}
		f.Status = &st
	}
	if v := q.Get("user"); v != "" {
		id, ok := address(w, v)
		if !ok {
			return
		}
		f.User = id
	}
	if q.Get("base") != "" || q.Get("quote") != "" {
		base, ok := s.token(w, q.Get("base"))
		if !ok {
			return
		}
		quote, ok := s.token(w, q.Get("quote"))
		if !ok {
			return
		}
		f.TokenA, f.TokenB = base.Address(), quote.Address()
	}

	orders := s.app.Exchange().Orders(f)
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = s.orderInfo(o)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "BadRequest", "invalid order id")
		return
	}
	o, err := s.app.Exchange().Order(id)
	if err != nil {
		respondKind(w, err)
		return
	}
	respondJSON(w, s.orderInfo(o))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	base, ok := s.token(w, q.Get("base"))
	if !ok {
		return
	}
	quote, ok := s.token(w, q.Get("quote"))
	if !ok {
		return
	}
	book, err := s.app.Exchange().Book(base.Address(), quote.Address())
	if err != nil {
		respondKind(w, err)
		return
	}
	respondJSON(w, BookSnapshot{
		Base:        base.Address(),
		BaseSymbol:  base.Symbol(),
		Quote:       quote.Address(),
		QuoteSymbol: quote.Symbol(),
		Bids:        bookLevels(book.Bids, base, quote),
		Asks:        bookLevels(book.Asks, base, quote),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f exchange.TradeFilter
	if v := q.Get("user"); v != "" {
		id, ok := address(w, v)
		if !ok {
			return
		}
		f.User = id
	}
	limit, ok := intParam(w, q.Get("limit"), defaultPage)
	if !ok {
		return
	}
	f.Limit = limit

	trades := s.app.Exchange().Trades(f)
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = s.tradeInfo(t)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := uint64(1)
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "BadRequest", "invalid from")
			return
		}
		from = n
	}
	limit, ok := intParam(w, q.Get("limit"), defaultPage)
	if !ok {
		return
	}
	evs := s.app.Log().Events(from, limit)
	if evs == nil {
		evs = []events.Event{}
	}
	respondJSON(w, EventsPage{From: from, Head: s.app.Log().Len(), Events: evs})
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := address(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	n := s.app.Nonce(addr)
	respondJSON(w, NonceInfo{Address: addr, Nonce: n, Next: n + 1})
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var tx transaction.SignedTransaction
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTxBytes))
	if err := dec.Decode(&tx); err != nil {
		respondKind(w, fmt.Errorf("%w: %v", types.ErrMalformedTransaction, err))
		return
	}

	receipt, err := s.app.Apply(&tx)
	if err != nil {
		if types.IsFatal(err) && s.cfg.OnFatal != nil {
			s.cfg.OnFatal(err)
		}
		respondKind(w, err)
		return
	}
	s.logger.Debugw("tx_submitted", "type", receipt.Type, "signer", receipt.Signer.Hex(), "events", len(receipt.Events))
	respondJSON(w, receipt)
}

// ==============================
// Helper Functions
// ==============================

// token resolves a symbol or address, writing a 404 when unknown.
func (s *Server) token(w http.ResponseWriter, ref string) (*token.Ledger, bool) {
	if ref == "" {
		respondError(w, http.StatusBadRequest, "BadRequest", "token required")
		return nil, false
	}
	l, err := s.app.ResolveToken(ref)
	if err != nil {
		respondKind(w, err)
		return nil, false
	}
	return l, true
}

// symbol and decimals of a registered token; unknown tokens fall back to the
// address and 18 decimals.
func (s *Server) describe(addr common.Address) (string, uint8) {
	if l, err := s.app.Token(addr); err == nil {
		return l.Symbol(), l.Decimals()
	}
	return addr.Hex(), types.DefaultDecimals
}

func (s *Server) orderInfo(o *exchange.Order) OrderInfo {
	symGet, decGet := s.describe(o.TokenGet)
	symGive, decGive := s.describe(o.TokenGive)
	info := OrderInfo{
		ID:                o.ID,
		User:              o.User,
		TokenGet:          o.TokenGet,
		SymbolGet:         symGet,
		AmountGet:         o.AmountGet.Dec(),
		AmountGetDisplay:  types.FormatDisplay(o.AmountGet, decGet),
		TokenGive:         o.TokenGive,
		SymbolGive:        symGive,
		AmountGive:        o.AmountGive.Dec(),
		AmountGiveDisplay: types.FormatDisplay(o.AmountGive, decGive),
		Timestamp:         o.Timestamp,
		Status:            o.Status.String(),
		ClosedAt:          o.ClosedAt,
	}
	if o.Status == exchange.OrderFilled {
		filler := o.Filler
		info.Filler = &filler
		info.FeeAmount = types.Clone(o.FeeAmount).Dec()
	}
	return info
}

func (s *Server) tradeInfo(t exchange.Trade) TradeInfo {
	symGet, decGet := s.describe(t.TokenGet)
	symGive, decGive := s.describe(t.TokenGive)
	return TradeInfo{
		ID:                t.OrderID,
		Maker:             t.Maker,
		Filler:            t.Filler,
		TokenGet:          t.TokenGet,
		SymbolGet:         symGet,
		AmountGet:         t.AmountGet.Dec(),
		AmountGetDisplay:  types.FormatDisplay(t.AmountGet, decGet),
		TokenGive:         t.TokenGive,
		SymbolGive:        symGive,
		AmountGive:        t.AmountGive.Dec(),
		AmountGiveDisplay: types.FormatDisplay(t.AmountGive, decGive),
		FeeAmount:         types.Clone(t.FeeAmount).Dec(),
		FeeAmountDisplay:  types.FormatDisplay(t.FeeAmount, decGive),
		Price:             types.Price(t.AmountGet, t.AmountGive, 8).String(),
		Timestamp:         t.Timestamp,
	}
}

func tokenInfo(l *token.Ledger) TokenInfo {
	supply := l.TotalSupply()
	return TokenInfo{
		Address:            l.Address(),
		Name:               l.Name(),
		Symbol:             l.Symbol(),
		Decimals:           l.Decimals(),
		TotalSupply:        supply.Dec(),
		TotalSupplyDisplay: types.FormatDisplay(supply, l.Decimals()),
	}
}

func balanceInfo(l *token.Ledger, owner common.Address, bal *types.Amount) BalanceInfo {
	bal = types.Clone(bal)
	return BalanceInfo{
		Token:          l.Address(),
		Symbol:         l.Symbol(),
		Owner:          owner,
		Balance:        bal.Dec(),
		BalanceDisplay: types.FormatDisplay(bal, l.Decimals()),
	}
}

func bookLevels(entries []exchange.BookEntry, base, quote *token.Ledger) []BookLevel {
	out := make([]BookLevel, len(entries))
	for i, e := range entries {
		out[i] = BookLevel{
			ID:           e.Order.ID,
			User:         e.Order.User,
			Price:        e.Price.String(),
			Base:         e.Base.Dec(),
			BaseDisplay:  types.FormatDisplay(e.Base, base.Decimals()),
			Quote:        e.Quote.Dec(),
			QuoteDisplay: types.FormatDisplay(e.Quote, quote.Decimals()),
			Timestamp:    e.Order.Timestamp,
		}
	}
	return out
}

func address(w http.ResponseWriter, s string) (common.Address, bool) {
	id, err := types.ParseIdentity(s)
	if err != nil {
		respondError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return common.Address{}, false
	}
	return id, true
}

func intParam(w http.ResponseWriter, v string, def int) (int, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		respondError(w, http.StatusBadRequest, "BadRequest", fmt.Sprintf("invalid limit %q", v))
		return 0, false
	}
	if n > maxPage {
		n = maxPage
	}
	return n, true
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "MalformedTransaction", "InvalidAmount", "InvalidRecipient", "InvalidSpender", "InvalidOrder":
		return http.StatusBadRequest
	case "InvalidSignature", "NotOrderOwner":
		return http.StatusForbidden
	case "OrderNotFound", "UnknownToken":
		return http.StatusNotFound
	case "NonceTooLow", "OrderNotOpen":
		return http.StatusConflict
	case "InsufficientBalance", "InsufficientAllowance", "InsufficientCustodyBalance", "SelfTrade":
		return http.StatusUnprocessableEntity
	case "Closed":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondKind(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	respondError(w, status, kind, msg)
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

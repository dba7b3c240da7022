package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secure_chat/internal/config"
	"secure_chat/internal/cryptographic/signature"
	"secure_chat/internal/model"
	"secure_chat/internal/protocol/chain"
	"secure_chat/internal/protocol/dispatch"
	profileRepo "secure_chat/internal/repository/profile"
	"secure_chat/internal/utils/log"
)

// ProfileStore is the subset of the profile repository the relay needs.
type ProfileStore interface {
	GetByName(ctx context.Context, name string) (*model.Profile, error)
	GetByProfileID(ctx context.Context, profileID string) (*model.Profile, error)
	Create(ctx context.Context, p *model.Profile) (primitive.ObjectID, error)
}

type (
	HttpServer struct {
		cfg      *config.Config
		profiles ProfileStore
		history  History
		filter   ContentFilter
		registry *prometheus.Registry
		metrics  *Metrics

		mu     sync.RWMutex
		mapper map[uuid.UUID]*Session

		httpServer *http.Server
	}
)

func NewHttpServer(cfg *config.Config, profiles ProfileStore, history History, filter ContentFilter) *HttpServer {
	reg := prometheus.NewRegistry()
	return &HttpServer{
		cfg:      cfg,
		profiles: profiles,
		history:  history,
		filter:   filter,
		registry: reg,
		metrics:  NewMetrics(reg),
		mapper:   make(map[uuid.UUID]*Session),
	}
}

func (s *HttpServer) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/init", s.HandleInitWS()).Methods(http.MethodGet)
	r.HandleFunc("/profiles", s.RegisterProfile()).Methods(http.MethodPost)
	r.HandleFunc("/keys/{id}", s.GetPublicKey()).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// Run serves until Shutdown is called.
func (s *HttpServer) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("relay listening", zap.String("addr", s.cfg.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	for _, r := range s.sessions() {
		r.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Recipients snapshots the connected sessions.
func (s *HttpServer) Recipients() []dispatch.Recipient {
	sessions := s.sessions()
	out := make([]dispatch.Recipient, 0, len(sessions))
	for _, c := range sessions {
		out = append(out, c)
	}
	return out
}

func (s *HttpServer) sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.mapper))
	for _, c := range s.mapper {
		out = append(out, c)
	}
	return out
}

func (s *HttpServer) register(c *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mapper[c.profileID]; ok {
		return false
	}
	s.mapper[c.profileID] = c
	s.metrics.ActiveSessions.Inc()
	return true
}

func (s *HttpServer) unregister(c *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.mapper[c.profileID]; ok && cur == c {
		delete(s.mapper, c.profileID)
		s.metrics.ActiveSessions.Dec()
	}
}

func (s *HttpServer) broadcast(ctx context.Context, msg model.ChatMessage) {
	if _, err := dispatch.Broadcast(ctx, msg, s); err != nil {
		log.Debug("broadcast incomplete", zap.Error(err))
	}
	if msg.Signer().IsSystem() {
		return
	}
	if err := s.history.PutMessagesToCache(ctx, msg); err != nil {
		log.Error("PutMessagesToCache failed", zap.Error(err))
	}
}

func (s *HttpServer) broadcastSystem(ctx context.Context, text string) {
	signer := model.SystemSigner(time.Now())
	body := model.NewMessageBody(model.PlainContent(text), signer, model.LastSeenMessages{})
	msg, err := chain.UnsignedEncoder.Pack(nil, signer, body)
	if err != nil {
		log.Error("pack system message failed", zap.Error(err))
		return
	}
	s.broadcast(ctx, msg)
}

func (s *HttpServer) HandleInitWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "name cannot be empty", http.StatusBadRequest)
			return
		}
		filterEnabled, _ := strconv.ParseBool(r.URL.Query().Get("filter"))

		profile, err := s.profiles.GetByName(ctx, name)
		if err != nil {
			log.Error("load profile failed", zap.Error(err))
			http.Error(w, "load profile failed", http.StatusInternalServerError)
			return
		}
		if profile == nil {
			http.Error(w, "profile does not exist", http.StatusBadRequest)
			return
		}

		validator, err := s.validatorFor(profile)
		if err != nil {
			log.Error("bad stored public key", zap.String("name", name), zap.Error(err))
			http.Error(w, "bad stored public key", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		c, err := newSession(s, conn, profile, validator, filterEnabled)
		if err != nil {
			log.Error("bad stored profile id", zap.String("name", name), zap.Error(err))
			conn.Close()
			return
		}
		if !s.register(c) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "duplicated profile"))
			conn.Close()
			return
		}

		sessionCtx := context.Background()
		go c.readLoop()
		go c.run(sessionCtx)

		if err := s.ForwardRecentMessages(sessionCtx, c); err != nil {
			log.Error("forward msg failed", zap.Error(err))
		}
		s.broadcastSystem(sessionCtx, name+" joined the chat")
	}
}

func (s *HttpServer) validatorFor(p *model.Profile) (chain.Validator, error) {
	if len(p.PublicKey) == 0 {
		return chain.NewValidator(nil, s.cfg.EnforceSecureChat), nil
	}
	verifier, err := signature.NewEd25519Verifier(p.PublicKey)
	if err != nil {
		return nil, err
	}
	return chain.NewValidator(verifier, s.cfg.EnforceSecureChat), nil
}

// ForwardRecentMessages replays cached history to a new session through the normal dispatch rules.
func (s *HttpServer) ForwardRecentMessages(ctx context.Context, c *Session) error {
	messages, err := s.history.GetMessagesFromCache(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	only := single{c}
	for _, m := range messages {
		if m.HasExpiredClient(now, s.cfg.Expiry()) {
			continue
		}
		out := dispatch.New(m)
		if err := out.SendTo(ctx, c); err != nil {
			return err
		}
		out.SendHeadersToRemaining(ctx, only)
	}
	return nil
}

type single []dispatch.Recipient

func (l single) Recipients() []dispatch.Recipient {
	return l
}

func (s *HttpServer) RegisterProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			http.Error(w, "invalid register request", http.StatusBadRequest)
			return
		}
		if len(req.PublicKey) > 0 {
			if _, err := signature.NewEd25519Verifier(req.PublicKey); err != nil {
				http.Error(w, "invalid public key", http.StatusBadRequest)
				return
			}
		}

		p := &model.Profile{
			ProfileID: uuid.NewString(),
			Name:      req.Name,
			PublicKey: req.PublicKey,
		}
		_, err := s.profiles.Create(r.Context(), p)
		if errors.Is(err, profileRepo.ErrDuplicateName) {
			http.Error(w, "profile name already registered", http.StatusConflict)
			return
		}
		if err != nil {
			log.Error("create profile failed", zap.Error(err))
			http.Error(w, "create profile failed", http.StatusInternalServerError)
			return
		}

		log.Info("profile registered", zap.String("name", p.Name), zap.String("profile_id", p.ProfileID))
		writeJSON(w, http.StatusCreated, model.PublicKey{ProfileID: p.ProfileID, Name: p.Name, PublicKey: p.PublicKey})
	}
}

func (s *HttpServer) GetPublicKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, err := uuid.Parse(id); err != nil {
			http.Error(w, "invalid profile id", http.StatusBadRequest)
			return
		}

		p, err := s.profiles.GetByProfileID(r.Context(), id)
		if err != nil {
			log.Error("Get public key failed", zap.Error(err))
			http.Error(w, "Get public key failed", http.StatusInternalServerError)
			return
		}
		if p == nil {
			http.Error(w, "profile does not exist", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, model.PublicKey{ProfileID: p.ProfileID, Name: p.Name, PublicKey: p.PublicKey})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("encode response failed", zap.Error(err))
		http.Error(w, "encode response failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

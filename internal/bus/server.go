package bus

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/ebusctl/internal/observability"
	"github.com/danmuck/ebusctl/internal/protocol"
	"github.com/danmuck/ebusctl/internal/protocol/message"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server exposes health, metrics and the loaded catalog over HTTP.
type Server struct {
	Addr     string
	handler  *Handler
	router   *mux.Router
	srv      *http.Server
	appeared time.Time
}

func NewServer(addr string, handler *Handler) *Server {
	s := &Server{
		Addr:     addr,
		handler:  handler,
		router:   mux.NewRouter(),
		appeared: time.Now(),
	}
	s.router.Use(observability.RequestLogger(log.Logger), observability.RequestMetricsMiddleware())
	s.registerRoutes()
	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"uptime":   time.Since(s.appeared).String(),
			"address":  fmt.Sprintf("%02x", s.handler.Address()),
			"messages": s.handler.Registry().Len(),
			"stats":    s.handler.Stats(),
		})
	}).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		msgs := s.handler.Registry().Messages()
		views := make([]MessageView, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, NewMessageView(m))
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": views})
	}).Methods(http.MethodGet)

	s.router.HandleFunc("/messages/{class}/{name}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		isSet, _ := strconv.ParseBool(r.URL.Query().Get("set"))
		class := vars["class"]
		if class == "-" {
			class = ""
		}
		m, err := s.handler.Registry().Find(class, vars["name"], isSet)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, NewMessageView(m))
	}).Methods(http.MethodGet)

	s.router.HandleFunc("/poll", func(w http.ResponseWriter, r *http.Request) {
		frames, err := s.handler.PollFrames()
		out := make([]map[string]string, 0, len(frames))
		for _, f := range frames {
			out = append(out, map[string]string{
				"message": f.Message.Identity(),
				"master":  f.Master.Hex(),
				"wire":    hex.EncodeToString(f.Wire),
			})
		}
		body := map[string]any{"frames": out}
		if err != nil {
			body["error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, body)
	}).Methods(http.MethodGet)
}

// Serve blocks until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("status server listening")
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// MessageView is the JSON form of a message definition.
type MessageView struct {
	Class        string      `json:"class"`
	Name         string      `json:"name"`
	Set          bool        `json:"set"`
	Passive      bool        `json:"passive"`
	Comment      string      `json:"comment,omitempty"`
	Src          string      `json:"src,omitempty"`
	Dst          string      `json:"dst,omitempty"`
	ID           string      `json:"id"`
	PollPriority uint8       `json:"poll_priority,omitempty"`
	Fields       []FieldView `json:"fields"`
}

type FieldView struct {
	Name   string `json:"name"`
	Part   string `json:"part"`
	Type   string `json:"type"`
	Length int    `json:"length"`
	Unit   string `json:"unit,omitempty"`
}

func NewMessageView(m *message.Message) MessageView {
	v := MessageView{
		Class:        m.Class(),
		Name:         m.Name(),
		Set:          m.IsSet(),
		Passive:      m.IsPassive(),
		Comment:      m.Comment(),
		ID:           hex.EncodeToString(m.ID()),
		PollPriority: m.PollPriority(),
		Fields:       []FieldView{},
	}
	if m.SrcAddress() != symbol.SYN {
		v.Src = fmt.Sprintf("%02x", m.SrcAddress())
	}
	if m.HasKey() {
		v.Dst = fmt.Sprintf("%02x", m.DstAddress())
	}
	for _, f := range m.Fields().Fields() {
		v.Fields = append(v.Fields, FieldView{
			Name:   f.Name,
			Part:   f.Part.String(),
			Type:   f.TypeName(),
			Length: f.Length(),
			Unit:   f.Unit,
		})
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("write json response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, protocol.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

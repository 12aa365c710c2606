package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	indexPage       = "This is a NAC relay provider."
	shutdownTimeout = time.Second * 5
)

// relayStatus is what GET /status returns.
type relayStatus struct {
	State     string `json:"state"`
	Code      string `json:"code,omitempty"`
	LastError string `json:"last_error,omitempty"`
	RetryIn   string `json:"retry_in,omitempty"`
}

// statusServer implements an HTTP API that exposes the state of our relay
// connection and lets operators force a reconnect.
type statusServer struct {
	sync.Mutex
	rm         *resourceManager
	relay      *relayResource
	router     *chi.Mux
	srv        *http.Server
	anon       *Anonymizer
	addr       string
	keyExpiry  time.Duration
	anonMethod int
}

func newStatusServer(rm *resourceManager, relay *relayResource) *statusServer {
	s := &statusServer{
		rm:         rm,
		relay:      relay,
		keyExpiry:  defaultKeyExpiry,
		anonMethod: methodCryptoPAn,
	}
	s.router = s.newRouter()
	return s
}

func (s *statusServer) newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.logRequest)
	r.Get("/", indexHandler)
	r.Get("/status", s.statusHandler)
	r.Post("/reconnect", s.reconnectHandler)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *statusServer) setConfig(c *config) {
	s.Lock()
	defer s.Unlock()

	s.addr = c.statusAddr
	if c.keyExpiry != 0 {
		s.keyExpiry = c.keyExpiry
	}
	if c.anonMethod != 0 {
		s.anonMethod = c.anonMethod
	}
}

func (s *statusServer) start() {
	s.Lock()
	defer s.Unlock()

	s.anon = NewAnonymizer(s.anonMethod, s.keyExpiry)
	l.Printf("Anonymizing client addresses with key %s.", s.anon.GetKeyID())
	if s.addr == "" {
		l.Println("Not starting status server because no address is configured.")
		return
	}
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: time.Second * 10,
	}
	go func(srv *http.Server) {
		l.Printf("Starting status server at %s.", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Printf("Status server terminated: %v", err)
		}
	}(s.srv)
}

func (s *statusServer) stop() {
	s.Lock()
	defer s.Unlock()

	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(ctx); err != nil {
			l.Printf("Failed to shut down status server: %v", err)
		}
		s.srv = nil
	}
	if s.anon != nil {
		s.anon.Stop()
		s.anon = nil
	}
}

func (s *statusServer) anonymizer() *Anonymizer {
	s.Lock()
	defer s.Unlock()
	return s.anon
}

// logRequest logs the method and path of every request together with the
// client's anonymized address.
func (s *statusServer) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := "unknown client"
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if addr := net.ParseIP(host); addr != nil {
			if a := s.anonymizer(); a != nil {
				anonAddr, keyID := a.Anonymize(addr)
				client = fmt.Sprintf("%x (key %s)", anonAddr, keyID)
			}
		}
		l.Printf("%s %s from %s.", r.Method, r.URL.Path, client)
		next.ServeHTTP(w, r)
	})
}

func report(code int) {
	m.statusResponses.With(prometheus.Labels{httpCode: fmt.Sprintf("%d", code)}).Inc()
}

func indexHandler(w http.ResponseWriter, r *http.Request) {
	report(http.StatusOK)
	fmt.Fprintln(w, indexPage)
}

func (s *statusServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	state, failure := s.rm.currentState()
	status := relayStatus{State: state.String()}
	if reg := s.relay.relayConfig().State; reg != nil {
		status.Code = reg.Code
	}
	if failure != nil {
		status.LastError = failure.err.Error()
		if failure.retryIn != 0 {
			status.RetryIn = failure.retryIn.String()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&status); err != nil {
		l.Printf("Failed to encode status: %v", err)
	}
	report(http.StatusOK)
}

// reconnectHandler re-establishes the relay connection.  With "wait=false",
// we don't wait for the outcome.
func (s *statusServer) reconnectHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "false" {
		s.rm.requestUpdate()
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "Reconnecting.")
		report(http.StatusAccepted)
		return
	}
	if err := s.rm.refreshNow(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		report(http.StatusServiceUnavailable)
		return
	}
	fmt.Fprintln(w, "Reconnected.")
	report(http.StatusOK)
}

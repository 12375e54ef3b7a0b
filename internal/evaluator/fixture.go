package evaluator

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/marveldaemon/mhd/internal/wire"
)

// Decider lets a fixture server compute a decision for a given command
// instead of always returning a fixed verdict.
type Decider func(command, description string) evalResponse

// Fixture is a loopback HTTP evaluator used by tests and local
// development in place of the real external judge. Its middleware stack
// mirrors the teacher's internal/server setup (RequestID, Logger,
// Recoverer, CORS) scaled down to one route.
type Fixture struct {
	httpSrv *http.Server
	ln      net.Listener
	decide  Decider
}

// NewFixture starts a Fixture listening on an OS-assigned loopback port
// and returns it along with its URL.
func NewFixture(decide Decider) (*Fixture, string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://127.0.0.1"},
		AllowedMethods: []string{"POST"},
	}))

	f := &Fixture{ln: ln, decide: decide}
	r.Post("/evaluate", f.handle)

	f.httpSrv = &http.Server{Handler: r, ReadTimeout: 5 * time.Second}
	go f.httpSrv.Serve(ln)

	return f, "http://" + ln.Addr().String() + "/evaluate", nil
}

func (f *Fixture) handle(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := evalResponse{Decision: wire.DecisionAsk, Reason: "no decider configured", RequiresHuman: true}
	if f.decide != nil {
		resp = f.decide(req.Command, req.Description)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Close shuts the fixture server down.
func (f *Fixture) Close() error {
	return f.httpSrv.Close()
}

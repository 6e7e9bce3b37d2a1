package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
	"github.com/omni/gmp-mock-api/logging"
	mw "github.com/omni/gmp-mock-api/presenter/http/middleware"
	"github.com/omni/gmp-mock-api/presenter/http/render"
	"github.com/omni/gmp-mock-api/relay"
	"github.com/omni/gmp-mock-api/repository"
)

const (
	MaxBodySize           = 256 << 10
	maxConcurrentRequests = 50
	shutdownTimeout       = 10 * time.Second
)

var ErrBadRequest = errors.New("bad request")

type Presenter struct {
	logger     logging.Logger
	repo       *repository.Repo
	ingestor   *relay.EventIngestor
	dispatcher *relay.Dispatcher
	root       chi.Router
}

func NewPresenter(logger logging.Logger, repo *repository.Repo, ingestor *relay.EventIngestor, dispatcher *relay.Dispatcher) *Presenter {
	p := &Presenter{
		logger:     logger,
		repo:       repo,
		ingestor:   ingestor,
		dispatcher: dispatcher,
		root:       chi.NewMux(),
	}
	p.routes()
	return p
}

func (p *Presenter) routes() {
	p.root.Use(middleware.Throttle(maxConcurrentRequests))
	p.root.Use(middleware.RequestID)
	p.root.Use(mw.NewLoggerMiddleware(p.logger))
	p.root.Use(mw.Recoverer)
	p.root.Use(mw.NewBodyLimitMiddleware(MaxBodySize))

	p.root.Get("/health", p.wrapJSONHandler(p.Health))
	p.root.Route("/chains/{chain}", func(r chi.Router) {
		r.Use(mw.GetChainMiddleware)
		r.Post("/events", p.wrapJSONHandler(p.PostEvents))
		r.Post("/task", p.wrapJSONHandler(p.PostTask))
		r.Get("/tasks", p.wrapJSONHandler(p.GetTasks))
	})
	p.root.Route("/contracts/{contractAddress}", func(r chi.Router) {
		r.Use(mw.GetContractAddressMiddleware)
		r.Post("/broadcasts", p.wrapJSONHandler(p.PostBroadcast))
		r.Get("/broadcasts/{broadcastID}", p.wrapJSONHandler(p.GetBroadcast))
		r.Post("/queries", p.wrapJSONHandler(p.PostQuery))
	})
}

func (p *Presenter) Handler() http.Handler {
	return p.root
}

// Serve listens on addr until ctx is done, in-flight requests are given a grace period to finish.
func (p *Presenter) Serve(ctx context.Context, addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			p.logger.WithError(err).Error("can't shutdown presenter service")
		}
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	p.logger.Info("presenter service stopped")
	return nil
}

type jsonHandler func(r *http.Request) (int, interface{}, error)

func (p *Presenter) wrapJSONHandler(handler jsonHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, res, err := handler(r)
		if err != nil {
			render.Error(w, r, errorStatus(err), err)
			return
		}
		render.JSON(w, r, status, res)
	}
}

func errorStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, gmp.ErrInvalidTask),
		errors.Is(err, gmp.ErrInvalidEvent),
		errors.Is(err, relay.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("can't read request body: %w", err)
	}
	return body, nil
}

func (p *Presenter) Health(*http.Request) (int, interface{}, error) {
	return http.StatusOK, map[string]string{"status": "ok"}, nil
}

func (p *Presenter) PostEvents(r *http.Request) (int, interface{}, error) {
	body, err := readBody(r)
	if err != nil {
		return 0, nil, err
	}
	var req gmp.PostEventsRequest
	if err = json.Unmarshal(body, &req); err != nil {
		return 0, nil, fmt.Errorf("can't decode events request: %s: %w", err.Error(), ErrBadRequest)
	}
	results := p.ingestor.Ingest(r.Context(), mw.Chain(r.Context()), req.Events)
	return http.StatusOK, gmp.PostEventResponse{Results: results}, nil
}

func (p *Presenter) PostTask(r *http.Request) (int, interface{}, error) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		return 0, nil, err
	}
	task, err := gmp.ParseTask(body)
	if err != nil {
		return 0, nil, err
	}
	header := task.Header()
	if gmp.IsUnknownTask(task) {
		return 0, nil, fmt.Errorf("unknown task type %q: %w", header.Type, gmp.ErrInvalidTask)
	}
	if chain := mw.Chain(ctx); header.Chain != chain {
		return 0, nil, fmt.Errorf("task chain %q does not match %q: %w", header.Chain, chain, ErrBadRequest)
	}

	row, err := entity.NewTask(task)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", err.Error(), ErrBadRequest)
	}
	if err = p.repo.Tasks.Upsert(ctx, row); err != nil {
		return 0, nil, err
	}
	logging.LoggerFromContext(ctx).WithField("task_id", row.ID).WithField("task_type", row.Type).Info("stored task")
	return http.StatusOK, gmp.PostTaskResponse{ID: row.ID}, nil
}

func (p *Presenter) GetTasks(r *http.Request) (int, interface{}, error) {
	ctx := r.Context()
	tasks, err := p.repo.Tasks.FindAfter(ctx, mw.Chain(ctx), r.URL.Query().Get("after"))
	if err != nil {
		return 0, nil, err
	}
	res := gmp.TasksResponse{Tasks: make([]json.RawMessage, 0, len(tasks))}
	for _, task := range tasks {
		res.Tasks = append(res.Tasks, json.RawMessage(task.Task))
	}
	return http.StatusOK, res, nil
}

func (p *Presenter) PostBroadcast(r *http.Request) (int, interface{}, error) {
	body, err := readBody(r)
	if err != nil {
		return 0, nil, err
	}
	broadcast, err := p.dispatcher.Dispatch(r.Context(), mw.ContractAddress(r.Context()), body)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusAccepted, gmp.BroadcastResponse{
		BroadcastID: broadcast.ID,
		Status:      broadcast.Status,
	}, nil
}

func (p *Presenter) GetBroadcast(r *http.Request) (int, interface{}, error) {
	ctx := r.Context()
	id := chi.URLParam(r, "broadcastID")
	broadcast, err := p.repo.Broadcasts.GetByID(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	if broadcast.ContractAddress != mw.ContractAddress(ctx) {
		return 0, nil, fmt.Errorf("broadcast %s: %w", id, db.ErrNotFound)
	}
	return http.StatusOK, newBroadcastStatusResponse(broadcast), nil
}

func newBroadcastStatusResponse(broadcast *entity.Broadcast) *gmp.BroadcastStatusResponse {
	res := &gmp.BroadcastStatusResponse{
		BroadcastID: broadcast.ID,
		Status:      broadcast.Status,
		ReceivedAt:  broadcast.CreatedAt,
	}
	if broadcast.TxHash != nil {
		res.TxHash = *broadcast.TxHash
	}
	if broadcast.Error != nil {
		res.Error = *broadcast.Error
	}
	if broadcast.Status.IsTerminal() {
		completedAt := broadcast.UpdatedAt
		res.CompletedAt = &completedAt
	}
	return res
}

func (p *Presenter) PostQuery(r *http.Request) (int, interface{}, error) {
	body, err := readBody(r)
	if err != nil {
		return 0, nil, err
	}
	res, err := p.dispatcher.Query(r.Context(), mw.ContractAddress(r.Context()), body)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, res, nil
}

package server

import (
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/tempo/pkg/model"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	q := r.URL.Query()

	opts := model.ListOptions{
		State:   q.Get("state"),
		TaskID:  q.Get("task"),
		CycleID: q.Get("cycle"),
		Queue:   q.Get("queue"),
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))
	opts.Clamp()

	instances, total, err := s.store.ListInstances(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if instances == nil {
		instances = []*model.Instance{}
	}
	respondList(w, reqID, instances, &pagination{
		Limit:  opts.Limit,
		Offset: opts.Offset,
		Total:  total,
	})
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	inst, err := s.store.GetInstance(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if inst == nil {
		respondError(w, reqID, http.StatusNotFound, "not_found", "instance "+id+" not found")
		return
	}
	respondOK(w, reqID, inst)
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	cycles, err := s.store.ListCycles(r.Context(), limit)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if cycles == nil {
		cycles = []*model.FiringCycle{}
	}
	respondOK(w, reqID, cycles)
}

func (s *Server) handleCycleInstances(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	cycle, err := s.store.GetCycle(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if cycle == nil {
		respondError(w, reqID, http.StatusNotFound, "not_found", "cycle "+id+" not found")
		return
	}

	instances, err := s.store.GetInstancesByCycle(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if instances == nil {
		instances = []*model.Instance{}
	}
	respondOK(w, reqID, instances)
}

type queueStatus struct {
	Name    string `json:"name"`
	Slots   int    `json:"slots"`
	Running int    `json:"running"`
	Free    int    `json:"free"`
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	running, err := s.store.CountRunningByQueue(r.Context())
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	statuses := make([]queueStatus, 0, len(s.queueSlots))
	for name, slots := range s.queueSlots {
		free := slots - running[name]
		if free < 0 {
			free = 0
		}
		statuses = append(statuses, queueStatus{
			Name:    name,
			Slots:   slots,
			Running: running[name],
			Free:    free,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })

	respondOK(w, reqID, statuses)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	tasks, err := s.catalog.Snapshot(r.Context())
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	respondOK(w, reqID, tasks)
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/plan"
)

const defaultHistoryLimit = 50

// channelView is the API shape of a channel
type channelView struct {
	ID        string               `json:"id"`
	Color     string               `json:"color,omitempty"`
	State     string               `json:"state"`
	Pinned    *float64             `json:"pinned"`
	Timetable []plan.TimeValuePair `json:"timetable"`
}

func viewOf(ch *plan.Channel) channelView {
	cfg := ch.Configuration()
	v := channelView{
		ID:        cfg.ID,
		Color:     cfg.Color,
		State:     ch.State().String(),
		Timetable: cfg.Timetable,
	}
	if pinned, ok := ch.Pinned(); ok {
		v.Pinned = &pinned
	}
	return v
}

// valueView is the API shape of one evaluation
type valueView struct {
	Channel string             `json:"channel"`
	Time    daycycle.TimeOfDay `json:"time"`
	Value   *float64           `json:"value"`
	Pinned  bool               `json:"pinned"`
}

func (s *Server) handleChannelsList(w http.ResponseWriter, r *http.Request) {
	channels := s.plan.Channels()
	views := make([]channelView, 0, len(channels))
	for _, ch := range channels {
		views = append(views, viewOf(ch))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleChannelGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ch, ok := s.plan.Lookup(id)
	if !ok {
		writeErr(w, fmt.Errorf("%w: %s", plan.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(ch))
}

func (s *Server) handleChannelDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.Remove(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChannelValue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	at, err := s.timeParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	value, ok, err := s.plan.Value(id, at)
	if err != nil {
		writeErr(w, err)
		return
	}
	pinned, _ := s.plan.IsPinned(id)

	view := valueView{Channel: id, Time: at, Pinned: pinned}
	if ok {
		view.Value = &value
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	at, err := s.timeParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	levels, err := s.plan.Values(at)
	if err != nil {
		writeErr(w, err)
		return
	}

	views := make([]valueView, 0, len(levels))
	for _, id := range s.plan.IDs() {
		level, ok := levels[id]
		if !ok {
			continue
		}
		view := valueView{Channel: id, Time: at, Pinned: level.Pinned}
		if level.OK {
			value := level.Value
			view.Value = &value
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePointPut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	at, err := daycycle.Parse(chi.URLParam(r, "time"))
	if err != nil {
		writeErr(w, err)
		return
	}

	var body struct {
		Perc *float64 `json:"perc"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Perc == nil {
		writeError(w, http.StatusBadRequest, `body must be {"perc": number}`)
		return
	}

	if err := s.editor.Define(id, at, *body.Perc); err != nil {
		writeErr(w, err)
		return
	}

	ch, ok := s.plan.Lookup(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(ch))
}

func (s *Server) handlePointDelete(w http.ResponseWriter, r *http.Request) {
	at, err := daycycle.Parse(chi.URLParam(r, "time"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.editor.Undefine(chi.URLParam(r, "id"), at); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePinPut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		writeError(w, http.StatusBadRequest, `body must be {"value": number}`)
		return
	}

	if err := s.editor.Pin(chi.URLParam(r, "id"), *body.Value); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePinDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.Unpin(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleColorPut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Color *string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Color == nil {
		writeError(w, http.StatusBadRequest, `body must be {"color": string}`)
		return
	}

	if err := s.editor.SetColor(chi.URLParam(r, "id"), *body.Color); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlanGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.plan.ToConfiguration())
}

func (s *Server) handlePlanPut(w http.ResponseWriter, r *http.Request) {
	var cfg plan.Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid plan: "+err.Error())
		return
	}

	report, err := s.editor.Replace(cfg)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	entries, err := s.history.Recent(limitParam(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleChannelHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	entries, err := s.history.ByChannel(chi.URLParam(r, "id"), limitParam(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// timeParam reads ?at=HH:MM[:SS], defaulting to the current time of day in the server's zone
func (s *Server) timeParam(r *http.Request) (daycycle.TimeOfDay, error) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return daycycle.Of(s.clock().In(s.location)), nil
	}
	return daycycle.Parse(raw)
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	return limit
}

package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/progrium/qnet-go/observability"
	"github.com/progrium/qnet-go/talk"
)

type channelInfo struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	State  string `json:"state"`
	Remote string `json:"remote"`
}

type participantInfo struct {
	Pid      string        `json:"pid"`
	Channels []channelInfo `json:"channels"`
}

// adminRouter serves /metrics and /participants.
func adminRouter(n *talk.Network, m *observability.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if m != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	}
	r.Get("/participants", func(w http.ResponseWriter, r *http.Request) {
		ps := []participantInfo{}
		for _, p := range n.Participants() {
			info := participantInfo{Pid: p.Pid().String()}
			for _, ch := range p.Channels() {
				info.Channels = append(info.Channels, channelInfo{
					ID:     ch.ID(),
					Kind:   ch.Kind().String(),
					State:  ch.State().String(),
					Remote: ch.RemoteAddr().String(),
				})
			}
			ps = append(ps, info)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ps)
	})
	return r
}

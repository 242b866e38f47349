package dashboard

import (
	"sort"
	"time"

	"github.com/tobert/microdash/internal/backend"
	"github.com/tobert/microdash/internal/chart"
	"github.com/tobert/microdash/internal/series"
	"github.com/tobert/microdash/internal/timeline"
)

// NodeView is one node row with its metadata already rendered.
type NodeView struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Version  string `json:"version"`
	Metadata string `json:"metadata"`
}

// EndpointView is one endpoint with its message shapes rendered for display
// and an example payload for the call editor.
type EndpointView struct {
	Name     string `json:"name"`
	Request  string `json:"request"`
	Response string `json:"response"`
	Example  string `json:"example"`
	Metadata string `json:"metadata"`
}

// LogView is one log line ready for display.
type LogView struct {
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
	Metadata string    `json:"metadata"`
}

// State is an immutable copy of everything the service page renders.
type State struct {
	Name       string              `json:"name"`
	Versions   []string            `json:"versions"`
	Nodes      []NodeView          `json:"nodes"`
	Endpoints  []EndpointView      `json:"endpoints"`
	Logs       []LogView           `json:"logs"`
	Series     series.Set          `json:"series"`
	Charts     []chart.Panel       `json:"charts"`
	Traces     []timeline.Timeline `json:"traces"`
	TraceCount int                 `json:"trace_count"`
	SpanCount  int                 `json:"span_count"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	PageCount  int                 `json:"page_count"`
	Tab        Tab                 `json:"tab"`
	Refresh    bool                `json:"refresh"`
	Updated    time.Time           `json:"updated"`
}

// Snapshot copies the current view state. The returned value shares no
// mutable data with the view.
func (v *ServiceView) Snapshot() State {
	v.mu.RLock()
	defer v.mu.RUnlock()

	all := v.traces.Timelines()
	st := State{
		Name:       v.name,
		Series:     v.series.Set(),
		Charts:     chart.Panels(v.opts.Distribution),
		Traces:     append([]timeline.Timeline(nil), timeline.Page(all, v.page, v.pageSize)...),
		TraceCount: len(all),
		SpanCount:  v.traces.SpanCount(),
		Page:       v.page,
		PageSize:   v.pageSize,
		PageCount:  timeline.PageCount(len(all), v.pageSize),
		Tab:        v.tab,
		Refresh:    v.refresh,
		Updated:    v.updated,
	}

	for _, svc := range v.services {
		st.Versions = append(st.Versions, svc.Version)
		for _, n := range svc.Nodes {
			st.Nodes = append(st.Nodes, NodeView{
				ID:       n.ID,
				Address:  n.Address,
				Version:  svc.Version,
				Metadata: n.Metadata.String(),
			})
		}
	}
	// Every version advertises the same handlers; show them once.
	if len(v.services) > 0 {
		for _, ep := range v.services[0].Endpoints {
			st.Endpoints = append(st.Endpoints, endpointView(ep))
		}
	}
	for _, rec := range v.logs {
		st.Logs = append(st.Logs, LogView{
			Time:     time.Unix(rec.Timestamp, 0),
			Message:  rec.Text(),
			Metadata: rec.Metadata.String(),
		})
	}
	return st
}

func endpointView(ep backend.Endpoint) EndpointView {
	return EndpointView{
		Name:     ep.Name,
		Request:  backend.FormatValue(ep.Request, 0),
		Response: backend.FormatValue(ep.Response, 0),
		Example:  backend.ExampleRequest(ep.Request),
		Metadata: ep.Metadata.String(),
	}
}

// ServiceSummary is one row of the service list.
type ServiceSummary struct {
	Name     string   `json:"name"`
	Versions []string `json:"versions"`
	Nodes    int      `json:"nodes"`
}

// Summarize groups listed services by name, sorted by name. Versions keep
// listing order.
func Summarize(services []backend.Service) []ServiceSummary {
	index := make(map[string]int)
	var out []ServiceSummary
	for _, svc := range services {
		i, ok := index[svc.Name]
		if !ok {
			i = len(out)
			index[svc.Name] = i
			out = append(out, ServiceSummary{Name: svc.Name})
		}
		if svc.Version != "" {
			out[i].Versions = append(out[i].Versions, svc.Version)
		}
		out[i].Nodes += len(svc.Nodes)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

package db

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gesture.auth/internal/auth"
	"github.com/banshee-data/gesture.auth/internal/gesture"
	"github.com/banshee-data/gesture.auth/internal/httputil"
)

// TemplateChart renders a user's normalized templates as an XY scatter, one
// series per template, for eyeballing how consistent a registration was.
func TemplateChart(username string, set gesture.TemplateSet) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gesture templates", Theme: "dark", Width: "800px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: username, Subtitle: fmt.Sprintf("templates=%d points=%d", len(set), templateLen(set))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -3, Max: 3, Name: "X (z)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -3, Max: 3, Name: "Y (z)", NameLocation: "middle", NameGap: 30}),
	)
	for i, tpl := range set {
		data := make([]opts.ScatterData, 0, tpl.Len())
		for _, p := range tpl.Points() {
			data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
		}
		scatter.AddSeries(fmt.Sprintf("template %d", i+1), data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}
	return scatter
}

func templateLen(set gesture.TemplateSet) int {
	if len(set) == 0 {
		return 0
	}
	return set[0].Len()
}

func (s *TemplateStore) templateChartHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("user")
		if username == "" {
			httputil.WriteJSONError(w, http.StatusBadRequest, "missing user parameter")
			return
		}
		set, err := s.Load(r.Context(), username)
		if errors.Is(err, auth.ErrNotFound) {
			httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var buf bytes.Buffer
		if err := TemplateChart(username, set).Render(&buf); err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to render chart")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	})
}

// userJSON is the admin view of a User.
type userJSON struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	Attempts    int        `json:"attempts"`
}

func (s *TemplateStore) usersHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		users, err := s.ListUsers(r.Context())
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]userJSON, 0, len(users))
		for _, u := range users {
			n, err := s.AttemptCount(r.Context(), u.Username)
			if err != nil {
				httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			uj := userJSON{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt.UTC(), Attempts: n}
			if !u.LastLoginAt.IsZero() {
				t := u.LastLoginAt.UTC()
				uj.LastLoginAt = &t
			}
			out = append(out, uj)
		}
		httputil.WriteJSONOK(w, out)
	})
}

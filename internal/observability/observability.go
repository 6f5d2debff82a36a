package observability

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"drift-and-mend/client/internal/journal"
)

// Config captures opt-in observability toggles for the debug endpoint.
// The listen address belongs to the caller; the handler only decides
// which routes exist.
type Config struct {
	EnablePprof bool
}

type metricsSource interface {
	Snapshot() map[string]uint64
}

// NewHandler serves the client's internal counters and recent rollback
// episodes for desync investigations.
func NewHandler(metrics metricsSource, j *journal.Journal, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/metrics", func(w http.ResponseWriter, r *http.Request) {
		var snapshot map[string]uint64
		if metrics != nil {
			snapshot = metrics.Snapshot()
		}
		writeJSON(w, snapshot)
	})

	mux.HandleFunc("/debug/rollbacks", func(w http.ResponseWriter, r *http.Request) {
		type episodeView struct {
			Frame       uint64 `json:"frame"`
			Target      uint64 `json:"target"`
			End         uint64 `json:"end"`
			Resimulated uint64 `json:"resimulated"`
			RecordedAt  string `json:"recordedAt"`
		}
		var views []episodeView
		if j != nil {
			for _, episode := range j.Episodes() {
				views = append(views, episodeView{
					Frame:       episode.Frame,
					Target:      episode.Target,
					End:         episode.End,
					Resimulated: episode.Resimulated,
					RecordedAt:  episode.RecordedAt.Format("2006-01-02T15:04:05.000Z07:00"),
				})
			}
		}
		writeJSON(w, views)
	})

	if cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

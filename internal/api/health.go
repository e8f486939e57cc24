package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"

	"archwall.mini/aw/internal/types"
)

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Title: Get Version
// @Route: GET /api/version
// @Description: Returns archwall version, ledger endpoint and session ID
// @Response: {"version": "...", "status": "ok", "session_id": "..."}
func (s *Service) HandleVersion(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	st := s.machine.State()

	response := map[string]string{
		"version":  types.Version,
		"status":   "ok",
		"hostname": hostname,
		"go_ver":   runtime.Version(),
		"os_arch":  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		"account":  st.Account,
	}
	if st.SessionID != "" {
		response["session_id"] = st.SessionID
		response["endpoint"] = st.Endpoint
		response["commitment"] = st.Commitment
	}

	s.writeJSON(w, http.StatusOK, response)
}

// @Title: Get Logs
// @Route: GET /api/logs?limit=N
// @Description: Returns recent status messages, newest first
// @Response: Array of {"timestamp", "text", "level"}
func (s *Service) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if s.ring == nil {
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.ring.GetRecent(limit))
}

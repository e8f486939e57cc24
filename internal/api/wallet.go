package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"archwall.mini/aw/internal/trust"
)

// @Title: Get Trusted Wallets
// @Route: GET /api/wallet/trusted
// @Description: Lists wallets allowed to reconnect without a prompt
// @Response: Array of trust records
func (s *Service) HandleTrusted(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list trusted wallets")
		s.writeError(w, http.StatusInternalServerError, "Failed to list trusted wallets")
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// @Title: Revoke Wallet
// @Route: POST /api/wallet/revoke
// @Description: Forgets a trusted wallet so its next connection prompts again
// @Response: 204 No Content
func (s *Service) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		s.writeError(w, http.StatusBadRequest, "Address is required")
		return
	}

	if err := s.store.Revoke(req.Address); err != nil {
		if errors.Is(err, trust.ErrNotTrusted) {
			s.writeError(w, http.StatusNotFound, "Wallet not trusted")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to revoke wallet")
		return
	}
	s.log.Info().Str("wallet", req.Address).Msg("API: Wallet trust revoked")
	w.WriteHeader(http.StatusNoContent)
}

// @Title: Backup Trust Database
// @Route: POST /api/wallet/backup
// @Description: Writes a snapshot of the trust database to the backup directory
// @Response: {"path": "..."}
func (s *Service) HandleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path, err := s.store.BackupCurrent(0)
	if err != nil {
		s.log.Error().Err(err).Msg("Trust backup failed")
		s.writeError(w, http.StatusInternalServerError, "Backup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

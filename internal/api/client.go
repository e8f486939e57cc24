package api

import (
	"encoding/json"
	"net/http"
)

// @Title: Get State
// @Route: GET /api/state
// @Description: Returns the client state: status, account, entries and any error annotation
// @Response: State object
func (s *Service) HandleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.machine.State())
}

// @Title: Connect Wallet
// @Route: POST /api/connect
// @Description: Connects the wallet and checks whether the list account exists
// @Response: State object (ready or awaiting_init)
func (s *Service) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.machine.Connect(detach(r)); err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.machine.State())
}

// @Title: Initialize Account
// @Route: POST /api/initialize
// @Description: Creates the list account owned by the connected wallet
// @Response: State object
func (s *Service) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.machine.Initialize(detach(r)); err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.machine.State())
}

// @Title: Submit Entry
// @Route: POST /api/entries
// @Description: Appends an image link to the list and returns the refreshed state
// @Response: State object
func (s *Service) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Link string `json:"link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.machine.Submit(detach(r), req.Link); err != nil {
		s.writeOpError(w, err)
		return
	}
	s.log.Info().Msg("API: Entry submitted")
	s.writeJSON(w, http.StatusOK, s.machine.State())
}

// @Title: Refresh Entries
// @Route: POST /api/refresh
// @Description: Re-reads the list from the ledger
// @Response: State object
func (s *Service) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.machine.Refresh(r.Context()); err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.machine.State())
}

// @Title: Disconnect Wallet
// @Route: POST /api/disconnect
// @Description: Drops the wallet connection and ledger session
// @Response: 204 No Content
func (s *Service) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.machine.Disconnect(r.Context()); err != nil {
		s.writeOpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Title: Dismiss Error
// @Route: POST /api/error/dismiss
// @Description: Clears the error annotation on the current state
// @Response: 204 No Content
func (s *Service) HandleDismissError(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.machine.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

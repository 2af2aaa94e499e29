package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"nearhand/internal/market"
	"nearhand/internal/repo"
)

// -- Users --

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request, callerID string) {
	user, err := s.service.GetMe(r.Context(), callerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"user": user})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		FirstName    string  `json:"first_name"`
		ProfilePhoto *string `json:"profile_photo"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.service.UpdateProfile(r.Context(), callerID, body.FirstName, body.ProfilePhoto)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"user": user})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.service.Heartbeat(r.Context(), callerID, body.Lat, body.Lng); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleUpdateRadius(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		RadiusMiles int `json:"radius_miles"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.service.UpdateRadius(r.Context(), callerID, body.RadiusMiles)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"user": user})
}

func (s *Server) handleUpdateNotifications(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		Enabled bool `json:"notifications_enabled"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.service.UpdateNotifications(r.Context(), callerID, body.Enabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"user": user})
}

func (s *Server) handleAssignNeighborhood(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.service.AssignNeighborhood(r.Context(), callerID, body.Lat, body.Lng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"user": user})
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		PushToken    string `json:"push_token"`
		PushPlatform string `json:"push_platform"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	device, err := s.service.RegisterDevice(r.Context(), callerID, body.PushToken, body.PushPlatform)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"device": device})
}

func (s *Server) handleNearbyHelpers(w http.ResponseWriter, r *http.Request, callerID string) {
	lat, lng, err := latLngQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	helpers, err := s.service.ListNearbyHelpers(r.Context(), callerID, lat, lng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"helpers": helpers})
}

func (s *Server) handleStartMovement(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		Direction       string `json:"direction"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.service.StartMovement(r.Context(), callerID, body.Direction, body.DurationMinutes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"movement": movementOf(user)})
}

func (s *Server) handleStopMovement(w http.ResponseWriter, r *http.Request, callerID string) {
	user, err := s.service.StopMovement(r.Context(), callerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"movement": movementOf(user)})
}

// -- Broadcasts --

func (s *Server) handleListBroadcasts(w http.ResponseWriter, r *http.Request, callerID string) {
	lat, lng, err := latLngQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	broadcasts, err := s.service.ListBroadcasts(r.Context(), callerID, lat, lng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"broadcasts": broadcasts})
}

func (s *Server) handleCreateBroadcast(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		Type            string   `json:"type"`
		Message         string   `json:"message"`
		PriceCents      int64    `json:"price_cents"`
		Lat             *float64 `json:"lat"`
		Lng             *float64 `json:"lng"`
		LocationContext string   `json:"location_context"`
		PlaceName       *string  `json:"place_name"`
		PlaceAddress    *string  `json:"place_address"`
		DurationMinutes int      `json:"duration_minutes"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	broadcast, idempotent, err := s.service.CreateBroadcast(r.Context(), callerID, token(r), market.CreateBroadcastInput{
		Type:            body.Type,
		Message:         body.Message,
		PriceCents:      body.PriceCents,
		Lat:             body.Lat,
		Lng:             body.Lng,
		LocationContext: body.LocationContext,
		PlaceName:       body.PlaceName,
		PlaceAddress:    body.PlaceAddress,
		DurationMinutes: body.DurationMinutes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if idempotent {
		status = http.StatusOK
	}
	writeJSONStatus(w, status, map[string]any{"broadcast": broadcast, "idempotent": idempotent})
}

func (s *Server) handleDeleteBroadcast(w http.ResponseWriter, r *http.Request, callerID string) {
	if err := s.service.DeleteBroadcast(r.Context(), callerID, r.PathValue("broadcastId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleRespondToBroadcast(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		TipCents int64 `json:"tip_cents"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	request, idempotent, err := s.service.RespondToBroadcast(r.Context(), callerID, r.PathValue("broadcastId"), body.TipCents, token(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"request": request, "idempotent": idempotent})
}

// -- Requests --

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		HelperID string `json:"helper_id"`
		Message  string `json:"message"`
		TipCents int64  `json:"tip_cents"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	request, idempotent, err := s.service.CreateRequest(r.Context(), callerID, body.HelperID, body.Message, body.TipCents, token(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"request": request, "idempotent": idempotent})
}

func (s *Server) handleIncomingRequests(w http.ResponseWriter, r *http.Request, callerID string) {
	requests, err := s.service.ListIncomingRequests(r.Context(), callerID, r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"requests": requests})
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request, callerID string) {
	result, err := s.service.AcceptRequest(r.Context(), callerID, r.PathValue("requestId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"request": result.Request, "task": result.Task})
}

func (s *Server) handleDeclineRequest(w http.ResponseWriter, r *http.Request, callerID string) {
	request, idempotent, err := s.service.DeclineRequest(r.Context(), callerID, r.PathValue("requestId"), token(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"request": request, "idempotent": idempotent})
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request, callerID string) {
	request, idempotent, err := s.service.CancelRequest(r.Context(), callerID, r.PathValue("requestId"), token(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"request": request, "idempotent": idempotent})
}

// -- Tasks --

func (s *Server) handleActiveTask(w http.ResponseWriter, r *http.Request, callerID string) {
	result, err := s.service.GetActiveTask(r.Context(), callerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"task": result.Task, "pending_request_id": result.PendingRequestID})
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request, callerID string) {
	task, err := s.service.StartTask(r.Context(), callerID, r.PathValue("taskId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"task": task})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		ProofPhotoURL *string `json:"proof_photo_url"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, idempotent, err := s.service.CompleteTask(r.Context(), callerID, r.PathValue("taskId"), body.ProofPhotoURL, token(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"task": result.Task, "credit": result.Credit, "idempotent": idempotent})
}

// -- Wallet --

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request, callerID string) {
	wallet, err := s.service.GetWallet(r.Context(), callerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"wallet": wallet})
}

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request, callerID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := s.service.ListLedger(r.Context(), callerID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"entries": page.Entries, "next_cursor": page.NextCursor})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, callerID string) {
	var body struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, idempotent, err := s.service.Withdraw(r.Context(), callerID, body.AmountCents, token(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "entry": result.Entry, "wallet": result.Wallet, "idempotent": idempotent})
}

// -- helpers --

type movement struct {
	OnTheMove bool       `json:"on_the_move"`
	Direction *string    `json:"direction"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func movementOf(u *repo.User) movement {
	return movement{
		OnTheMove: u.OnTheMove,
		Direction: u.Direction,
		ExpiresAt: u.MoveExpiresAt,
	}
}

func latLngQuery(r *http.Request) (float64, float64, error) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		return 0, 0, market.E(market.CodeValidation, "lat and lng query params required")
	}
	return lat, lng, nil
}

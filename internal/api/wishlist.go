package api

import (
	"net/http"
	"time"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/service"
)

type itemRequest struct {
	ProductID   int64  `json:"product_id"`
	VariationID int64  `json:"variation_id"`
	Quantity    int    `json:"quantity"`
	Note        string `json:"note"`
	List        string `json:"list"`
}

type itemResponse struct {
	ProductID   int64     `json:"product_id"`
	VariationID int64     `json:"variation_id"`
	Quantity    int       `json:"quantity"`
	ListID      string    `json:"list_id"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type listResponse struct {
	Key        string            `json:"key"`
	Title      string            `json:"title"`
	Slug       string            `json:"slug"`
	Visibility models.Visibility `json:"visibility"`
	CreatedAt  time.Time         `json:"created_at"`
}

func toItemResponse(item *models.WishlistItem) itemResponse {
	return itemResponse{
		ProductID:   item.ProductID,
		VariationID: item.VariationID,
		Quantity:    item.Quantity,
		ListID:      item.ListID,
		Note:        item.Note(),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func toListResponse(list *models.WishlistList) listResponse {
	return listResponse{
		Key:        list.Key,
		Title:      list.Title,
		Slug:       list.Slug,
		Visibility: list.Visibility,
		CreatedAt:  list.CreatedAt,
	}
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	wl, ok := s.wishlist(w, r)
	if !ok {
		return
	}

	items, err := wl.GetItems(r.Context(), r.URL.Query().Get("list"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	resp := make([]itemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResponse(item))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"items": resp})
}

func (s *Server) handleGetCount(w http.ResponseWriter, r *http.Request) {
	wl, ok := s.wishlist(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	refresh := q.Get("refresh") == "1" || q.Get("refresh") == "true"
	count, err := wl.GetCount(r.Context(), q.Get("list"), refresh)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}
	wl, ok := s.wishlist(w, r)
	if !ok {
		return
	}

	result, err := wl.ToggleItem(r.Context(), req.ProductID, req.VariationID, req.Quantity, req.List)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}
	wl, ok := s.wishlist(w, r)
	if !ok {
		return
	}

	result, err := wl.RemoveItem(r.Context(), req.ProductID, req.VariationID, req.List)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}
	wl, ok := s.wishlist(w, r)
	if !ok {
		return
	}

	updated, err := wl.UpdateItemNote(r.Context(), req.ProductID, req.VariationID, req.Note, req.List)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": updated})
}

func (s *Server) handleGetLists(w http.ResponseWriter, r *http.Request) {
	wl, ok := s.wishlist(w, r)
	if !ok {
		return
	}

	lists, err := wl.GetLists(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	active, err := wl.ActiveListID(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	resp := make([]listResponse, 0, len(lists))
	for _, list := range lists {
		resp = append(resp, toListResponse(list))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"lists": resp, "active_list": active})
}

type createListRequest struct {
	Title      string `json:"title"`
	Visibility string `json:"visibility"`
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}
	wl, ok := s.wishlist(w, r)
	if !ok {
		return
	}

	list, err := wl.CreateList(r.Context(), req.Title, req.Visibility)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, toListResponse(list))
}

type activeListRequest struct {
	List string `json:"list"`
}

func (s *Server) handleSetActiveList(w http.ResponseWriter, r *http.Request) {
	var req activeListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}
	actor, ok := s.actor(r)
	if !ok {
		s.writeError(w, r, newError(service.CodeInvalidUser, "user header must carry a positive integer", http.StatusBadRequest))
		return
	}

	listID, err := s.svc.SwitchActiveList(r.Context(), actor, req.List)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"list_id": listID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(r)
	if !ok || actor.UserID <= 0 {
		s.writeError(w, r, newError("login_required", "an authenticated user is required", http.StatusUnauthorized))
		return
	}

	result, err := s.svc.OnLogin(r.Context(), actor.UserID, s.identity(w, r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

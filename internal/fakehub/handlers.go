package fakehub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinyvillage/villagehub/internal/domain/item"
)

type ctxKey struct{}

const maxUpload = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

func currentUser(r *http.Request) *user {
	u, _ := r.Context().Value(ctxKey{}).(*user)
	return u
}

// requireAuth answers 401 unless the bearer token is a live access token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			s.authRejects.Add(1)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		s.mu.Lock()
		u, err := s.verifyAccess(raw)
		s.mu.Unlock()
		if err != nil {
			s.authRejects.Add(1)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

// ---- auth ----

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[body.Username]
	if !ok || u.Password != body.Password {
		writeError(w, http.StatusUnauthorized, "Bad credentials")
		return
	}
	access, err := s.issueAccess(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tokenField := "accessToken"
	if s.loginLegacy {
		tokenField = "jwt"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		tokenField:     access,
		"refreshToken": s.issueRefresh(u),
		"id":           u.ID,
		"username":     u.Username,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil || body.Username == "" || body.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[body.Username]; exists {
		http.Error(w, "Username is already taken", http.StatusBadRequest)
		return
	}
	s.addUserLocked(body.Username, body.Password, body.Email)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "User registered successfully")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	delay, status := s.refreshDelay, s.refreshStatus
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		writeError(w, status, "refresh unavailable")
		return
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.refresh[body.RefreshToken]
	if !ok {
		writeError(w, http.StatusForbidden, "Refresh token is not in database!")
		return
	}
	u := s.users[name]
	access, err := s.issueAccess(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]string{"accessToken": access}
	if s.rotate {
		delete(s.refresh, body.RefreshToken)
		resp["refreshToken"] = s.issueRefresh(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	u := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Password != body.Password {
		writeError(w, http.StatusBadRequest, "Password is incorrect")
		return
	}
	s.revokeUser(u)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out from all devices"})
}

// ---- items ----

func (s *Server) sortedItems(keep func(*item.Item) bool) []item.Item {
	ids := make([]int64, 0, len(s.items))
	for id, it := range s.items {
		if keep(it) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]item.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.items[id])
	}
	return out
}

func (s *Server) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := s.sortedItems(func(it *item.Item) bool { return it.IsForTrade || it.IsForDonation })
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	out := s.sortedItems(func(it *item.Item) bool { return it.OwnerUsername == u.Username })
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookupItem(w http.ResponseWriter, r *http.Request) (*item.Item, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}
	it, ok := s.items[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Item not found")
		return nil, false
	}
	return it, true
}

// ownedItem looks up the item and checks the caller owns it. Caller holds s.mu.
func (s *Server) ownedItem(w http.ResponseWriter, r *http.Request) (*item.Item, bool) {
	it, ok := s.lookupItem(w, r)
	if !ok {
		return nil, false
	}
	if it.OwnerUsername != currentUser(r).Username {
		writeError(w, http.StatusForbidden, "You do not own this item")
		return nil, false
	}
	return it, true
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookupItem(w, r)
	if !ok {
		return
	}
	// Unlisted items are only visible to their owner through /items/my-items.
	if !it.IsForTrade && !it.IsForDonation {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func imageURL(r *http.Request, filename string) string {
	return fmt.Sprintf("http://%s/uploads/%s-%s", r.Host, uuid.NewString(), path.Base(filename))
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	raw := r.FormValue("itemDetails")
	if raw == "" {
		if fhs := r.MultipartForm.File["itemDetails"]; len(fhs) > 0 {
			f, err := fhs[0].Open()
			if err == nil {
				data, _ := io.ReadAll(f)
				_ = f.Close()
				raw = string(data)
			}
		}
	}
	var details item.Details
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		writeError(w, http.StatusBadRequest, "invalid itemDetails")
		return
	}
	files := r.MultipartForm.File["imageFile"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one image is required")
		return
	}

	it := item.Item{
		Name:          details.Name,
		Description:   details.Description,
		Type:          details.Type,
		IsForTrade:    details.IsForTrade,
		IsForDonation: details.IsForDonation,
	}
	for _, fh := range files {
		it.Images = append(it.Images, imageURL(r, fh.Filename))
	}

	id := s.AddItem(currentUser(r).Username, it)
	created, _ := s.Item(id)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var details item.Details
	if err := decodeBody(r, &details); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.ownedItem(w, r)
	if !ok {
		return
	}
	it.Name = details.Name
	it.Description = details.Description
	it.Type = details.Type
	it.IsForTrade = details.IsForTrade
	it.IsForDonation = details.IsForDonation
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.ownedItem(w, r)
	if !ok {
		return
	}
	delete(s.items, it.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	files := r.MultipartForm.File["imageFile"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "imageFile is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.ownedItem(w, r)
	if !ok {
		return
	}
	for _, fh := range files {
		it.Images = append(it.Images, imageURL(r, fh.Filename))
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.ownedItem(w, r)
	if !ok {
		return
	}
	kept := it.Images[:0]
	found := false
	for _, u := range it.Images {
		if u == target {
			found = true
			continue
		}
		kept = append(kept, u)
	}
	if !found {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}
	it.Images = kept
	w.WriteHeader(http.StatusNoContent)
}

// ---- users ----

func (s *Server) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	u := currentUser(r)
	s.mu.Lock()
	u.Address = body
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Address updated"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	u := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	fieldErrors := map[string]string{}
	if body.CurrentPassword != u.Password {
		fieldErrors["currentPassword"] = "Current password is incorrect"
	}
	if body.NewPassword != body.ConfirmPassword {
		fieldErrors["confirmPassword"] = "Passwords do not match"
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message":     "Validation failed",
			"fieldErrors": fieldErrors,
		})
		return
	}
	u.Password = body.NewPassword
	s.revokeUser(u)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

package handlers

import (
	"net/http"

	"github.com/dom/slash-backend/internal/api/middleware"
	"github.com/dom/slash-backend/internal/api/respond"
	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type SnippetHandler struct {
	snippets *service.SnippetService
}

func NewSnippetHandler(snippets *service.SnippetService) *SnippetHandler {
	return &SnippetHandler{snippets: snippets}
}

type SnippetRequest struct {
	Keyword string `json:"keyword"`
	Value   string `json:"value"`
}

func (h *SnippetHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	snippets, err := h.snippets.List(r.Context(), userID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if snippets == nil {
		snippets = []*domain.DecryptedSnippet{}
	}
	respond.OK(w, r, http.StatusOK, snippets)
}

func (h *SnippetHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	var req SnippetRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	snippet, err := h.snippets.Create(r.Context(), userID, service.SnippetInput{Keyword: req.Keyword, Value: req.Value})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if s := respond.FromContext(r.Context()); s != nil {
		s.SetResourceID(snippet.ID.String())
	}
	respond.OK(w, r, http.StatusCreated, snippet)
}

func (h *SnippetHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	id, ok := snippetID(w, r)
	if !ok {
		return
	}

	snippet, err := h.snippets.Get(r.Context(), userID, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, snippet)
}

func (h *SnippetHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	id, ok := snippetID(w, r)
	if !ok {
		return
	}

	var req SnippetRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	snippet, err := h.snippets.Update(r.Context(), userID, id, service.SnippetInput{Keyword: req.Keyword, Value: req.Value})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, snippet)
}

func (h *SnippetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	id, ok := snippetID(w, r)
	if !ok {
		return
	}

	if err := h.snippets.Delete(r.Context(), userID, id); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, respond.Envelope{Success: true, Message: "Snippet deleted successfully"})
}

func (h *SnippetHandler) IncrementUsage(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	id, ok := snippetID(w, r)
	if !ok {
		return
	}

	snippet, err := h.snippets.IncrementUsage(r.Context(), userID, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, snippet)
}

// snippetID parses {id}; a malformed id is answered as not found.
func snippetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, domain.ErrSnippetNotFound)
		return uuid.Nil, false
	}
	return id, true
}

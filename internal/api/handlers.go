package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/feed"
	"github.com/feedwise/feedwise/internal/progress"
	"github.com/feedwise/feedwise/internal/store"
)

// refresh starts a pipeline run and streams its progress events as
// server-sent events. The stream ends after the terminal done or
// error event; a client disconnect cancels the run.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := progress.NewStream(
		progress.NewLogTap(s.logger.With(zap.String("user_id", userID))),
		progress.MetricsTap{},
	)
	go s.runner.Run(r.Context(), userID, stream)

	for evt := range stream.Events() {
		payload, err := json.Marshal(evt)
		if err != nil {
			s.logger.Error("marshal progress event failed", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Consumer is gone; the request context cancels the run.
			return
		}
		flusher.Flush()
	}
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	articles, err := s.articles.ListTopArticles(r.Context(), userID, listArticleLimit)
	if err != nil {
		s.logger.Error("list articles failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list articles")
		return
	}
	if articles == nil {
		articles = []store.Article{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	articleID := chi.URLParam(r, "article_id")

	article, err := s.articles.GetArticle(r.Context(), userID, articleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "article not found")
			return
		}
		s.logger.Error("get article failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load article")
		return
	}
	s.writeJSON(w, http.StatusOK, article)
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	articleID := chi.URLParam(r, "article_id")

	if err := s.articles.DeleteArticle(r.Context(), userID, articleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "article not found")
			return
		}
		s.logger.Error("delete article failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete article")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": articleID, "status": "deleted"})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	profile, err := s.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		s.logger.Error("get profile failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	var profile feed.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if profile.Role == "" && len(profile.Skills) == 0 && len(profile.Interests) == 0 && profile.Narrative == "" {
		s.writeError(w, http.StatusBadRequest, "profile must not be empty")
		return
	}

	if err := s.profiles.PutProfile(r.Context(), userID, profile); err != nil {
		s.logger.Error("put profile failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

type processURLRequest struct {
	URL string `json:"url"`
}

func (s *Server) processURL(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	var req processURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		s.writeError(w, http.StatusBadRequest, "url must be absolute http(s)")
		return
	}

	article, err := s.runner.ProcessURL(r.Context(), userID, req.URL)
	if err != nil {
		s.logger.Error("process url failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, article)
}

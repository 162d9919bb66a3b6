package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/relaypub/relay/pkg/httputil"
	"github.com/relaypub/relay/pkg/pubsub"
)

// subscribe handles POST /api/subscribe
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !validWebhookURL(req.URL) {
		httputil.WriteBadRequest(w, "url must be a valid http(s) URL")
		return
	}

	sub, err := s.service.Subscribe(r.Context(), req.URL)
	if err != nil {
		s.logger.WithError(err).Error("Subscribe failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteOK(w, SubscribeResponse{SubID: sub.ID, Secret: sub.Secret})
}

// unsubscribe handles POST /api/unsubscribe
func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := s.service.Unsubscribe(r.Context(), req.SubID)
	if errors.Is(err, pubsub.ErrSubscriberNotFound) {
		httputil.WriteNotFound(w, err.Error())
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Unsubscribe failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteOK(w, nil)
}

// publish handles POST /api/provide_data
func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Message == "" {
		httputil.WriteBadRequest(w, "message is required")
		return
	}

	if _, err := s.service.Publish(r.Context(), req.Message); err != nil {
		s.logger.WithError(err).Error("Publish failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteOK(w, nil)
}

// ask handles POST /api/ask
func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	msg, err := s.service.RequestAndBroadcast(r.Context(), req.TxID)
	if errors.Is(err, pubsub.ErrMessageNotFound) {
		httputil.WriteNotFound(w, err.Error())
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Request and broadcast failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteOK(w, AskResponse{Message: msg.Body})
}

// stats handles GET /api/stats
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GetStats(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Stats failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteOK(w, stats)
}

// reactivate handles POST /api/subscribers/{id}/reactivate
func (s *Server) reactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := s.service.Reactivate(r.Context(), id)
	if errors.Is(err, pubsub.ErrSubscriberNotFound) {
		httputil.WriteNotFound(w, err.Error())
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Reactivate failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteOK(w, map[string]interface{}{
		"sub_id": sub.ID,
		"active": sub.Active,
	})
}

func validWebhookURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

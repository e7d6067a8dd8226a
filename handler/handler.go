// Package handler adapts API Gateway proxy requests to the tracker
// service: saving a conversation's full event history and reconstructing
// it for the dialogue engine.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"conversation-tracker/internal/domain"
	"conversation-tracker/internal/usecase"
)

// trackerUseCase is the service surface the handler drives.
type trackerUseCase interface {
	Save(ctx context.Context, senderID string, evs []domain.Event) (int, error)
	Retrieve(ctx context.Context, senderID string) (*domain.Tracker, error)
	RetrieveFull(ctx context.Context, senderID string) (*domain.Tracker, error)
	Keys(ctx context.Context) ([]string, error)
}

type Handler struct {
	tracker trackerUseCase
}

func NewHandler(tracker trackerUseCase) (*Handler, error) {
	if tracker == nil {
		return nil, errors.New("handler: tracker use case must not be nil")
	}
	return &Handler{tracker: tracker}, nil
}

type saveRequest struct {
	Events []json.RawMessage `json:"events"`
}

type saveResponse struct {
	SenderID string `json:"senderId"`
	Appended int    `json:"appended"`
}

type trackerResponse struct {
	SenderID string            `json:"senderId"`
	Events   []json.RawMessage `json:"events"`
}

type keysResponse struct {
	SenderIDs []string `json:"senderIds"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handle routes one API Gateway request:
//
//	POST /conversations/{senderId}/events  save the full history
//	GET  /conversations/{senderId}         current-session reconstruction
//	GET  /conversations/{senderId}?history=full   full reconstruction
//	GET  /conversations                    list known conversation keys
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := uuid.NewString()

	route, senderID := parsePath(req.Path)
	switch {
	case req.HTTPMethod == http.MethodPost && route == routeEvents:
		return h.save(ctx, correlationID, senderID, req.Body), nil
	case req.HTTPMethod == http.MethodGet && route == routeConversation:
		full := strings.EqualFold(req.QueryStringParameters["history"], "full")
		return h.retrieve(ctx, correlationID, senderID, full), nil
	case req.HTTPMethod == http.MethodGet && route == routeKeys:
		return h.keys(ctx, correlationID), nil
	default:
		return respond(http.StatusNotFound, correlationID,
			errorResponse{Error: "NOT_FOUND", Reason: "unknown_route"}), nil
	}
}

func (h *Handler) save(ctx context.Context, correlationID, senderID, body string) events.APIGatewayProxyResponse {
	var in saveRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return respond(http.StatusBadRequest, correlationID,
			errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "malformed_body"})
	}
	evs, err := domain.ParseSequence(in.Events)
	if err != nil {
		return respond(http.StatusBadRequest, correlationID,
			errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "malformed_event"})
	}

	appended, err := h.tracker.Save(ctx, senderID, evs)
	if err != nil {
		return errorToResponse(correlationID, err)
	}
	return respond(http.StatusOK, correlationID, saveResponse{SenderID: senderID, Appended: appended})
}

func (h *Handler) retrieve(ctx context.Context, correlationID, senderID string, full bool) events.APIGatewayProxyResponse {
	var (
		tracker *domain.Tracker
		err     error
	)
	if full {
		tracker, err = h.tracker.RetrieveFull(ctx, senderID)
	} else {
		tracker, err = h.tracker.Retrieve(ctx, senderID)
	}
	if err != nil {
		return errorToResponse(correlationID, err)
	}

	payloads := make([]json.RawMessage, 0, tracker.Len())
	for _, p := range tracker.Payloads() {
		payloads = append(payloads, p)
	}
	return respond(http.StatusOK, correlationID, trackerResponse{
		SenderID: tracker.SenderID,
		Events:   payloads,
	})
}

func (h *Handler) keys(ctx context.Context, correlationID string) events.APIGatewayProxyResponse {
	ids, err := h.tracker.Keys(ctx)
	if err != nil {
		return errorToResponse(correlationID, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return respond(http.StatusOK, correlationID, keysResponse{SenderIDs: ids})
}

const (
	routeKeys         = "keys"
	routeConversation = "conversation"
	routeEvents       = "events"
)

// parsePath recognizes /conversations, /conversations/{id} and
// /conversations/{id}/events.
func parsePath(path string) (route, senderID string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] != "conversations" {
		return "", ""
	}
	switch len(parts) {
	case 1:
		return routeKeys, ""
	case 2:
		if parts[1] != "" {
			return routeConversation, parts[1]
		}
	case 3:
		if parts[1] != "" && parts[2] == "events" {
			return routeEvents, parts[1]
		}
	}
	return "", ""
}

func errorToResponse(correlationID string, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		status := http.StatusInternalServerError
		switch ucErr.Code {
		case usecase.ErrorInvalidInput:
			status = http.StatusBadRequest
		case usecase.ErrorNotFound:
			status = http.StatusNotFound
		case usecase.ErrorStorage:
			status = http.StatusBadGateway
		}
		return respond(status, correlationID,
			errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
	}
	return respond(http.StatusInternalServerError, correlationID,
		errorResponse{Error: string(usecase.ErrorStorage), Reason: "unexpected_error"})
}

func respond(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json", "X-Correlation-Id": correlationID},
			Body:       `{"error":"STORAGE_ERROR","reason":"encode_response"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json", "X-Correlation-Id": correlationID},
		Body:       string(b),
	}
}

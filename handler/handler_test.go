package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"conversation-tracker/internal/domain"
	"conversation-tracker/internal/usecase"
)

type stubUseCase struct {
	appended    int
	saveErr     error
	tracker     *domain.Tracker
	retrieveErr error
	ids         []string
	keysErr     error

	savedSender string
	savedEvents []domain.Event
	gotSender   string
	fullCalled  bool
}

func (s *stubUseCase) Save(_ context.Context, senderID string, evs []domain.Event) (int, error) {
	s.savedSender = senderID
	s.savedEvents = evs
	return s.appended, s.saveErr
}

func (s *stubUseCase) Retrieve(_ context.Context, senderID string) (*domain.Tracker, error) {
	s.gotSender = senderID
	return s.tracker, s.retrieveErr
}

func (s *stubUseCase) RetrieveFull(_ context.Context, senderID string) (*domain.Tracker, error) {
	s.gotSender = senderID
	s.fullCalled = true
	return s.tracker, s.retrieveErr
}

func (s *stubUseCase) Keys(_ context.Context) ([]string, error) {
	return s.ids, s.keysErr
}

func makeRequest(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func mustHandler(t *testing.T, uc trackerUseCase) *Handler {
	t.Helper()
	h, err := NewHandler(uc)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_SaveHappyPath(t *testing.T) {
	uc := &stubUseCase{appended: 2}
	h := mustHandler(t, uc)

	body := `{"events":[
		{"event":"user","timestamp":1,"text":"hi","parse_data":{"intent":{"name":"greet","confidence":0.9}}},
		{"event":"bot","timestamp":2,"text":"hello"}
	]}`
	resp, err := h.Handle(context.Background(), makeRequest(http.MethodPost, "/conversations/alice/events", body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	require.Equal(t, "alice", uc.savedSender)
	require.Len(t, uc.savedEvents, 2)

	out := parseBody[saveResponse](t, resp.Body)
	require.Equal(t, "alice", out.SenderID)
	require.Equal(t, 2, out.Appended)
}

func TestHandle_SaveMalformedBody(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), makeRequest(http.MethodPost, "/conversations/alice/events", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
}

func TestHandle_SaveMalformedEvent(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), makeRequest(http.MethodPost, "/conversations/alice/events", `{"events":[{"timestamp":1}]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "malformed_event", parseBody[errorResponse](t, resp.Body).Reason)
}

func TestHandle_RetrieveCurrentSession(t *testing.T) {
	raw := json.RawMessage(`{"event":"user","timestamp":2,"text":"hi"}`)
	ev, err := domain.ParseEvent(raw)
	require.NoError(t, err)

	uc := &stubUseCase{tracker: &domain.Tracker{SenderID: "alice", Events: []domain.Event{ev}}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeRequest(http.MethodGet, "/conversations/alice", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, uc.fullCalled)
	require.Equal(t, "alice", uc.gotSender)

	out := parseBody[trackerResponse](t, resp.Body)
	require.Equal(t, "alice", out.SenderID)
	require.Len(t, out.Events, 1)
	require.JSONEq(t, string(raw), string(out.Events[0]))
}

func TestHandle_RetrieveFullHistory(t *testing.T) {
	uc := &stubUseCase{tracker: &domain.Tracker{SenderID: "alice"}}
	h := mustHandler(t, uc)

	req := makeRequest(http.MethodGet, "/conversations/alice", "")
	req.QueryStringParameters = map[string]string{"history": "full"}

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, uc.fullCalled)
}

func TestHandle_Keys(t *testing.T) {
	uc := &stubUseCase{ids: []string{"alice", "bob"}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeRequest(http.MethodGet, "/conversations", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"alice", "bob"}, parseBody[keysResponse](t, resp.Body).SenderIDs)
}

func TestHandle_KeysEmptyIsArray(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), makeRequest(http.MethodGet, "/conversations", ""))
	require.NoError(t, err)
	require.Contains(t, resp.Body, `"senderIds":[]`)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", &usecase.Error{Code: usecase.ErrorNotFound, Reason: "unknown_conversation"}, http.StatusNotFound},
		{"invalid input", &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_sender_id"}, http.StatusBadRequest},
		{"storage", &usecase.Error{Code: usecase.ErrorStorage, Reason: "retrieve_failed"}, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := mustHandler(t, &stubUseCase{retrieveErr: tc.err})
			resp, err := h.Handle(context.Background(), makeRequest(http.MethodGet, "/conversations/alice", ""))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestHandle_UnknownRoute(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})

	for _, req := range []events.APIGatewayProxyRequest{
		makeRequest(http.MethodGet, "/other", ""),
		makeRequest(http.MethodDelete, "/conversations/alice", ""),
		makeRequest(http.MethodPost, "/conversations/alice/other", ""),
		makeRequest(http.MethodGet, "/conversations/alice/events", ""),
	} {
		resp, err := h.Handle(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, "path %s", req.Path)
	}
}

func TestParsePath(t *testing.T) {
	route, id := parsePath("/conversations")
	require.Equal(t, routeKeys, route)
	require.Empty(t, id)

	route, id = parsePath("/conversations/alice")
	require.Equal(t, routeConversation, route)
	require.Equal(t, "alice", id)

	route, id = parsePath("/conversations/alice/events")
	require.Equal(t, routeEvents, route)
	require.Equal(t, "alice", id)

	route, _ = parsePath("/")
	require.Empty(t, route)
}

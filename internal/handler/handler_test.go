package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/deal-conversations/internal/middleware"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/internal/service"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

const testSecret = "handler-test-secret"

type testAPI struct {
	t       *testing.T
	svc     *service.DealService
	handler http.Handler
}

func newTestAPI(t *testing.T, readiness ReadinessChecker) *testAPI {
	t.Helper()
	svc := service.NewDealService(service.Deps{Logger: logger.NewNop()})
	t.Cleanup(svc.Close)
	return &testAPI{
		t:   t,
		svc: svc,
		handler: NewRouter(RouterConfig{
			Service:        svc,
			Logger:         logger.NewNop(),
			JWTSecret:      testSecret,
			MaxUploadBytes: 1 << 20,
			Heartbeat:      time.Hour,
			Readiness:      readiness,
		}),
	}
}

func token(t *testing.T, userID string, role model.Role) string {
	t.Helper()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name: userID,
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (a *testAPI) do(method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(a.t, userID, ""))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) createDeal(transactionID string) model.Conversation {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/v1/conversations", "fm-1", model.CreateConversationRequest{
		TransactionID: transactionID,
		Title:         "Northwind fleet refresh",
		BorrowerName:  "Northwind Logistics",
		DealAmount:    750_000,
		DealType:      model.DealEquipmentFinancing,
		BorrowerRisk:  model.BorrowerRisk{CreditScore: 720, DSCR: 1.4, YearsInBusiness: 6, HasCollateral: true},
		Participants: []model.AddParticipantRequest{
			{UserID: "br-1", Name: "Dana Broker", Role: model.RoleBroker},
			{UserID: "bo-1", Name: "Bo Rower", Role: model.RoleBorrower},
		},
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Conversation](a.t, rec)
}

type readiness bool

func (r readiness) IsConnected() bool { return bool(r) }

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t, nil)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/ready", "", nil).Code)

	down := newTestAPI(t, readiness(false))
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/ready", "", nil).Code)
}

func TestAPI_RequiresToken(t *testing.T) {
	api := newTestAPI(t, nil)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/v1/conversations", "", nil).Code)
}

func TestConversations_CreateAndGet(t *testing.T) {
	api := newTestAPI(t, nil)
	conv := api.createDeal("TX-1")

	assert.Equal(t, "fm-1", conv.OwnerID)
	assert.Equal(t, model.StatusProspecting, conv.Status)

	rec := api.do(http.MethodGet, "/api/v1/conversations/"+conv.ID, "bo-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, conv.ID, decode[model.Conversation](t, rec).ID)

	tests := []struct {
		name   string
		path   string
		user   string
		status int
	}{
		{"not a participant", "/api/v1/conversations/" + conv.ID, "stranger", http.StatusForbidden},
		{"malformed id", "/api/v1/conversations/not-a-uuid", "fm-1", http.StatusBadRequest},
		{"unknown id", "/api/v1/conversations/0190a6b2-7c3e-7d4f-8a1b-2c3d4e5f6a7b", "fm-1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(http.MethodGet, tt.path, tt.user, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestConversations_CreateErrors(t *testing.T) {
	api := newTestAPI(t, nil)
	api.createDeal("TX-1")

	rec := api.do(http.MethodPost, "/api/v1/conversations", "fm-1", model.CreateConversationRequest{
		TransactionID: "TX-1", Title: "again", BorrowerName: "Northwind", DealAmount: 1, DealType: model.DealSBALoan,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decode[errorResponse](t, rec).Code)

	rec = api.do(http.MethodPost, "/api/v1/conversations", "fm-1", model.CreateConversationRequest{
		TransactionID: "TX-2", Title: "bad", BorrowerName: "Northwind", DealAmount: -5, DealType: model.DealSBALoan,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/conversations", "fm-1", model.CreateConversationRequest{
		TransactionID: "TX-3", CustomerID: "cust-1", DealAmount: 10_000, DealType: model.DealSBALoan,
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code, "no customer directory configured")
}

func TestConversations_List(t *testing.T) {
	api := newTestAPI(t, nil)
	api.createDeal("TX-1")
	api.createDeal("TX-2")

	rec := api.do(http.MethodGet, "/api/v1/conversations?filter=my_deals&sort=amount&limit=1", "bo-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[model.ListConversationsResponse](t, rec)
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Conversations, 1)
	assert.True(t, resp.HasMore)

	rec = api.do(http.MethodGet, "/api/v1/conversations?filter=my_deals", "stranger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[model.ListConversationsResponse](t, rec).Total)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/conversations?filter=mine", "fm-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/conversations?sort=name", "fm-1", nil).Code)
}

func TestMessages_SendTriggersAssistant(t *testing.T) {
	api := newTestAPI(t, nil)
	conv := api.createDeal("TX-1")
	path := "/api/v1/conversations/" + conv.ID + "/messages"

	rec := api.do(http.MethodPost, path, "br-1", model.SendMessageRequest{Content: "EVA, which lenders fit this deal?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[model.SendMessageResponse](t, rec)
	assert.True(t, sent.AssistantPending)
	assert.Equal(t, "br-1", sent.Message.SenderID)

	api.svc.WaitForAssistant()

	rec = api.do(http.MethodGet, path, "bo-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[model.ListMessagesResponse](t, rec)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, model.AssistantID, list.Messages[1].SenderID)
	assert.Equal(t, model.MessageTypeEvaRecommendation, list.Messages[1].MessageType)

	rec = api.do(http.MethodPost, path, "br-1", model.SendMessageRequest{Content: "x", MessageType: model.MessageTypeStatusUpdate})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, path, "br-1", model.SendMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndParticipants(t *testing.T) {
	api := newTestAPI(t, nil)
	conv := api.createDeal("TX-1")
	base := "/api/v1/conversations/" + conv.ID

	rec := api.do(http.MethodPost, base+"/status", "bo-1", model.AdvanceStatusRequest{Status: model.StatusPreQualified})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.MessageTypeStatusUpdate, decode[model.Message](t, rec).MessageType)

	rec = api.do(http.MethodPost, base+"/status", "fm-1", model.AdvanceStatusRequest{Status: model.StatusFunded})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(http.MethodPost, base+"/participants", "bo-1", model.AddParticipantRequest{UserID: "ln-1", Name: "Lee", Role: model.RoleLender})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, base+"/participants", "br-1", model.AddParticipantRequest{UserID: "ln-1", Name: "Lee", Role: model.RoleLender})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodGet, base+"/participants/ln-1/permissions", "bo-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.DefaultPermissions(model.RoleLender), decode[model.Permissions](t, rec))
}

func TestLenderMatchesAndSelect(t *testing.T) {
	api := newTestAPI(t, nil)
	conv := api.createDeal("TX-1")
	base := "/api/v1/conversations/" + conv.ID

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, base+"/lender-matches", "bo-1", nil).Code)

	rec := api.do(http.MethodGet, base+"/lender-matches", "br-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[model.LenderMatchResponse](t, rec)
	require.NotEmpty(t, matches.Recommendations)

	rec = api.do(http.MethodPost, base+"/lender-matches/select", "br-1", model.SelectLenderRequest{RecommendationID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	top := matches.Recommendations[0]
	rec = api.do(http.MethodPost, base+"/lender-matches/select", "br-1", model.SelectLenderRequest{RecommendationID: top.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[model.SendMessageResponse](t, rec)
	assert.Contains(t, resp.Message.Content, top.LenderName)
	assert.True(t, resp.AssistantPending)
}

func TestAttachments_UploadAndDownload(t *testing.T) {
	api := newTestAPI(t, nil)
	conv := api.createDeal("TX-1")
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

	upload := func(userID string, data []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "bank-statement.pdf")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("caption", "March statement"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/attachments", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token(t, userID, ""))
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("bo-1", pdf)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[model.SendMessageResponse](t, rec)
	assert.Equal(t, model.MessageTypeDocumentShare, resp.Message.MessageType)
	assert.Equal(t, "March statement", resp.Message.Content)
	require.Len(t, resp.Message.Attachments, 1)
	att := resp.Message.Attachments[0]

	rec = api.do(http.MethodGet, "/api/v1/attachments/"+att.ID, "br-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pdf, rec.Body.Bytes())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bank-statement.pdf")

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/api/v1/attachments/"+att.ID, "stranger", nil).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, upload("bo-1", make([]byte, 2<<20)).Code)
}

func TestArchive(t *testing.T) {
	api := newTestAPI(t, nil)
	conv := api.createDeal("TX-1")
	base := "/api/v1/conversations/" + conv.ID

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, base, "bo-1", nil).Code)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, base, "fm-1", nil).Code)

	rec := api.do(http.MethodPost, base+"/messages", "br-1", model.SendMessageRequest{Content: "still there?"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/conversations", "fm-1", nil)
	assert.Zero(t, decode[model.ListConversationsResponse](t, rec).Total)
}

func TestStream_DeliversConversationEvents(t *testing.T) {
	api := newTestAPI(t, nil)
	conv := api.createDeal("TX-1")

	srv := httptest.NewServer(api.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/conversations/"+conv.ID+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, "bo-1", ""))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case name := <-events:
			return name
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for SSE event")
			return ""
		}
	}

	require.Equal(t, "connected", next())
	_, err = api.svc.AppendMessage(context.Background(), "br-1", conv.ID, &model.SendMessageRequest{Content: "Appraisal is in"})
	require.NoError(t, err)
	assert.Equal(t, "message", next())

	_, err = api.svc.AdvanceStatus(context.Background(), "fm-1", conv.ID, model.StatusPreQualified)
	require.NoError(t, err)
	got := []string{next(), next()}
	assert.ElementsMatch(t, []string{"message", "status_changed"}, got)
}

func TestStream_RejectsNonParticipant(t *testing.T) {
	api := newTestAPI(t, nil)
	conv := api.createDeal("TX-1")

	rec := api.do(http.MethodGet, "/api/v1/conversations/"+conv.ID+"/stream", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"rms/src/db"
	"rms/src/settlement"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewMockDB() (*gorm.DB, sqlmock.Sqlmock) {
	mockdb, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: mockdb,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening gorm database", err)
	}

	return gormDB, mock
}

type TestSuite struct {
	suite.Suite
	DB   *gorm.DB
	Mock sqlmock.Sqlmock
}

// testAuthMiddleware stands in for the JWT middleware so handler tests do
// not need a user row in the mock database.
func testAuthMiddleware(ctx *gin.Context) {
	ctx.Set("id", uint(7))
	ctx.Set("email", "host@example.com")
	ctx.Set("role", "operator")
}

func (s *TestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	d, mock := NewMockDB()
	db.NewDB(d)
	s.DB = d
	s.Mock = mock
}

func (s *TestSuite) TestPingRoute() {
	router := setupRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
}

func (s *TestSuite) TestHealthRoute() {
	router := setupRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
	body, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), "ok", gjson.GetBytes(body, "status").String())
}

func (s *TestSuite) TestMaintenanceMode() {
	os.Setenv("MAINTENANCE_MODE", "true")
	defer os.Unsetenv("MAINTENANCE_MODE")

	router := setupRouter()
	router = maintenanceModeMiddleware(router)
	apiv1Group(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 503, w.Code)
}

func (s *TestSuite) TestWebhookRejectsUnsignedPayload() {
	router := setupRouter()
	stripeWebhookRoute(router)

	w := httptest.NewRecorder()
	payload := `{"type":"payment_intent.succeeded"}`
	req, _ := http.NewRequest("POST", "/api/v1/webhook/stripe", strings.NewReader(payload))
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 400, w.Code)
}

func (s *TestSuite) TestListBookings() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware)
	bookingHandlers(apiv1)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "status", "total_amount", "currency", "guest_id", "host_id", "created_at",
	}).
		AddRow(1, "confirmed", "1000.00", "AED", 3, 7, now).
		AddRow(2, "pending", "250.00", "AED", 4, 7, now)
	s.Mock.ExpectQuery(`SELECT \* FROM "bookings"`).WillReturnRows(rows)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/bookings", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
	body, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), int64(2), gjson.GetBytes(body, "count").Int())
	assert.Equal(s.T(), "confirmed", gjson.GetBytes(body, "data.0.status").String())
}

func (s *TestSuite) TestTransitionRejectsUnknownStatus() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware)
	bookingHandlers(apiv1)

	jbody := map[string]any{"status": "archived"}
	sbody, _ := json.Marshal(&jbody)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/bookings/1/transition", strings.NewReader(string(sbody)))
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 400, w.Code)
}

func (s *TestSuite) TestEmergencyOverrideRequiresJustification() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware)
	disputeHandlers(apiv1)

	jbody := map[string]any{"action": "force_cancel", "justification": "too short"}
	sbody, _ := json.Marshal(&jbody)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/bookings/1/emergency", strings.NewReader(string(sbody)))
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 400, w.Code)

	body, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	assert.NotEmpty(s.T(), gjson.GetBytes(body, "error").String())
}

func (s *TestSuite) TestRefundPreviewRejectsBadAmount() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware)
	bookingHandlers(apiv1)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/bookings/1/refund?amount=abc", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 400, w.Code)
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{settlement.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{settlement.ErrInvalidRateConfig, http.StatusUnprocessableEntity},
		{settlement.ErrRefundExceedsPaid, http.StatusUnprocessableEntity},
		{settlement.ErrConcurrentModification, http.StatusConflict},
		{settlement.ErrDisputeAlreadyOpen, http.StatusConflict},
		{settlement.ErrInsufficientPayoutBalance, http.StatusConflict},
		{settlement.ErrGatewayTimeout, http.StatusGatewayTimeout},
		{settlement.ErrGatewayRejected, http.StatusPaymentRequired},
		{gorm.ErrRecordNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("op failed: %w", c.err)
		assert.Equal(t, c.code, statusForError(wrapped), c.err.Error())
	}
}

func TestChargeRefundIDs(t *testing.T) {
	// Stripe omits the refunds list unless it is expanded
	var bare stripe.Charge
	assert.Nil(t, chargeRefundIDs(&bare))

	ch := stripe.Charge{
		Refunds: &stripe.RefundList{
			Data: []*stripe.Refund{{ID: "re_1"}, nil, {ID: "re_2"}},
		},
	}
	assert.Equal(t, []string{"re_1", "re_2"}, chargeRefundIDs(&ch))
}

func TestDecimalAmountsSurviveJSON(t *testing.T) {
	amount := decimal.RequireFromString("199.99")
	raw, err := json.Marshal(map[string]any{"amount": amount})
	assert.Nil(t, err)
	assert.Equal(t, "199.99", gjson.GetBytes(raw, "amount").String())
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}

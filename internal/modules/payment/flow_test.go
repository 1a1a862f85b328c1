package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"frontdesk/internal/database"
	"frontdesk/internal/domain"
	"frontdesk/internal/middleware"
	"frontdesk/internal/modules/actions"
	"frontdesk/internal/modules/billing"
	"frontdesk/internal/modules/bookingstate"
	"frontdesk/internal/modules/documents"
	"frontdesk/internal/modules/orchestrator"
	"frontdesk/internal/modules/payment"
	"frontdesk/internal/pkg/cardvault"
	jwtsvc "frontdesk/internal/pkg/jwt"
	"frontdesk/internal/repository"
)

// billingProvider is an in-memory stand-in for the provider's REST API.
type billingProvider struct {
	mu        sync.Mutex
	seq       int
	charges   map[string][]map[string]interface{}
	documents map[string][]map[string]interface{}
	declineAt string
	slow      time.Duration
}

func newBillingProvider(t *testing.T) (*billingProvider, *httptest.Server) {
	p := &billingProvider{
		charges:   make(map[string][]map[string]interface{}),
		documents: make(map[string][]map[string]interface{}),
	}
	srv := httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *billingProvider) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.URL.Path == "/v1/auth/login":
		reply(w, map[string]interface{}{"token": "tok-" + body["tenant"].(string), "expires_at": time.Now().Add(time.Hour)})
	case r.URL.Path == "/v1/charges" && r.Method == http.MethodGet:
		p.mu.Lock()
		defer p.mu.Unlock()
		reply(w, map[string]interface{}{"charges": p.charges[r.URL.Query().Get("reference")]})
	case r.URL.Path == "/v1/documents" && r.Method == http.MethodGet:
		p.mu.Lock()
		defer p.mu.Unlock()
		reply(w, map[string]interface{}{"documents": p.documents[r.URL.Query().Get("reference")]})
	case r.URL.Path == "/v1/charges":
		charge := p.charge(body)
		p.wait()
		reply(w, charge)
	case r.URL.Path == "/v1/charges/with-document":
		charge := p.charge(body)
		out := map[string]interface{}{"charge": charge}
		if charge["status"] == "approved" {
			doc := p.issue(body["reference"].(string), "invoice_receipt", body["amount"], "credit_card")
			out["document"] = map[string]interface{}{"status": "issued", "document": doc}
		}
		p.wait()
		reply(w, out)
	case r.URL.Path == "/v1/documents":
		method, _ := body["payment_method"].(string)
		reply(w, p.issue(body["reference"].(string), body["type"].(string), body["amount"], method))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *billingProvider) wait() {
	p.mu.Lock()
	d := p.slow
	p.mu.Unlock()
	time.Sleep(d)
}

func (p *billingProvider) charge(body map[string]interface{}) map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	ref := body["reference"].(string)
	out := map[string]interface{}{
		"transaction_id": fmt.Sprintf("tx-%d", p.seq),
		"status":         "approved",
		"amount":         body["amount"],
		"card_type":      "visa",
		"created_at":     time.Now().UTC(),
	}
	if p.declineAt == ref {
		out["status"] = "declined"
		out["error_code"] = "declined"
		out["error_message"] = "Insufficient funds"
	}
	p.charges[ref] = append(p.charges[ref], out)
	return out
}

func (p *billingProvider) issue(ref, docType string, amount interface{}, method string) map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	prefix := "INV"
	if docType == "invoice_receipt" {
		prefix = "IR"
	}
	doc := map[string]interface{}{
		"id":             fmt.Sprintf("doc-%d", p.seq),
		"number":         fmt.Sprintf("%s-%d", prefix, p.seq),
		"type":           docType,
		"reference":      ref,
		"amount":         amount,
		"payment_method": method,
		"created_at":     time.Now().UTC(),
	}
	p.documents[ref] = append(p.documents[ref], doc)
	return doc
}

func reply(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type flowSuite struct {
	provider *billingProvider
	db       *gorm.DB
	repo     *repository.BookingRepository
	router   *gin.Engine
	token    string
}

type apiResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func setupFlow(t *testing.T) *flowSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider, srv := newBillingProvider(t)

	dsn := fmt.Sprintf("file:flow_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Connect(dsn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	vault, err := cardvault.NewRandom()
	require.NoError(t, err)
	repo := repository.NewBookingRepository(db, vault)

	reg := prometheus.NewRegistry()
	client := billing.NewClient(billing.Config{BaseURL: srv.URL, Timeout: 300 * time.Millisecond}, zap.NewNop(), billing.NewMetrics(reg))
	sessions := billing.NewSessionManager(client, map[domain.Location]billing.Credentials{
		domain.LocationOrYehuda: {APIKey: "key", APISecret: "secret"},
	}, zap.NewNop())
	registry := documents.NewRegistry(documents.NewStore(db), zap.NewNop())
	selector := actions.NewSelector(registry)

	orch := orchestrator.New(orchestrator.Deps{
		Bookings:  repo,
		Gateway:   client,
		Sessions:  sessions,
		Documents: registry,
		Updater:   bookingstate.NewUpdater(repo, zap.NewNop()),
		Selector:  selector,
	}, orchestrator.Config{Currency: "ILS"}, zap.NewNop(), orchestrator.NewMetrics(reg))

	tokens := jwtsvc.New("flow-secret", time.Hour)
	token, err := tokens.GenerateToken(2, jwtsvc.RoleFrontDesk, string(domain.LocationOrYehuda))
	require.NoError(t, err)

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(tokens), middleware.RequireRole(jwtsvc.RoleFrontDesk, jwtsvc.RoleManager))
	payment.NewHandler(repo, registry, selector, orch, zap.NewNop()).RegisterRoutes(v1)

	return &flowSuite{provider: provider, db: db, repo: repo, router: r, token: token}
}

func (s *flowSuite) seedBooking(t *testing.T, price int64) int64 {
	t.Helper()
	b := &domain.Booking{
		Location:  domain.LocationOrYehuda,
		GuestName: "Dana Levi",
		CheckIn:   time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC),
		CheckOut:  time.Date(2026, 7, 3, 11, 0, 0, 0, time.UTC),
		Price:     decimal.NewFromInt(price),
	}
	require.NoError(t, s.repo.Create(context.Background(), b))
	require.NoError(t, s.repo.StoreCard(context.Background(), b.ID, domain.StoredCard{Number: "4580458045804580", Expiry: "12/29", CVV: "123"}))
	return b.ID
}

func (s *flowSuite) call(t *testing.T, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func (s *flowSuite) booking(t *testing.T, id int64) *domain.Booking {
	t.Helper()
	b, err := s.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestFlow_ChargeWithInvoiceReceiptThenDuplicateConfirmation(t *testing.T) {
	s := setupFlow(t)
	id := s.seedBooking(t, 500)
	base := fmt.Sprintf("/api/v1/bookings/%d", id)

	code, resp := s.call(t, http.MethodPost, base+"/actions", gin.H{"action": "charge_with_invoice_receipt"})
	require.Equal(t, http.StatusOK, code, resp.Error.Message)
	assert.Equal(t, "success", resp.Data["result"])

	b := s.booking(t, id)
	assert.Equal(t, domain.PaymentStatus("credit_or_yehuda"), b.PaymentStatus)
	assert.True(t, b.HasInvoiceReceipt)

	code, resp = s.call(t, http.MethodGet, base+"/documents", nil)
	require.Equal(t, http.StatusOK, code)
	docs := resp.Data["documents"].([]interface{})
	require.Len(t, docs, 1)
	first := docs[0].(map[string]interface{})
	assert.Equal(t, "invoice_receipt", first["type"])

	code, resp = s.call(t, http.MethodPost, base+"/actions", gin.H{"action": "invoice_receipt", "payment_method": "cash"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "RESULT_NOT_DISMISSED", resp.Error.Code)

	code, _ = s.call(t, http.MethodPost, base+"/actions/dismiss", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = s.call(t, http.MethodPost, base+"/actions", gin.H{"action": "invoice_receipt", "payment_method": "cash"})
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", resp.Error.Code)

	code, resp = s.call(t, http.MethodPost, base+"/actions", gin.H{
		"action":                 "invoice_receipt",
		"payment_method":         "cash",
		"acknowledged_documents": []string{first["document_number"].(string)},
	})
	require.Equal(t, http.StatusOK, code, resp.Error.Message)

	code, resp = s.call(t, http.MethodGet, base+"/documents", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data["documents"], 2)
	assert.Len(t, s.provider.charges[domain.BookingReference(id)], 1, "issuing a document never charges")
}

func TestFlow_DeclinedChargeLeavesBookingUntouched(t *testing.T) {
	s := setupFlow(t)
	id := s.seedBooking(t, 500)
	s.provider.declineAt = domain.BookingReference(id)

	code, resp := s.call(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/actions", id), gin.H{"action": "charge_with_invoice_receipt"})

	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "PAYMENT_DECLINED", resp.Error.Code)

	b := s.booking(t, id)
	assert.Equal(t, domain.PaymentUnpaid, b.PaymentStatus)
	assert.False(t, b.HasInvoiceReceipt)

	var count int64
	require.NoError(t, s.db.Model(&domain.FinancialDocument{}).Where("booking_id = ?", id).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFlow_LostResponseIsReconciled(t *testing.T) {
	s := setupFlow(t)
	id := s.seedBooking(t, 500)
	base := fmt.Sprintf("/api/v1/bookings/%d", id)
	s.provider.slow = time.Second

	code, resp := s.call(t, http.MethodPost, base+"/actions", gin.H{"action": "charge_only"})
	require.Equal(t, http.StatusGatewayTimeout, code)
	assert.Equal(t, "OUTCOME_UNKNOWN", resp.Error.Code)
	assert.Equal(t, true, resp.Error.Details["reconcile_required"])
	assert.Equal(t, domain.PaymentUnpaid, s.booking(t, id).PaymentStatus)

	s.provider.mu.Lock()
	s.provider.slow = 0
	s.provider.mu.Unlock()

	code, _ = s.call(t, http.MethodPost, base+"/actions/dismiss", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = s.call(t, http.MethodPost, base+"/reconcile", nil)
	require.Equal(t, http.StatusOK, code, resp.Error.Message)
	assert.Equal(t, true, resp.Data["payment_status_applied"])
	assert.Equal(t, domain.PaymentStatus("credit_or_yehuda"), s.booking(t, id).PaymentStatus)
}

func TestFlow_RejectsOtherLocationsToken(t *testing.T) {
	s := setupFlow(t)
	id := s.seedBooking(t, 500)

	tokens := jwtsvc.New("flow-secret", time.Hour)
	token, err := tokens.GenerateToken(9, jwtsvc.RoleFrontDesk, string(domain.LocationRothschild))
	require.NoError(t, err)
	s.token = token

	code, resp := s.call(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/actions", id), gin.H{"action": "charge_only"})

	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
	assert.Empty(t, s.provider.charges)
}

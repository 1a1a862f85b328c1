package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"frontdesk/internal/domain"
)

const (
	opLogin              = "login"
	opCharge             = "charge"
	opCreateDocument     = "create_document"
	opChargeWithDocument = "charge_with_document"
	opListDocuments      = "list_documents"
	opListCharges        = "list_charges"

	maxResponseBytes = 1 << 20
)

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Currency      string
}

// Client talks to the billing and invoicing provider. It never retries a
// request on its own.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *Metrics
	now        func() time.Time
}

func NewClient(cfg Config, logger *zap.Logger, metrics *Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "ILS"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = int(cfg.RatePerSecond) + 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.Named("billing_client"),
		metrics:    metrics,
		now:        time.Now,
	}
}

type ChargeOption func(*chargeOptions)

type chargeOptions struct {
	idempotencyKey string
}

// WithIdempotencyKey pins the key sent with the charge so the caller can look
// the charge up later.
func WithIdempotencyKey(key string) ChargeOption {
	return func(o *chargeOptions) { o.idempotencyKey = key }
}

func (c *Client) Authenticate(ctx context.Context, loc domain.Location, creds Credentials) (*Session, error) {
	if creds.Empty() {
		return nil, &domain.AuthError{Location: loc, Message: "missing credentials"}
	}
	in := loginRequest{Tenant: string(loc), APIKey: creds.APIKey, APISecret: creds.APISecret}
	var out loginResponse
	if err := c.do(ctx, opLogin, loc, http.MethodPost, "/v1/auth/login", "", nil, in, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &domain.AuthError{Location: loc, Message: "provider returned an empty token"}
	}
	return &Session{Location: loc, Token: out.Token, ExpiresAt: out.ExpiresAt}, nil
}

// ChargeCard charges the booking's stored card. Card data is checked locally
// first; a GatewayError is final and must not be resubmitted automatically.
func (c *Client) ChargeCard(ctx context.Context, s *Session, ref BookingRef, amount decimal.Decimal, opts ...ChargeOption) (*ChargeResult, error) {
	if err := checkSession(s, ref); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if err := ValidateCard(ref.Card); err != nil {
		return nil, err
	}
	o := newChargeOptions(opts)

	in := c.chargeRequest(ref, amount)
	var out chargeResponse
	err := c.do(ctx, opCharge, ref.Location, http.MethodPost, "/v1/charges", s.Token, idempotencyHeader(o.idempotencyKey), in, &out)
	if err != nil {
		c.logger.Warn("charge failed",
			zap.Int64("booking_id", ref.BookingID),
			zap.String("card", ref.Card.Masked()),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err),
		)
		return nil, err
	}
	if err := chargeStatusError(opCharge, out); err != nil {
		return nil, err
	}

	res := chargeResultFrom(out, amount, o.idempotencyKey)
	c.logger.Info("charge approved",
		zap.Int64("booking_id", ref.BookingID),
		zap.String("card", ref.Card.Masked()),
		zap.String("amount", res.Amount.StringFixed(2)),
		zap.String("transaction_id", res.TransactionID),
	)
	return &res, nil
}

// CreateDocument issues an invoice or invoice-receipt. Every call creates a
// new document; duplicate prevention is the caller's job.
func (c *Client) CreateDocument(ctx context.Context, s *Session, ref BookingRef, docType domain.DocumentType, amount decimal.Decimal, method domain.PaymentMethod) (*DocumentResult, error) {
	if err := checkSession(s, ref); err != nil {
		return nil, err
	}
	if !docType.Financial() {
		return nil, domain.NewValidationError("type", fmt.Sprintf("document type %q cannot be issued by the provider", docType))
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	in := documentRequest{
		Reference: ref.Reference(),
		Type:      string(docType),
		Amount:    amount,
		Currency:  c.cfg.Currency,
		Customer:  customerPayload{Name: ref.GuestName},
	}
	if docType == domain.DocumentInvoiceReceipt {
		if !method.Valid() {
			return nil, domain.NewValidationError("payment_method", "payment method is required for an invoice receipt")
		}
		in.PaymentMethod = string(method)
	}

	var out documentResponse
	if err := c.do(ctx, opCreateDocument, ref.Location, http.MethodPost, "/v1/documents", s.Token, nil, in, &out); err != nil {
		c.logger.Warn("create document failed",
			zap.Int64("booking_id", ref.BookingID),
			zap.String("type", string(docType)),
			zap.Error(err),
		)
		return nil, err
	}
	doc := toFinancialDocument(out, ref)
	c.logger.Info("document issued",
		zap.Int64("booking_id", ref.BookingID),
		zap.String("type", string(doc.Type)),
		zap.String("number", doc.DocumentNumber),
	)
	return &DocumentResult{Outcome: domain.OutcomeSucceeded, Type: doc.Type, Document: doc}, nil
}

// ChargeCardWithDocument charges the card and, only when the charge is
// approved, lets the provider issue an invoice-receipt in the same
// transaction. A declined charge is returned as an error; a failed document
// after an approved charge is reported inside the result.
func (c *Client) ChargeCardWithDocument(ctx context.Context, s *Session, ref BookingRef, amount decimal.Decimal, opts ...ChargeOption) (*CombinedResult, error) {
	if err := checkSession(s, ref); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if err := ValidateCard(ref.Card); err != nil {
		return nil, err
	}
	o := newChargeOptions(opts)

	in := chargeWithDocumentRequest{
		chargeRequest: c.chargeRequest(ref, amount),
		Document: documentSpec{
			Type:          string(domain.DocumentInvoiceReceipt),
			PaymentMethod: string(domain.MethodCreditCard),
		},
	}
	var out chargeWithDocumentResponse
	err := c.do(ctx, opChargeWithDocument, ref.Location, http.MethodPost, "/v1/charges/with-document", s.Token, idempotencyHeader(o.idempotencyKey), in, &out)
	if err != nil {
		c.logger.Warn("charge with document failed",
			zap.Int64("booking_id", ref.BookingID),
			zap.String("card", ref.Card.Masked()),
			zap.Error(err),
		)
		return nil, err
	}
	if err := chargeStatusError(opChargeWithDocument, out.Charge); err != nil {
		return nil, err
	}

	res := &CombinedResult{Charge: chargeResultFrom(out.Charge, amount, o.idempotencyKey)}
	switch {
	case out.Document == nil:
		res.Document = FailedDocument(domain.DocumentInvoiceReceipt, &domain.UnavailableError{
			Op:  opChargeWithDocument,
			Err: errors.New("provider did not report the document outcome"),
		})
	case out.Document.Status == documentIssued && out.Document.Document != nil:
		doc := toFinancialDocument(*out.Document.Document, ref)
		res.Document = DocumentResult{Outcome: domain.OutcomeSucceeded, Type: doc.Type, Document: doc}
	default:
		code := out.Document.ErrorCode
		if code == "" {
			code = "document_failed"
		}
		res.Document = FailedDocument(domain.DocumentInvoiceReceipt, &domain.GatewayError{
			Code:    code,
			Message: out.Document.ErrorMessage,
		})
	}

	c.logger.Info("charge with document settled",
		zap.Int64("booking_id", ref.BookingID),
		zap.String("transaction_id", res.Charge.TransactionID),
		zap.String("document_outcome", string(res.Document.Outcome)),
	)
	return res, nil
}

// ListDocuments returns the provider's documents filed under reference.
func (c *Client) ListDocuments(ctx context.Context, s *Session, ref BookingRef) ([]domain.FinancialDocument, error) {
	if err := checkSession(s, ref); err != nil {
		return nil, err
	}
	var out documentsResponse
	path := "/v1/documents?reference=" + url.QueryEscape(ref.Reference())
	if err := c.do(ctx, opListDocuments, ref.Location, http.MethodGet, path, s.Token, nil, nil, &out); err != nil {
		return nil, err
	}
	docs := make([]domain.FinancialDocument, 0, len(out.Documents))
	for _, d := range out.Documents {
		docs = append(docs, *toFinancialDocument(d, ref))
	}
	return docs, nil
}

// ListCharges returns the provider's charges filed under reference.
func (c *Client) ListCharges(ctx context.Context, s *Session, ref BookingRef) ([]ChargeRecord, error) {
	if err := checkSession(s, ref); err != nil {
		return nil, err
	}
	var out chargesResponse
	path := "/v1/charges?reference=" + url.QueryEscape(ref.Reference())
	if err := c.do(ctx, opListCharges, ref.Location, http.MethodGet, path, s.Token, nil, nil, &out); err != nil {
		return nil, err
	}
	records := make([]ChargeRecord, 0, len(out.Charges))
	for _, ch := range out.Charges {
		records = append(records, ChargeRecord{
			TransactionID:  ch.TransactionID,
			Succeeded:      ch.Status == chargeApproved,
			Amount:         ch.Amount,
			CardType:       ch.CardType,
			IdempotencyKey: ch.IdempotencyKey,
			CreatedAt:      ch.CreatedAt,
		})
	}
	return records, nil
}

func (c *Client) do(ctx context.Context, op string, loc domain.Location, method, path, token string, headers map[string]string, in, out interface{}) error {
	// Nothing has been sent yet, so this is not an unknown outcome.
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "Failed marshal")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "Failed new request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(op, 0, c.now().Sub(start))
		return &domain.UnavailableError{Op: op, Err: errors.Wrap(err, "Failed do request")}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.observe(op, resp.StatusCode, c.now().Sub(start))
	if err != nil {
		return &domain.UnavailableError{Op: op, Err: errors.Wrap(err, "Failed read all body")}
	}

	if err := classifyStatus(loc, resp.StatusCode, raw); err != nil {
		if domain.IsUnavailable(err) {
			err.(*domain.UnavailableError).Op = op
		}
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// The provider accepted the request but the answer is unreadable, so
		// whatever it did is unknown to us.
		return &domain.UnavailableError{Op: op, Err: errors.Wrap(err, "Failed unmarshal")}
	}
	return nil
}

func classifyStatus(loc domain.Location, status int, raw []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var env errorEnvelope
	_ = json.Unmarshal(raw, &env)
	message := env.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.AuthError{Location: loc, Message: message}
	case status == http.StatusRequestTimeout || status >= http.StatusInternalServerError:
		// A server error may come after the provider already applied the request.
		return &domain.UnavailableError{Err: fmt.Errorf("status %d: %s", status, message)}
	}
	code := env.Error.Code
	if code == "" {
		code = fmt.Sprintf("http_%d", status)
	}
	return &domain.GatewayError{Code: code, Message: message, Status: status}
}

func (c *Client) chargeRequest(ref BookingRef, amount decimal.Decimal) chargeRequest {
	return chargeRequest{
		Reference:   ref.Reference(),
		Amount:      amount,
		Currency:    c.cfg.Currency,
		Description: fmt.Sprintf("Booking #%d", ref.BookingID),
		Card: cardPayload{
			Number: NormalizeCardNumber(ref.Card.Number),
			Expiry: wireExpiry(ref.Card.Expiry),
			CVV:    strings.TrimSpace(ref.Card.CVV),
		},
		Customer: customerPayload{Name: ref.GuestName},
	}
}

func newChargeOptions(opts []ChargeOption) chargeOptions {
	var o chargeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.idempotencyKey == "" {
		o.idempotencyKey = uuid.NewString()
	}
	return o
}

func idempotencyHeader(key string) map[string]string {
	return map[string]string{"Idempotency-Key": key}
}

func checkSession(s *Session, ref BookingRef) error {
	if s == nil || s.Token == "" {
		return &domain.AuthError{Location: ref.Location, Message: "no active session"}
	}
	if s.Location != ref.Location {
		return domain.NewValidationError("location", fmt.Sprintf("session for %s cannot act on a %s booking", s.Location, ref.Location))
	}
	return nil
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.NewValidationError("amount", "amount must be greater than zero")
	}
	return nil
}

// chargeStatusError reads the charge status of a 2xx answer. Only an explicit
// decline is final; an empty or unrecognised status leaves the outcome unknown.
func chargeStatusError(op string, out chargeResponse) error {
	switch out.Status {
	case chargeApproved:
		return nil
	case chargeDeclined:
		return declineError(out)
	}
	return &domain.UnavailableError{Op: op, Err: fmt.Errorf("unrecognised charge status %q", out.Status)}
}

func declineError(out chargeResponse) error {
	code := out.ErrorCode
	if code == "" {
		code = "declined"
	}
	message := out.ErrorMessage
	if message == "" {
		message = "charge was declined"
	}
	return &domain.GatewayError{Code: code, Message: message, Status: http.StatusPaymentRequired}
}

func chargeResultFrom(out chargeResponse, requested decimal.Decimal, idempotencyKey string) ChargeResult {
	amount := out.Amount
	if amount.IsZero() {
		amount = requested
	}
	return ChargeResult{
		Outcome:        domain.OutcomeSucceeded,
		Amount:         amount,
		TransactionID:  out.TransactionID,
		CardType:       out.CardType,
		IdempotencyKey: idempotencyKey,
	}
}

func toFinancialDocument(d documentResponse, ref BookingRef) *domain.FinancialDocument {
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &domain.FinancialDocument{
		BookingID:      ref.BookingID,
		Location:       ref.Location,
		Type:           domain.DocumentType(d.Type),
		DocumentNumber: d.Number,
		ProviderID:     d.ID,
		Amount:         d.Amount,
		PaymentMethod:  domain.PaymentMethod(d.PaymentMethod),
		URL:            d.URL,
		CreatedAt:      created,
	}
}

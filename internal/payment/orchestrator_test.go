package payment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/notifier"
	"github.com/datquang03/studio-booking-engine/internal/payment"
	"github.com/datquang03/studio-booking-engine/internal/repository"
	"github.com/datquang03/studio-booking-engine/pkg/clock"
	"github.com/datquang03/studio-booking-engine/pkg/events"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

// fakeGateway stands in for the external gateway: CreateLink hands back a
// deterministic checkout session, VerifySignature accepts the sentinel
// "valid" signature and rejects everything else.
type fakeGateway struct {
	linkCount int
}

func (g *fakeGateway) CreateLink(req payment.CreateLinkRequest) (*payment.CreateLinkResult, error) {
	g.linkCount++
	return &payment.CreateLinkResult{
		CheckoutURL:   fmt.Sprintf("https://pay.example/%d", g.linkCount),
		QRCode:        fmt.Sprintf("qr-data-%d", g.linkCount),
		PaymentLinkID: fmt.Sprintf("link-%d", g.linkCount),
	}, nil
}

func (g *fakeGateway) VerifySignature(body []byte, signature string) bool {
	return signature == "valid"
}

type autoConfirmCall struct {
	bookingID      string
	cumulativePaid int64
}

// fakeBookingConfirmer satisfies payment.BookingConfirmer without pulling in
// internal/booking, keeping this a pure Payment Orchestrator test.
type fakeBookingConfirmer struct {
	finalAmount int64
	status      string
	ownerRef    string

	autoConfirmCalls []autoConfirmCall
}

func (f *fakeBookingConfirmer) BookingPaymentInfo(ctx context.Context, bookingID string) (int64, string, string, error) {
	return f.finalAmount, f.status, f.ownerRef, nil
}

func (f *fakeBookingConfirmer) MaybeAutoConfirm(ctx context.Context, bookingID string, cumulativePaid int64) error {
	f.autoConfirmCalls = append(f.autoConfirmCalls, autoConfirmCall{bookingID: bookingID, cumulativePaid: cumulativePaid})
	return nil
}

type OrchestratorTestSuite struct {
	suite.Suite
	DB        *gorm.DB
	Gateway   *fakeGateway
	Confirmer *fakeBookingConfirmer
	Clock     *clock.Frozen
}

func (s *OrchestratorTestSuite) SetupSuite() {
	dsn := "host=localhost user=postgres password=postgres dbname=studio_booking_test port=5432 sslmode=disable"
	if envURL := os.Getenv("TEST_DATABASE_URL"); envURL != "" {
		dsn = envURL
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		s.T().Fatalf("failed to connect to postgres: %v", err)
	}
	s.DB = db

	assert.NoError(s.T(), s.DB.AutoMigrate(&models.Payment{}))
}

func (s *OrchestratorTestSuite) TearDownSuite() {
	sqlDB, _ := s.DB.DB()
	sqlDB.Close()
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.DB.Exec("DELETE FROM payments")
	s.Gateway = &fakeGateway{}
	s.Confirmer = &fakeBookingConfirmer{finalAmount: 200000, status: string(models.BookingStatusPending), ownerRef: "cust-1"}
	s.Clock = clock.NewFrozen(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
}

func (s *OrchestratorTestSuite) newOrchestrator(allowInvalidSignature200 bool) *payment.Orchestrator {
	log := logger.New("debug")
	paymentRepo := repository.NewPaymentRepository(s.DB)
	notif := notifier.New(events.NewNullPublisher(log), nil, log)
	return payment.NewOrchestrator(paymentRepo, s.Gateway, s.Confirmer, notif, s.Clock, log, allowInvalidSignature200)
}

func webhookBody(code, paymentLinkID string, amount int64) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"code": code,
		"desc": "success",
		"data": map[string]interface{}{
			"orderCode":     1,
			"paymentLinkId": paymentLinkID,
			"amount":        amount,
			"description":   "Studio booking payment",
		},
	})
	return body
}

// TestDepositThenRemainder covers the two-stage payment flow: a 30% deposit
// session, confirmed via webhook, followed by a remainder session for the
// rest of final_amount, also confirmed via webhook.
func (s *OrchestratorTestSuite) TestDepositThenRemainder() {
	ctx := context.Background()
	o := s.newOrchestrator(false)
	bookingID := "booking-1"

	deposit, err := o.CreateSession(ctx, bookingID, "cust-1", models.PaymentKindDeposit, 60000)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "https://pay.example/1", deposit.CheckoutURL)

	depositPayment, err := o.GetStatus(ctx, deposit.PaymentID)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.PaymentStatusPending, depositPayment.Status)

	outcome, err := o.HandleWebhook(ctx, webhookBody("00", depositPayment.TransactionID, 60000), "valid")
	assert.NoError(s.T(), err)
	assert.True(s.T(), outcome.Handled)
	assert.Equal(s.T(), deposit.PaymentID, outcome.PaymentID)

	depositPayment, err = o.GetStatus(ctx, deposit.PaymentID)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.PaymentStatusPaid, depositPayment.Status)

	assert.Len(s.T(), s.Confirmer.autoConfirmCalls, 1)
	assert.Equal(s.T(), int64(60000), s.Confirmer.autoConfirmCalls[0].cumulativePaid)

	remainder, err := o.CreateRemainder(ctx, bookingID)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "https://pay.example/2", remainder.CheckoutURL)

	remainderPayment, err := o.GetStatus(ctx, remainder.PaymentID)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(140000), remainderPayment.Amount)

	outcome, err = o.HandleWebhook(ctx, webhookBody("00", remainderPayment.TransactionID, 140000), "valid")
	assert.NoError(s.T(), err)
	assert.True(s.T(), outcome.Handled)

	assert.Len(s.T(), s.Confirmer.autoConfirmCalls, 2)
	assert.Equal(s.T(), int64(200000), s.Confirmer.autoConfirmCalls[1].cumulativePaid)

	// Fully paid: a further remainder request is rejected.
	_, err = o.CreateRemainder(ctx, bookingID)
	assert.Error(s.T(), err)
}

// TestDuplicateWebhookIsIdempotent covers a replayed gateway delivery:
// the second delivery of the same paymentLinkId must not re-confirm or
// double-count the payment.
func (s *OrchestratorTestSuite) TestDuplicateWebhookIsIdempotent() {
	ctx := context.Background()
	o := s.newOrchestrator(false)
	bookingID := "booking-2"

	session, err := o.CreateSession(ctx, bookingID, "cust-1", models.PaymentKindFull, 200000)
	assert.NoError(s.T(), err)

	p, err := o.GetStatus(ctx, session.PaymentID)
	assert.NoError(s.T(), err)

	body := webhookBody("00", p.TransactionID, 200000)

	first, err := o.HandleWebhook(ctx, body, "valid")
	assert.NoError(s.T(), err)
	assert.True(s.T(), first.Handled)

	second, err := o.HandleWebhook(ctx, body, "valid")
	assert.NoError(s.T(), err)
	assert.True(s.T(), second.Handled)

	// Only the first delivery should have driven auto-confirm.
	assert.Len(s.T(), s.Confirmer.autoConfirmCalls, 1)
}

// TestHandleWebhook_InvalidSignature covers both reconciliation policies for
// a bad signature: reject outright, or no-op with a 200-equivalent outcome.
func (s *OrchestratorTestSuite) TestHandleWebhook_InvalidSignature() {
	ctx := context.Background()
	body := webhookBody("00", "whatever", 100000)

	strict := s.newOrchestrator(false)
	_, err := strict.HandleWebhook(ctx, body, "bogus")
	assert.Error(s.T(), err)

	lenient := s.newOrchestrator(true)
	outcome, err := lenient.HandleWebhook(ctx, body, "bogus")
	assert.NoError(s.T(), err)
	assert.False(s.T(), outcome.Handled)
}

// TestSweepExpired covers the background expiry sweep transitioning a
// lapsed pending session to expired.
func (s *OrchestratorTestSuite) TestSweepExpired() {
	ctx := context.Background()
	o := s.newOrchestrator(false)
	bookingID := "booking-3"

	session, err := o.CreateSession(ctx, bookingID, "cust-1", models.PaymentKindDeposit, 60000)
	assert.NoError(s.T(), err)

	// Jump the clock past the session's hold window and sweep.
	s.Clock.Advance(20 * time.Minute)
	n, err := o.SweepExpired(ctx)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), n)

	p, err := o.GetStatus(ctx, session.PaymentID)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.PaymentStatusExpired, p.Status)
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

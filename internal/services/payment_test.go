package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/models"
	"github.com/diewo77/receivables/internal/processor"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// sqlite's shared-cache locking does not tolerate concurrent
	// writers; one connection keeps the concurrency tests about our
	// own serialization, not sqlite's.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Invoice{}, &models.Payment{},
		&models.Counter{}, &models.WebhookEvent{}, &models.DemoBooking{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seedParties creates a finance manager and a customer.
func seedParties(t *testing.T, db *gorm.DB) (manager, customer models.User) {
	t.Helper()
	manager = models.User{Email: "fm@test.co", Name: "Fin Manager", Password: "x", Role: models.RoleFinanceManager}
	if err := db.Create(&manager).Error; err != nil {
		t.Fatalf("manager: %v", err)
	}
	customer = models.User{Email: "cust@test.co", Name: "Cust Omer", Password: "x", Role: models.RoleCustomer}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("customer: %v", err)
	}
	return
}

func seedInvoice(t *testing.T, db *gorm.DB, customerID, issuerID uint, amount float64) models.Invoice {
	t.Helper()
	inv := models.Invoice{
		InvoiceNumber: fmt.Sprintf("INV-%06d", time.Now().UnixNano()%1000000),
		CustomerID:    customerID,
		CreatedByID:   issuerID,
		Amount:        amount,
		DueDate:       time.Now().Add(30 * 24 * time.Hour),
		Status:        models.InvoiceStatusPending,
	}
	if err := db.Create(&inv).Error; err != nil {
		t.Fatalf("invoice: %v", err)
	}
	return inv
}

func newPaymentService(db *gorm.DB) *PaymentService {
	return NewPaymentService(db, zap.NewNop(), nil, "inr")
}

func reloadInvoice(t *testing.T, db *gorm.DB, id uint) models.Invoice {
	t.Helper()
	var inv models.Invoice
	if err := db.First(&inv, id).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	return inv
}

func TestRecordFullPaymentMarksInvoicePaid(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	inv := seedInvoice(t, db, customer.ID, manager.ID, 1500)
	svc := newPaymentService(db)

	p, err := svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 1500, PaymentMethod: "online",
	}, &customer)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if p.Status != models.PaymentStatusCompleted {
		t.Errorf("payment status = %s", p.Status)
	}
	if p.TransactionID == "" {
		t.Error("expected generated transaction id")
	}
	if got := reloadInvoice(t, db, inv.ID).Status; got != models.InvoiceStatusPaid {
		t.Errorf("invoice status = %s, want PAID", got)
	}

	// Second payment on a PAID invoice must fail.
	_, err = svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 100, PaymentMethod: "online",
	}, &customer)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("expected ErrAlreadyPaid, got %v", err)
	}
}

func TestRecordZeroAmountPaysOutstanding(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	inv := seedInvoice(t, db, customer.ID, manager.ID, 900)
	svc := newPaymentService(db)

	p, err := svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 0, PaymentMethod: "online",
	}, &customer)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if p.Amount != 900 {
		t.Errorf("payment amount = %v, want full 900", p.Amount)
	}
	if got := reloadInvoice(t, db, inv.ID).Status; got != models.InvoiceStatusPaid {
		t.Errorf("invoice status = %s, want PAID", got)
	}
}

func TestRecordRejectsOverpayment(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	inv := seedInvoice(t, db, customer.ID, manager.ID, 500)
	svc := newPaymentService(db)

	_, err := svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 500.01, PaymentMethod: "online",
	}, &customer)
	if !errors.Is(err, ErrAmountExceedsInvoice) {
		t.Fatalf("expected ErrAmountExceedsInvoice, got %v", err)
	}

	var count int64
	db.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected no payment rows, got %d", count)
	}
}

// Partial payments are checked against the running balance: once 300
// of 500 is paid, a second 300 is an overpayment.
func TestRecordRejectsJointOverpayment(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	inv := seedInvoice(t, db, customer.ID, manager.ID, 500)
	svc := newPaymentService(db)

	if _, err := svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 300, PaymentMethod: "online",
	}, &customer); err != nil {
		t.Fatalf("first partial: %v", err)
	}
	if got := reloadInvoice(t, db, inv.ID).Status; got != models.InvoiceStatusPending {
		t.Errorf("invoice status after partial = %s, want PENDING", got)
	}

	_, err := svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 300, PaymentMethod: "online",
	}, &customer)
	if !errors.Is(err, ErrAmountExceedsInvoice) {
		t.Fatalf("expected ErrAmountExceedsInvoice, got %v", err)
	}

	// The exact remainder settles the invoice.
	if _, err := svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 200, PaymentMethod: "online",
	}, &customer); err != nil {
		t.Fatalf("remainder: %v", err)
	}
	if got := reloadInvoice(t, db, inv.ID).Status; got != models.InvoiceStatusPaid {
		t.Errorf("invoice status = %s, want PAID", got)
	}
}

// Back-to-back payments without client-supplied transaction ids land
// within the same millisecond; the generated ids must still satisfy
// the unique transaction_id constraint.
func TestRecordGeneratedTransactionIDsAreUnique(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	inv := seedInvoice(t, db, customer.ID, manager.ID, 1000)
	svc := newPaymentService(db)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		p, err := svc.Record(context.Background(), RecordPaymentInput{
			InvoiceID: inv.ID, Amount: 100, PaymentMethod: "online",
		}, &customer)
		if err != nil {
			t.Fatalf("payment %d: %v", i, err)
		}
		if seen[p.TransactionID] {
			t.Fatalf("payment %d: transaction id %s already used", i, p.TransactionID)
		}
		seen[p.TransactionID] = true
	}
	if got := reloadInvoice(t, db, inv.ID).Status; got != models.InvoiceStatusPaid {
		t.Errorf("invoice status = %s, want PAID after ten tenths", got)
	}
}

func TestRecordAuthorization(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	other := models.User{Email: "other@test.co", Name: "Other One", Password: "x", Role: models.RoleCustomer}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("other: %v", err)
	}
	inv := seedInvoice(t, db, customer.ID, manager.ID, 100)
	svc := newPaymentService(db)

	_, err := svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 100, PaymentMethod: "online",
	}, &other)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("foreign customer: expected ErrUnauthorized, got %v", err)
	}

	// Finance managers may record payments on any invoice.
	if _, err := svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 100, PaymentMethod: "bank_transfer",
	}, &manager); err != nil {
		t.Errorf("manager record: %v", err)
	}
}

func TestRecordUnknownInvoice(t *testing.T) {
	db := setupTestDB(t)
	_, customer := seedParties(t, db)
	svc := newPaymentService(db)

	_, err := svc.Record(context.Background(), RecordPaymentInput{
		InvoiceID: 9999, Amount: 10, PaymentMethod: "online",
	}, &customer)
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("expected ErrInvoiceNotFound, got %v", err)
	}
}

// Two concurrent half payments: both rows persist, the invoice ends
// PAID exactly once, and no interleaving loses the transition.
func TestRecordConcurrentHalves(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	inv := seedInvoice(t, db, customer.ID, manager.ID, 1000)
	svc := newPaymentService(db)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Record(context.Background(), RecordPaymentInput{
				InvoiceID: inv.ID, Amount: 500, PaymentMethod: "online",
				TransactionID: fmt.Sprintf("TXN-CONC-%d", i),
			}, &customer)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("payment %d: %v", i, err)
		}
	}
	var count int64
	db.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&count)
	if count != 2 {
		t.Errorf("payment rows = %d, want 2", count)
	}
	if got := reloadInvoice(t, db, inv.ID).Status; got != models.InvoiceStatusPaid {
		t.Errorf("invoice status = %s, want PAID", got)
	}
}

func succeededEvent(eventID, txnID string, amountMinor int64, invoiceID, customerID uint) *processor.Event {
	ev := &processor.Event{ID: eventID, Type: processor.EventPaymentSucceeded}
	ev.Data.Object = processor.IntentObject{
		ID:     txnID,
		Amount: amountMinor,
		Metadata: map[string]string{
			"invoiceId":  fmt.Sprintf("%d", invoiceID),
			"customerId": fmt.Sprintf("%d", customerID),
		},
	}
	return ev
}

func TestApplyProcessorConfirmationSucceeded(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	inv := seedInvoice(t, db, customer.ID, manager.ID, 42.50)
	svc := newPaymentService(db)

	ev := succeededEvent("evt_1", "pi_123", 4250, inv.ID, customer.ID)
	if err := svc.ApplyProcessorConfirmation(context.Background(), ev); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := reloadInvoice(t, db, inv.ID).Status; got != models.InvoiceStatusPaid {
		t.Errorf("invoice status = %s, want PAID", got)
	}
	var p models.Payment
	if err := db.Where("transaction_id = ?", "pi_123").First(&p).Error; err != nil {
		t.Fatalf("payment row: %v", err)
	}
	if p.Amount != 42.50 {
		t.Errorf("amount = %v, want 42.50 (minor units converted)", p.Amount)
	}
	if p.Status != models.PaymentStatusCompleted {
		t.Errorf("status = %s", p.Status)
	}

	// Redelivery of the same confirmation must not duplicate anything.
	if err := svc.ApplyProcessorConfirmation(context.Background(), ev); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	var count int64
	db.Model(&models.Payment{}).Where("transaction_id = ?", "pi_123").Count(&count)
	if count != 1 {
		t.Errorf("payment rows for pi_123 = %d, want 1", count)
	}
}

func TestApplyProcessorConfirmationMissingInvoiceMetadata(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	svc := newPaymentService(db)

	ev := &processor.Event{ID: "evt_2", Type: processor.EventPaymentSucceeded}
	ev.Data.Object = processor.IntentObject{ID: "pi_meta", Amount: 100, Metadata: map[string]string{}}

	if err := svc.ApplyProcessorConfirmation(context.Background(), ev); err != nil {
		t.Fatalf("expected drop-with-warning, got %v", err)
	}
	var count int64
	db.Model(&models.Payment{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no payment rows, got %d", count)
	}
}

func TestApplyProcessorConfirmationFailed(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	inv := seedInvoice(t, db, customer.ID, manager.ID, 75)
	svc := newPaymentService(db)

	ev := &processor.Event{ID: "evt_3", Type: processor.EventPaymentFailed}
	ev.Data.Object = processor.IntentObject{
		ID: "pi_fail", Amount: 7500,
		Metadata: map[string]string{
			"invoiceId":  fmt.Sprintf("%d", inv.ID),
			"customerId": fmt.Sprintf("%d", customer.ID),
		},
	}
	if err := svc.ApplyProcessorConfirmation(context.Background(), ev); err != nil {
		t.Fatalf("apply failed event: %v", err)
	}

	if got := reloadInvoice(t, db, inv.ID).Status; got != models.InvoiceStatusPending {
		t.Errorf("invoice status = %s, want PENDING untouched", got)
	}
	var p models.Payment
	if err := db.Where("transaction_id = ?", "pi_fail").First(&p).Error; err != nil {
		t.Fatalf("payment row: %v", err)
	}
	if p.Status != models.PaymentStatusFailed {
		t.Errorf("status = %s, want FAILED", p.Status)
	}
}

func TestApplyProcessorConfirmationUnknownType(t *testing.T) {
	db := setupTestDB(t)
	svc := newPaymentService(db)

	ev := &processor.Event{ID: "evt_4", Type: "charge.refund.updated"}
	if err := svc.ApplyProcessorConfirmation(context.Background(), ev); err != nil {
		t.Errorf("unknown type should be ignored, got %v", err)
	}
}

type intentStub struct {
	gotAmount   int64
	gotCurrency string
	gotMetadata map[string]string
}

func (s *intentStub) CreateIntent(_ context.Context, amount int64, currency, _ string, metadata map[string]string) (*processor.Intent, error) {
	s.gotAmount = amount
	s.gotCurrency = currency
	s.gotMetadata = metadata
	return &processor.Intent{ID: "pi_stub", ClientSecret: "pi_stub_secret", Amount: amount, Currency: currency}, nil
}

func TestCreateIntent(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	inv := seedInvoice(t, db, customer.ID, manager.ID, 1200)
	stub := &intentStub{}
	svc := NewPaymentService(db, zap.NewNop(), stub, "inr")

	res, err := svc.CreateIntent(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if res.ClientSecret != "pi_stub_secret" || res.InvoiceNumber != inv.InvoiceNumber {
		t.Errorf("unexpected result: %+v", res)
	}
	if stub.gotAmount != 120000 {
		t.Errorf("minor units = %d, want 120000", stub.gotAmount)
	}
	if stub.gotMetadata["invoiceId"] == "" || stub.gotMetadata["customerId"] == "" {
		t.Errorf("metadata missing linkage: %v", stub.gotMetadata)
	}
}

func TestCreateIntentGuards(t *testing.T) {
	db := setupTestDB(t)
	manager, customer := seedParties(t, db)
	svc := NewPaymentService(db, zap.NewNop(), &intentStub{}, "inr")

	if _, err := svc.CreateIntent(context.Background(), 777); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("missing invoice: got %v", err)
	}

	paid := seedInvoice(t, db, customer.ID, manager.ID, 10)
	db.Model(&paid).Update("status", models.InvoiceStatusPaid)
	if _, err := svc.CreateIntent(context.Background(), paid.ID); !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("paid invoice: got %v", err)
	}

	small := seedInvoice(t, db, customer.ID, manager.ID, 0.25)
	if _, err := svc.CreateIntent(context.Background(), small.ID); !errors.Is(err, ErrAmountTooSmall) {
		t.Errorf("small amount: got %v", err)
	}
}

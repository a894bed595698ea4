package service

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mmeshcher/autoecole-booking/internal/gateway"
	"github.com/mmeshcher/autoecole-booking/internal/model"
)

// UserIDHeader передаёт идентификатор пользователя в запросе списка счетов.
const UserIDHeader = "X-User-Id"

// InvoiceService выполняет операции над счетами.
type InvoiceService struct {
	api API
}

// NewInvoiceService создаёт сервис счетов поверх клиента-шлюза.
func NewInvoiceService(api API) *InvoiceService {
	return &InvoiceService{api: api}
}

// Pay запрашивает оплату счёта указанным способом с клиентской ссылкой reference.
func (s *InvoiceService) Pay(ctx context.Context, invoiceID string, method model.PaymentMethod, reference string) (model.Invoice, error) {
	if !method.Valid() {
		return model.Invoice{}, fmt.Errorf("unsupported payment method %q", method)
	}

	q := url.Values{
		"method":    {string(method)},
		"reference": {reference},
	}
	path := "/invoices/" + url.PathEscape(invoiceID) + "/pay?" + q.Encode()

	var inv model.Invoice
	if err := call(ctx, s.api, "pay invoice", http.MethodPost, path, nil, &inv); err != nil {
		return model.Invoice{}, err
	}
	return inv, nil
}

// ListMine возвращает счета пользователя.
func (s *InvoiceService) ListMine(ctx context.Context, userID string) ([]model.Invoice, error) {
	if userID == "" {
		return []model.Invoice{}, nil
	}

	var invoices []model.Invoice
	err := call(ctx, s.api, "list invoices", http.MethodGet, "/invoices", nil, &invoices,
		gateway.WithHeader(UserIDHeader, userID))
	if err != nil {
		return nil, err
	}
	if invoices == nil {
		invoices = []model.Invoice{}
	}
	return invoices, nil
}

// ListBySchool возвращает счета автошколы.
func (s *InvoiceService) ListBySchool(ctx context.Context, schoolID string) ([]model.Invoice, error) {
	var invoices []model.Invoice
	if err := call(ctx, s.api, "list school invoices", http.MethodGet, "/invoices/school/"+url.PathEscape(schoolID), nil, &invoices); err != nil {
		return nil, err
	}
	if invoices == nil {
		invoices = []model.Invoice{}
	}
	return invoices, nil
}

// Get возвращает счёт по идентификатору.
func (s *InvoiceService) Get(ctx context.Context, id string) (model.Invoice, error) {
	var inv model.Invoice
	if err := call(ctx, s.api, "get invoice", http.MethodGet, "/invoices/"+url.PathEscape(id), nil, &inv); err != nil {
		return model.Invoice{}, err
	}
	return inv, nil
}

// InvoiceTotals содержит суммы по счетам в ожидании и оплаченным.
type InvoiceTotals struct {
	Pending float64
	Paid    float64
}

// Totals считает суммы счетов по статусам.
func Totals(invoices []model.Invoice) InvoiceTotals {
	var t InvoiceTotals
	for _, inv := range invoices {
		switch inv.Status {
		case model.InvoiceStatusPending:
			t.Pending += inv.Amount
		case model.InvoiceStatusPaid:
			t.Paid += inv.Amount
		}
	}
	return t
}

const referenceAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewPaymentReference формирует ссылку платежа вида REF-<unix ms>-<9 символов base36>.
// Это не криптографически уникальный ключ идемпотентности.
func NewPaymentReference(now time.Time) string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = referenceAlphabet[rand.Intn(len(referenceAlphabet))]
	}
	return "REF-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix)
}

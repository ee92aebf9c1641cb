package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type stubCheckoutService struct {
	placed    *checkout.PlaceOrderInput
	committed *checkout.CommitInput
	abandoned string
	commitRes *checkout.CommitResult
	err       error
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, input checkout.PlaceOrderInput) (*checkout.PlaceOrderResult, error) {
	s.placed = &input
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.PlaceOrderResult{Order: &models.Order{ID: uuid.New(), PaymentMethod: input.PaymentMethod}}, nil
}

func (s *stubCheckoutService) Commit(ctx context.Context, input checkout.CommitInput) (*checkout.CommitResult, error) {
	s.committed = &input
	if s.err != nil {
		return nil, s.err
	}
	return s.commitRes, nil
}

func (s *stubCheckoutService) CommitCaptured(ctx context.Context, payment checkout.CapturedPayment) (*checkout.CommitResult, error) {
	panic("not implemented")
}

func (s *stubCheckoutService) Abandon(ctx context.Context, userID uuid.UUID, reference string) error {
	s.abandoned = reference
	return s.err
}

func (s *stubCheckoutService) Reverify(ctx context.Context, limit int) (checkout.ReverifySummary, error) {
	panic("not implemented")
}

func (s *stubCheckoutService) ExpireIntents(ctx context.Context) (int64, error) {
	panic("not implemented")
}

func withUser(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, role.String())
	return req.WithContext(ctx)
}

func checkoutRouter(svc checkout.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/checkout", Checkout(svc, nil))
	r.Post("/api/v1/checkout/{reference}/commit", CheckoutCommit(svc, nil))
	r.Post("/api/v1/checkout/{reference}/abandon", CheckoutAbandon(svc, nil))
	return r
}

func TestCheckoutPlacesOrder(t *testing.T) {
	svc := &stubCheckoutService{}
	userID := uuid.New()
	addressID := uuid.New()
	productID := uuid.New()

	body := `{"cart":{"items":[{"product_id":"` + productID.String() + `","qty":2}]},"address_id":"` + addressID.String() + `","payment_method":"cod"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)), userID, enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.placed == nil {
		t.Fatal("expected PlaceOrder to be called")
	}
	if svc.placed.UserID != userID || svc.placed.AddressID != addressID {
		t.Fatalf("unexpected input %+v", svc.placed)
	}
	if svc.placed.PaymentMethod != enums.PaymentMethodCOD {
		t.Fatalf("expected cod got %s", svc.placed.PaymentMethod)
	}
	if len(svc.placed.Cart.Items) != 1 || svc.placed.Cart.Items[0].Qty != 2 {
		t.Fatalf("unexpected cart %+v", svc.placed.Cart)
	}
}

func TestCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	svc := &stubCheckoutService{}
	body := `{"cart":{"items":[{"product_id":"` + uuid.NewString() + `","qty":1}]},"address_id":"` + uuid.NewString() + `","payment_method":"card"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.placed != nil {
		t.Fatal("service should not be called")
	}
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	checkoutRouter(&stubCheckoutService{}).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCheckoutCommitPassesProof(t *testing.T) {
	svc := &stubCheckoutService{commitRes: &checkout.CommitResult{Order: &models.Order{ID: uuid.New()}, Verified: true}}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/chk_abc/commit",
		strings.NewReader(`{"gateway_payment_id":"pay_1","signature":"sig"}`)), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.committed.Reference != "chk_abc" || svc.committed.GatewayPaymentID != "pay_1" || svc.committed.Signature != "sig" {
		t.Fatalf("unexpected commit input %+v", svc.committed)
	}

	var envelope struct {
		Data checkout.CommitResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Verified {
		t.Fatal("expected verified commit")
	}
}

func TestCheckoutCommitReplayReturnsOK(t *testing.T) {
	svc := &stubCheckoutService{commitRes: &checkout.CommitResult{Order: &models.Order{ID: uuid.New()}, Verified: true, Replayed: true}}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/chk_abc/commit",
		strings.NewReader(`{"gateway_payment_id":"pay_1","signature":"sig"}`)), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCheckoutCommitMapsClosedIntent(t *testing.T) {
	svc := &stubCheckoutService{err: checkout.ErrIntentClosed}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/chk_abc/commit",
		strings.NewReader(`{"gateway_payment_id":"pay_1","signature":"sig"}`)), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestCheckoutAbandon(t *testing.T) {
	svc := &stubCheckoutService{}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/chk_xyz/abandon", nil), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.abandoned != "chk_xyz" {
		t.Fatalf("expected abandon of chk_xyz got %q", svc.abandoned)
	}
}

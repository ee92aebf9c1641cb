package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	sentinel := New(CodeConflict, "order already cancelled")
	wrapped := Wrap(CodeConflict, sentinel, "create cancellation")

	if !stdErrors.Is(wrapped, sentinel) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	if CodeOf(wrapped) != CodeConflict {
		t.Fatalf("unexpected code %s", CodeOf(wrapped))
	}
	if !IsCode(wrapped, CodeConflict) {
		t.Fatalf("expected IsCode to match")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil must not be retryable")
	}
	if !IsRetryable(New(CodeDependency, "gateway unreachable")) {
		t.Fatalf("dependency errors are retryable")
	}
	if IsRetryable(New(CodeValidation, "bad reason")) {
		t.Fatalf("validation errors are not retryable")
	}
	if !IsRetryable(stdErrors.New("untyped")) {
		t.Fatalf("untyped errors map to internal and are retryable")
	}
}

func TestDumpCarriesPostgresDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "cancellation_requests_open_order_idx", TableName: "cancellation_requests"}
	err := Wrap(CodeConflict, fmt.Errorf("insert cancellation: %w", pgErr), "cancellation already open")

	dump := Dump(err)
	if dump.Code != CodeConflict {
		t.Fatalf("unexpected code %s", dump.Code)
	}
	if dump.PG == nil || dump.PG.Code != "23505" {
		t.Fatalf("expected pg detail, got %+v", dump.PG)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected three chain entries, got %v", dump.Chain)
	}

	fields := dump.LogFields()
	if fields["pg_constraint"] != "cancellation_requests_open_order_idx" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg fields should be omitted")
	}
}

func TestDumpWithoutPostgresError(t *testing.T) {
	fields := Dump(stdErrors.New("boom")).LogFields()
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("unexpected pg_code for plain error")
	}
	if fields["error"] != "boom" {
		t.Fatalf("unexpected error field %v", fields["error"])
	}
}

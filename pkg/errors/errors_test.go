package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
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
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeUnavailable, status: http.StatusServiceUnavailable, publicMsg: "service shutting down", retryable: true},
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

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "load order")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: load order: boom" {
		t.Fatalf("unexpected message %q", wrapped.Error())
	}
	if Wrap(CodeNotFound, nil, "missing").Unwrap() != nil {
		t.Fatalf("nil cause should not be wrapped")
	}
}

func TestIsCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("cancel: %w", Newf(CodeStateConflict, "vendor order %s is %s", "vo-1", "shipped"))
	if !IsCode(err, CodeStateConflict) {
		t.Fatalf("expected state conflict through wrap")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("unexpected code match")
	}
	if got := As(err).Message(); got != "vendor order vo-1 is shipped" {
		t.Fatalf("unexpected message %q", got)
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeDependency, stdErrors.New("driver"), "query"))
	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", dump.Code)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected three links, got %v", dump.Chain)
	}
	if Dump(nil).TopMessage != "" {
		t.Fatalf("nil dump should be empty")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgxErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "outbox_events_pkey"})
	if !IsUniqueViolation(pgxErr) {
		t.Fatalf("expected pgx unique violation")
	}
	if !IsUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Fatalf("expected pq unique violation")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Fatalf("foreign key violation is not unique")
	}

	dump := Dump(pgxErr)
	if dump.PGConstraint != "outbox_events_pkey" {
		t.Fatalf("expected constraint in dump, got %+v", dump)
	}
}

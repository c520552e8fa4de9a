package observability

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/ebusctl/internal/protocol"
	"github.com/danmuck/ebusctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(lookups.WithLabelValues("master", "miss"))
	RecordLookup("master", false)
	RecordLookup("master", false)
	if got := testutil.ToFloat64(lookups.WithLabelValues("master", "miss")); got != before+2 {
		t.Fatalf("expected lookup counter to grow by 2, got %v -> %v", before, got)
	}

	before = testutil.ToFloat64(codecOps.WithLabelValues("decode", "s", ResultIncomplete))
	RecordCodec("decode", "s", fmt.Errorf("wrapped: %w", protocol.ErrIncompleteData), 3*time.Microsecond)
	if got := testutil.ToFloat64(codecOps.WithLabelValues("decode", "s", ResultIncomplete)); got != before+1 {
		t.Fatalf("expected incomplete counter to grow, got %v -> %v", before, got)
	}

	RecordCatalogRow("messages", ResultOK)

	before = testutil.ToFloat64(frames.WithLabelValues(ResultNotFound))
	RecordFrame(protocol.ErrNotFound)
	if got := testutil.ToFloat64(frames.WithLabelValues(ResultNotFound)); got != before+1 {
		t.Fatalf("expected frame counter to grow, got %v -> %v", before, got)
	}
	RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200")); got < 1 {
		t.Fatalf("expected http request counted, got %v", got)
	}
}

func TestResultLabel(t *testing.T) {
	cases := map[string]error{
		ResultOK:          nil,
		ResultMalformed:   protocol.DefinitionError{Reason: "x"},
		ResultDuplicate:   protocol.DuplicateError{Identity: "x"},
		ResultNotFound:    protocol.ErrNotFound,
		ResultFieldFormat: protocol.FieldError{Field: "x"},
		ResultIncomplete:  protocol.ErrIncompleteData,
		ResultError:       errors.New("io"),
	}
	for want, err := range cases {
		if got := ResultLabel(err); got != want {
			t.Fatalf("ResultLabel(%v) = %s want %s", err, got, want)
		}
	}
}

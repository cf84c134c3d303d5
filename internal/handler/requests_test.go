package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
	"github.com/iliyamo/sake-tasting-reservation/internal/service"
)

func TestMergePayloadBodyWins(t *testing.T) {
	q := url.Values{"action": {"getMonthStatus"}, "token": {"t"}, "year": {"2024"}, "month": {"4"}, "type": {"GROUP"}}
	raw, err := mergePayload(q, json.RawMessage(`{"month": 5, "force": "true"}`))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := fields["action"]; ok {
		t.Fatal("action leaked into the payload")
	}
	if _, ok := fields["token"]; ok {
		t.Fatal("token leaked into the payload")
	}

	var req monthStatusReq
	if err := decodePayload(raw, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Year != 2024 || req.Month != 5 || req.Type != "GROUP" || !bool(req.Force) {
		t.Fatalf("request %+v", req)
	}

	if _, err := mergePayload(nil, json.RawMessage(`[1,2]`)); err == nil {
		t.Fatal("array payload accepted")
	}
	if raw, err := mergePayload(nil, json.RawMessage(`null`)); err != nil || string(raw) != "{}" {
		t.Fatalf("null payload: %s %v", raw, err)
	}
}

func TestFlexInt(t *testing.T) {
	for in, want := range map[string]int64{`3`: 3, `"3"`: 3, `""`: 0, `null`: 0, `4.0`: 4} {
		var f flexInt
		if err := json.Unmarshal([]byte(in), &f); err != nil || int64(f) != want {
			t.Errorf("flexInt(%s) = %d, %v", in, f, err)
		}
	}
	for _, in := range []string{`"three"`, `2.5`} {
		var f flexInt
		if err := json.Unmarshal([]byte(in), &f); err == nil {
			t.Errorf("flexInt(%s) accepted", in)
		}
	}
}

func TestCreateBookingRequestFromQueryStrings(t *testing.T) {
	raw := json.RawMessage(`{"type":" private ","date":"2024-05-10","time":"14:00","adults":"2","infants":1,
		"totalPrice":"49126","representative":{"lastName":"Sato","email":"s@example.com"}}`)
	var req createBookingReq
	if err := decodePayload(raw, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := req.toModel()
	if m.Kind != model.KindPrivate || m.Adults != 2 || m.Infants != 1 || m.TotalPrice != 49126 {
		t.Fatalf("model %+v", m)
	}
}

func TestUpdateStatusRequest(t *testing.T) {
	var req updateStatusReq
	if err := decodePayload(json.RawMessage(`{"id":" bk_1 ","status":"confirmed","secondaryStatus":"arrived","refundAmount":"100"}`), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	u := req.toUpdate()
	if u.ID != "bk_1" || *u.Status != model.StatusConfirmed || *u.OnSite != model.OnSiteArrived || *u.RefundAmount != 100 || u.Notes != nil {
		t.Fatalf("update %+v", u)
	}

	req = updateStatusReq{}
	_ = decodePayload(json.RawMessage(`{"id":"bk_1","notes":""}`), &req)
	u = req.toUpdate()
	if u.Status != nil || u.OnSite != nil || u.Notes == nil {
		t.Fatalf("notes-only update %+v", u)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[service.Code]int{
		service.CodeInvalidRequest:      http.StatusBadRequest,
		service.CodeInvalidAction:       http.StatusBadRequest,
		service.CodeTokenMismatch:       http.StatusUnauthorized,
		service.CodeNotFound:            http.StatusNotFound,
		service.CodeDataNotFound:        http.StatusNotFound,
		service.CodeSlotFull:            http.StatusConflict,
		service.CodePaymentNotCompleted: http.StatusConflict,
		service.CodePaymentExpired:      http.StatusGone,
		service.CodeCaptureFailed:       http.StatusBadGateway,
		service.CodeUpstreamUnavailable: http.StatusServiceUnavailable,
		service.CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := statusFor(code); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", code, got, want)
		}
	}
}

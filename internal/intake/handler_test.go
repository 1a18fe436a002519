package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/storefront-bridge/internal/dedupe"
	"github.com/wolfman30/storefront-bridge/internal/observability/metrics"
	"github.com/wolfman30/storefront-bridge/internal/submission"
	"github.com/wolfman30/storefront-bridge/pkg/logging"
)

const orderBody = `{
	"customer": {"firstName": "Olena", "lastName": "Ivanenko", "phone": "+380501234567"},
	"delivery": {"city": "Kyiv", "address": "Nova Poshta #5"},
	"items": [{"title": "Widget", "qty": 2, "price": 150}],
	"total": 300
}`

const leadBody = `{"customer": {"firstName": "Olena", "phone": "+380501234567"}, "sourceUrl": "https://shop.example"}`

type sent struct {
	kind submission.Kind
	text string
}

type fakeRelay struct {
	mu    sync.Mutex
	calls []sent
	err   error
	panic bool
}

func (f *fakeRelay) Send(_ context.Context, kind submission.Kind, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{kind: kind, text: text})
	if f.panic {
		panic("boom")
	}
	return f.err
}

type brokenStore struct{}

func (brokenStore) Claim(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func newTestHandler(relay Relayer, store dedupe.Store) (*Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewHandler(relay, store, logging.New("error"), metrics.NewIntakeMetrics(reg)), reg
}

func post(h http.HandlerFunc, body string) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(http.MethodPost, "/api/telegram/order", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)

	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestOrder_Relayed(t *testing.T) {
	relay := &fakeRelay{}
	h, _ := newTestHandler(relay, nil)

	rec, resp := post(h.Order, orderBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, resp.OK)
	assert.Empty(t, resp.Error)

	require.Len(t, relay.calls, 1)
	assert.Equal(t, submission.KindOrder, relay.calls[0].kind)
	assert.True(t, strings.HasPrefix(relay.calls[0].text, "*Новий заказ*"))
	assert.Contains(t, relay.calls[0].text, "`300 ₴`")
}

func TestLead_Relayed(t *testing.T) {
	relay := &fakeRelay{}
	h, _ := newTestHandler(relay, nil)

	rec, resp := post(h.Lead, leadBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.OK)
	require.Len(t, relay.calls, 1)
	assert.Equal(t, submission.KindLead, relay.calls[0].kind)
	assert.True(t, strings.HasPrefix(relay.calls[0].text, "*Нова заявка*"))
}

func TestOrder_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{name: "malformed json", body: `{"customer":`, status: http.StatusBadRequest, msg: MsgInvalidBody},
		{name: "empty body", body: ``, status: http.StatusBadRequest, msg: MsgInvalidBody},
		{name: "array body", body: `[1,2]`, status: http.StatusBadRequest, msg: MsgInvalidBody},
		{name: "missing phone", body: `{"customer":{"firstName":"Olena","lastName":"Ivanenko"},"delivery":{"city":"Kyiv","address":"x"},"items":[{"title":"W","qty":1,"price":1}],"total":1}`, status: http.StatusBadRequest, msg: "phone invalid"},
		{name: "bad phone", body: strings.Replace(orderBody, "+380501234567", "12ab", 1), status: http.StatusBadRequest, msg: "phone invalid"},
		{name: "no items", body: strings.Replace(orderBody, `[{"title": "Widget", "qty": 2, "price": 150}]`, `[]`, 1), status: http.StatusBadRequest, msg: "items required"},
		{name: "honeypot company", body: `{"company":"ACME"}`, status: http.StatusBadRequest, msg: MsgBotRejected},
		{name: "honeypot beats valid order", body: strings.Replace(orderBody, `"total": 300`, `"total": 300, "email2": "bot@example.com"`, 1), status: http.StatusBadRequest, msg: MsgBotRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &fakeRelay{}
			h, _ := newTestHandler(relay, nil)

			rec, resp := post(h.Order, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.OK)
			assert.Equal(t, tt.msg, resp.Error)
			assert.Empty(t, relay.calls)
		})
	}
}

func TestOrder_PayloadTooLarge(t *testing.T) {
	relay := &fakeRelay{}
	h, _ := newTestHandler(relay, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/telegram/order", strings.NewReader(orderBody))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 16)
	h.Order(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgPayloadTooLarge)
	assert.Empty(t, relay.calls)
}

func TestOrder_DuplicateSuppressed(t *testing.T) {
	relay := &fakeRelay{}
	h, reg := newTestHandler(relay, dedupe.NewMemoryStore(10, dedupe.DefaultTTL))

	rec, _ := post(h.Order, orderBody)
	require.Equal(t, http.StatusOK, rec.Code)

	// Name changes do not make the order distinct.
	rec, resp := post(h.Order, strings.Replace(orderBody, "Olena", "Olha", 1))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, MsgDuplicate, resp.Error)
	assert.Len(t, relay.calls, 1)

	// The same contact as a lead is a different submission.
	rec, _ = post(h.Lead, leadBody)
	assert.Equal(t, http.StatusOK, rec.Code)

	count, err := testutil.GatherAndCount(reg, "storefront_bridge_submissions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestOrder_DedupeStoreFailureFailsOpen(t *testing.T) {
	relay := &fakeRelay{}
	h, _ := newTestHandler(relay, brokenStore{})

	for i := 0; i < 2; i++ {
		rec, _ := post(h.Order, orderBody)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, relay.calls, 2)
}

func TestOrder_UpstreamFailure(t *testing.T) {
	h, _ := newTestHandler(&fakeRelay{err: errors.New("telegram: http status 500")}, nil)

	rec, resp := post(h.Order, orderBody)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, resp.OK)
	assert.Equal(t, MsgUpstream, resp.Error)
}

func TestOrder_RelayPanicBecomesUpstreamError(t *testing.T) {
	h, _ := newTestHandler(&fakeRelay{panic: true}, nil)

	rec, resp := post(h.Lead, leadBody)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, MsgUpstream, resp.Error)
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(&fakeRelay{}, nil)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

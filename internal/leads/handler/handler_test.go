package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	contactmodels "crmhub/internal/contact/models"
	dealmodels "crmhub/internal/deal/models"
	integrationmodels "crmhub/internal/integration/models"
	"crmhub/internal/leads/handler/mocks"
	"crmhub/internal/leads/idempotency"
	"crmhub/internal/leads/mapping"
	leadmetrics "crmhub/internal/leads/metrics"
	"crmhub/internal/leads/reconcile"
	"crmhub/internal/leads/verify"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	apitest "crmhub/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/resolver-mocks.go -package=mocks IntegrationResolver
//go:generate mockgen -source=handler.go -destination=mocks/reconciler-mocks.go -package=mocks Reconciler

type LeadHandlerSuite struct {
	suite.Suite
	resolver   *mocks.MockIntegrationResolver
	reconciler *mocks.MockReconciler
	keys       *idempotency.InMemory
	metrics    *leadmetrics.Metrics
	router     http.Handler
}

func TestLeadHandlerSuite(t *testing.T) {
	suite.Run(t, new(LeadHandlerSuite))
}

func (s *LeadHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.resolver = mocks.NewMockIntegrationResolver(ctrl)
	s.reconciler = mocks.NewMockReconciler(ctrl)
	s.keys = idempotency.NewInMemory()
	s.metrics = leadmetrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	New(s.resolver, s.reconciler, s.keys,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	).Register(r)
	s.router = r
}

func (s *LeadHandlerSuite) integration(kind integrationmodels.Kind, secret string) *integrationmodels.Integration {
	i, err := integrationmodels.NewIntegration(id.NewIntegrationID(), id.NewCompanyID(), kind, "Site", "tok-"+string(kind), time.Now())
	s.Require().NoError(err)
	i.Secret = secret
	s.resolver.EXPECT().ResolveToken(gomock.Any(), i.Token).Return(i, nil).AnyTimes()
	return i
}

func (s *LeadHandlerSuite) send(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func result(created bool) *reconcile.Result {
	return &reconcile.Result{
		Contact:        &contactmodels.Contact{ID: id.NewContactID()},
		ContactCreated: created,
	}
}

func (s *LeadHandlerSuite) TestUnknownToken() {
	s.resolver.EXPECT().ResolveToken(gomock.Any(), "missing").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "integration not found"))

	rec := s.send(httptest.NewRequest(http.MethodPost, "/webhooks/incoming/missing", strings.NewReader(`{}`)))
	apitest.AssertStatusAndError(s.T(), rec, http.StatusNotFound, dErrors.CodeNotFound)
}

func (s *LeadHandlerSuite) TestTokenOfAnotherKindIsNotFound() {
	i := s.integration(integrationmodels.KindTelegram, "tg")

	rec := s.send(httptest.NewRequest(http.MethodPost, "/webhooks/incoming/"+i.Token, strings.NewReader(`{}`)))
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *LeadHandlerSuite) TestWebhook() {
	i := s.integration(integrationmodels.KindWebhook, "s3cret")
	i.Settings.FieldMapping = map[string]string{"email": "contact.mail"}
	body := `{"contact": {"mail": "Ann@Example.com"}, "name": "Ann"}`

	newRequest := func(signature string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/incoming/"+i.Token, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(verify.HeaderWebhookSignature, signature)
		return req
	}

	s.Run("bad signature", func() {
		rec := s.send(newRequest("sha256=deadbeef"))
		body := apitest.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, dErrors.CodeUnauthorized)
		s.Equal("invalid signature", body.Description)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.LeadsRejected.WithLabelValues("webhook", "signature")))
	})

	s.Run("accepted", func() {
		res := result(true)
		s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req reconcile.Request) (*reconcile.Result, error) {
				s.Equal(i, req.Integration)
				s.Equal("ann@example.com", req.Lead.Email)
				s.Equal("Ann", req.Lead.Name)
				return res, nil
			})

		rec := s.send(newRequest(verify.Sign("s3cret", []byte(body))))
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"status":"ok"`)
		s.Contains(rec.Body.String(), res.Contact.ID.String())
	})

	s.Run("same body is a duplicate", func() {
		rec := s.send(newRequest(verify.Sign("s3cret", []byte(body))))
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"status":"duplicate"}`, rec.Body.String())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.LeadsDuplicate.WithLabelValues("webhook")))
	})
}

func (s *LeadHandlerSuite) TestWebhookTimestampedSignature() {
	i := s.integration(integrationmodels.KindWebhook, "s3cret")
	body := `{"phone": "+15551234567"}`
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).Return(result(true), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/incoming/"+i.Token, strings.NewReader(body))
	req.Header.Set(verify.HeaderWebhookTimestamp, ts)
	req.Header.Set(verify.HeaderWebhookSignature, verify.SignTimestamped("s3cret", ts, []byte(body)))
	s.Equal(http.StatusOK, s.send(req).Code)

	stale := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	req = httptest.NewRequest(http.MethodPost, "/webhooks/incoming/"+i.Token, strings.NewReader(body))
	req.Header.Set(verify.HeaderWebhookTimestamp, stale)
	req.Header.Set(verify.HeaderWebhookSignature, verify.SignTimestamped("s3cret", stale, []byte(body)))
	apitest.AssertStatusAndError(s.T(), s.send(req), http.StatusUnauthorized, dErrors.CodeUnauthorized)
}

func (s *LeadHandlerSuite) TestWebhookHonorsConfiguredTolerance() {
	i := s.integration(integrationmodels.KindWebhook, "s3cret")
	r := chi.NewRouter()
	New(s.resolver, s.reconciler, s.keys,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithMetrics(s.metrics),
		WithSignatureTolerance(time.Minute),
	).Register(r)

	body := `{"phone": "+15551234567"}`
	ts := strconv.FormatInt(time.Now().Add(-2*time.Minute).Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/incoming/"+i.Token, strings.NewReader(body))
	req.Header.Set(verify.HeaderWebhookTimestamp, ts)
	req.Header.Set(verify.HeaderWebhookSignature, verify.SignTimestamped("s3cret", ts, []byte(body)))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	apitest.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, dErrors.CodeUnauthorized)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LeadsRejected.WithLabelValues("webhook", "signature")))
}

func (s *LeadHandlerSuite) TestWebhookWithoutSecretAcceptsForm() {
	i := s.integration(integrationmodels.KindWebhook, "")
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req reconcile.Request) (*reconcile.Result, error) {
			s.Equal("+79161234567", req.Lead.Phone)
			return result(false), nil
		})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/incoming/"+i.Token, strings.NewReader("phone=89161234567&name=Ivan"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.Equal(http.StatusOK, s.send(req).Code)
}

func (s *LeadHandlerSuite) TestFailedReconcileReleasesKey() {
	i := s.integration(integrationmodels.KindWebhook, "")
	body := `{"email": "a@b.io"}`
	gomock.InOrder(
		s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "failed to create contact")),
		s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).Return(result(true), nil),
	)

	newRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/incoming/"+i.Token, strings.NewReader(body))
		req.Header.Set("X-Idempotency-Key", "delivery-1")
		return req
	}
	rec := s.send(newRequest())
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "db down")

	rec = s.send(newRequest())
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"status":"ok"`)
}

func (s *LeadHandlerSuite) TestWebhookValidationError() {
	i := s.integration(integrationmodels.KindWebhook, "")
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeValidation, "lead needs an email, phone or external id"))

	rec := s.send(httptest.NewRequest(http.MethodPost, "/webhooks/incoming/"+i.Token, strings.NewReader(`{"name": "x"}`)))
	body := apitest.AssertStatusAndError(s.T(), rec, http.StatusUnprocessableEntity, dErrors.CodeValidation)
	s.Equal("lead needs an email, phone or external id", body.Description)

	rec = s.send(httptest.NewRequest(http.MethodPost, "/webhooks/incoming/"+i.Token, strings.NewReader(`[1,2]`)))
	apitest.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, dErrors.CodeBadRequest)
}

func (s *LeadHandlerSuite) webform() *integrationmodels.Integration {
	i := s.integration(integrationmodels.KindWebform, "")
	i.Settings.FormFields = []integrationmodels.FormField{
		{Name: "name", Label: "Name", Type: "text", Required: true},
		{Name: "phone", Label: "Phone", Type: "tel", Required: true},
	}
	i.Settings.AllowedOrigins = []string{"https://shop.example.com"}
	i.Settings.RedirectURL = "https://shop.example.com/thanks"
	return i
}

func (s *LeadHandlerSuite) formRequest(i *integrationmodels.Integration, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webforms/public/"+i.Token+"/submit", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	return req
}

func (s *LeadHandlerSuite) TestFormSchema() {
	i := s.webform()

	rec := s.send(httptest.NewRequest(http.MethodGet, "/webforms/public/"+i.Token, nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"name":"phone"`)
	s.Contains(rec.Body.String(), `"required":true`)
	s.NotContains(rec.Body.String(), i.ID.String())
}

func (s *LeadHandlerSuite) TestFormSubmitRedirects() {
	i := s.webform()
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req reconcile.Request) (*reconcile.Result, error) {
			s.Equal("Ivan", req.Lead.Name)
			s.Equal("Chrome 120.0.0.0", req.Metadata["browser"])
			s.Equal("https://shop.example.com", req.Metadata["origin"])
			return result(true), nil
		})

	rec := s.send(s.formRequest(i, url.Values{"name": {"Ivan"}, "phone": {"+7 916 123 45 67"}}))
	s.Equal(http.StatusSeeOther, rec.Code)
	s.Equal("https://shop.example.com/thanks", rec.Header().Get("Location"))
	s.Equal("https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func (s *LeadHandlerSuite) TestFormSubmitJSON() {
	i := s.webform()
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).Return(result(true), nil)

	req := httptest.NewRequest(http.MethodPost, "/webforms/public/"+i.Token+"/submit",
		strings.NewReader(`{"name": "Ivan", "phone": "+79161234567"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://shop.example.com")

	rec := s.send(req)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"status":"ok"`)
}

func (s *LeadHandlerSuite) TestFormRejections() {
	i := s.webform()

	s.Run("foreign origin", func() {
		req := s.formRequest(i, url.Values{"name": {"Ivan"}, "phone": {"+79161234567"}})
		req.Header.Set("Origin", "https://evil.example")
		s.Equal(http.StatusForbidden, s.send(req).Code)
	})

	s.Run("missing required field", func() {
		rec := s.send(s.formRequest(i, url.Values{"name": {"Ivan"}}))
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		s.Contains(rec.Body.String(), "phone")
	})

	s.Run("honeypot is accepted silently", func() {
		rec := s.send(s.formRequest(i, url.Values{"name": {"Bot"}, "phone": {"+79161234567"}, "_hp": {"gotcha"}}))
		s.Equal(http.StatusSeeOther, rec.Code)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.LeadsRejected.WithLabelValues("webform", "honeypot")))
	})
}

func (s *LeadHandlerSuite) TestFormPreflight() {
	i := s.webform()

	req := httptest.NewRequest(http.MethodOptions, "/webforms/public/"+i.Token+"/submit", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := s.send(req)
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	s.Equal(http.StatusForbidden, s.send(req).Code)
}

func (s *LeadHandlerSuite) TestTelegram() {
	i := s.integration(integrationmodels.KindTelegram, "tg-secret")
	update := `{"update_id": 1001, "message": {"message_id": 5, "date": 1770000000,
		"from": {"id": 424242, "is_bot": false, "first_name": "Ivan", "last_name": "Petrov"},
		"chat": {"id": 424242, "type": "private"},
		"contact": {"phone_number": "79161234567", "first_name": "Ivan"},
		"text": ""}}`

	newRequest := func(body, secret string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/messaging/telegram-bot/webhook/"+i.Token, strings.NewReader(body))
		req.Header.Set(verify.HeaderTelegramSecret, secret)
		return req
	}

	s.Run("wrong secret", func() {
		s.Equal(http.StatusUnauthorized, s.send(newRequest(update, "nope")).Code)
	})

	s.Run("message becomes a lead", func() {
		s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req reconcile.Request) (*reconcile.Result, error) {
				s.Equal("424242", req.ExternalID)
				s.Equal("+79161234567", req.Lead.Phone)
				s.Equal("Ivan", req.Lead.Name)
				return result(true), nil
			})
		s.Equal(http.StatusOK, s.send(newRequest(update, "tg-secret")).Code)
	})

	s.Run("redelivered update", func() {
		rec := s.send(newRequest(update, "tg-secret"))
		s.JSONEq(`{"status":"duplicate"}`, rec.Body.String())
	})

	s.Run("non-message update is ignored", func() {
		rec := s.send(newRequest(`{"update_id": 1002, "edited_message": {"message_id": 5}}`, "tg-secret"))
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"status":"ignored"}`, rec.Body.String())
	})
}

func (s *LeadHandlerSuite) TestWhatsAppHandshake() {
	i := s.integration(integrationmodels.KindWhatsApp, "app-secret")
	i.VerifyToken = "vt"

	rec := s.send(httptest.NewRequest(http.MethodGet,
		"/messaging/whatsapp/webhook/"+i.Token+"?hub.mode=subscribe&hub.verify_token=vt&hub.challenge=1158201444", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("1158201444", rec.Body.String())

	rec = s.send(httptest.NewRequest(http.MethodGet,
		"/messaging/whatsapp/webhook/"+i.Token+"?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", nil))
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *LeadHandlerSuite) TestWhatsAppMessages() {
	i := s.integration(integrationmodels.KindWhatsApp, "app-secret")
	body := `{"object": "whatsapp_business_account", "entry": [{"id": "1", "changes": [{"field": "messages", "value": {
		"messaging_product": "whatsapp",
		"contacts": [{"profile": {"name": "Ivan"}, "wa_id": "79161234567"}],
		"messages": [
			{"from": "79161234567", "id": "wamid.A", "type": "text", "text": {"body": "hello"}},
			{"from": "79161234567", "id": "wamid.B", "type": "text", "text": {"body": "again"}}
		]}}]}]}`
	var messages []string
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, req reconcile.Request) (*reconcile.Result, error) {
			s.Equal("79161234567", req.ExternalID)
			s.Equal("+79161234567", req.Lead.Phone)
			s.Equal("Ivan", req.Lead.Name)
			messages = append(messages, req.Lead.Message)
			return result(len(messages) == 1), nil
		})

	newRequest := func(signature string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/messaging/whatsapp/webhook/"+i.Token, strings.NewReader(body))
		req.Header.Set(verify.HeaderHubSignature, signature)
		return req
	}

	s.Equal(http.StatusUnauthorized, s.send(newRequest("sha256=00")).Code)

	rec := s.send(newRequest("sha256=" + verify.Sign("app-secret", []byte(body))))
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok","processed":2,"duplicates":0}`, rec.Body.String())
	s.Equal([]string{"hello", "again"}, messages)

	rec = s.send(newRequest("sha256=" + verify.Sign("app-secret", []byte(body))))
	s.JSONEq(`{"status":"ok","processed":0,"duplicates":2}`, rec.Body.String())
}

func (s *LeadHandlerSuite) TestWhatsAppMessagesWithoutIDs() {
	i := s.integration(integrationmodels.KindWhatsApp, "app-secret")
	body := `{"object": "whatsapp_business_account", "entry": [{"id": "1", "changes": [{"field": "messages", "value": {
		"contacts": [{"profile": {"name": "Ivan"}, "wa_id": "79161234567"}, {"profile": {"name": "Olga"}, "wa_id": "79035550000"}],
		"messages": [
			{"from": "79161234567", "timestamp": "1777888000", "type": "text", "text": {"body": "hello"}},
			{"from": "79161234567", "timestamp": "1777888000", "type": "text", "text": {"body": "again"}},
			{"from": "79035550000", "timestamp": "1777888001", "type": "text", "text": {"body": "hi"}}
		]}}]}]}`
	var senders []string
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).Times(3).
		DoAndReturn(func(_ context.Context, req reconcile.Request) (*reconcile.Result, error) {
			senders = append(senders, req.ExternalID)
			return result(true), nil
		})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/messaging/whatsapp/webhook/"+i.Token, strings.NewReader(body))
		req.Header.Set(verify.HeaderHubSignature, "sha256="+verify.Sign("app-secret", []byte(body)))
		return s.send(req)
	}

	rec := send()
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok","processed":3,"duplicates":0}`, rec.Body.String(), "siblings without ids are not duplicates")
	s.Equal([]string{"79161234567", "79161234567", "79035550000"}, senders)

	rec = send()
	s.JSONEq(`{"status":"ok","processed":0,"duplicates":3}`, rec.Body.String(), "a redelivery still matches")
}

func (s *LeadHandlerSuite) TestYandexDirect() {
	i := s.integration(integrationmodels.KindYandexDirect, "yd")
	i.Settings.CreateDeal = true
	body := `{"lead_id": "ya-77", "answers": [{"name": "phone", "value": "+79161234567"}, {"name": "name", "value": "Olga"}]}`
	deal := &dealmodels.Deal{ID: id.NewDealID()}
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req reconcile.Request) (*reconcile.Result, error) {
			s.Equal(mapping.Lead{Name: "Olga", Phone: "+79161234567", ExternalID: "ya-77"}, req.Lead)
			res := result(true)
			res.Deal, res.DealCreated = deal, true
			return res, nil
		})

	s.Equal(http.StatusUnauthorized, s.send(httptest.NewRequest(http.MethodPost,
		"/advertising/yandex-direct/webhook/"+i.Token, strings.NewReader(body))).Code)

	rec := s.send(httptest.NewRequest(http.MethodPost,
		"/advertising/yandex-direct/webhook/"+i.Token+"?secret=yd", strings.NewReader(body)))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), deal.ID.String())
	s.Contains(rec.Body.String(), `"deal_created":true`)

	req := httptest.NewRequest(http.MethodPost, "/advertising/yandex-direct/webhook/"+i.Token, strings.NewReader(body))
	req.Header.Set(verify.HeaderYandexSecret, "yd")
	s.JSONEq(`{"status":"duplicate"}`, s.send(req).Body.String())
}

func TestFlattenAnswers(t *testing.T) {
	payload := flattenAnswers(map[string]any{
		"name":   "top",
		"fields": map[string]any{"name": "nested", "email": "a@b.io"},
	})
	if payload["name"] != "top" || payload["email"] != "a@b.io" {
		t.Fatalf("unexpected flattening: %v", payload)
	}
}

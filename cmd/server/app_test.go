package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authservice "crmhub/internal/auth/service"
	contactmodels "crmhub/internal/contact/models"
	dealmodels "crmhub/internal/deal/models"
	integrationmodels "crmhub/internal/integration/models"
	notifymodels "crmhub/internal/notify/models"
	"crmhub/internal/platform/config"
	"crmhub/internal/platform/logger"
	tenantmodels "crmhub/internal/tenant/models"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/testutil"
)

const testAdminToken = "operator-token"

func testConfig() config.Config {
	return config.Config{
		Server: config.Server{AdminToken: testAdminToken, RequestTimeout: 5 * time.Second},
		Kafka:  config.KafkaConfig{Topic: "crm.events"},
		Auth: config.AuthConfig{
			JWTSigningKey: "test-signing-key",
			Issuer:        "crmhub-test",
			TokenTTL:      time.Hour,
		},
		Relay: config.RelayConfig{Schedule: "@every 1h", BatchSize: 10},
		Leads: config.LeadsConfig{IdempotencyTTL: time.Hour, SignatureTolerance: 5 * time.Minute},
	}
}

func TestInboundLeadFlow(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.shutdown(shutdownCtx)
	})

	var token, webhookToken string

	testutil.Given(t, "a provisioned company", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/admin/companies", tenantmodels.CreateCompanyRequest{
			Name:          "Acme",
			OwnerEmail:    "owner@acme.test",
			OwnerName:     "Olga Owner",
			OwnerPassword: "correct-horse-battery",
		})
		req.Header.Set("X-Admin-Token", testAdminToken)
		rr := testutil.DoRequest(a.handler, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)

		rr = testutil.DoRequest(a.handler, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", authservice.LoginRequest{
			Email:    "owner@acme.test",
			Password: "correct-horse-battery",
		}))
		testutil.AssertStatusOK(t, rr)
		login := testutil.UnmarshalResponse[authservice.LoginResult](t, rr)
		require.NotEmpty(t, login.AccessToken)
		token = login.AccessToken

		testutil.When(t, "a webhook integration and a tagging rule are configured", func(t *testing.T) {
			noSecret := ""
			req := testutil.WithBearer(testutil.NewJSONRequest(t, http.MethodPost, "/api/integrations", integrationmodels.CreateIntegrationRequest{
				Kind:     integrationmodels.KindWebhook,
				Name:     "Landing",
				Secret:   &noSecret,
				Settings: integrationmodels.Settings{CreateDeal: true},
			}), token)
			rr := testutil.DoRequest(a.handler, req)
			testutil.AssertStatus(t, rr, http.StatusCreated)
			created := testutil.UnmarshalResponse[map[string]any](t, rr)
			webhookToken, _ = (*created)["token"].(string)
			require.NotEmpty(t, webhookToken)

			rr = testutil.DoRequest(a.handler, testutil.WithBearer(testutil.NewRequestWithBody(t, http.MethodPost, "/api/automation/rules",
				`{"name":"tag inbound","trigger":"contact.created","source_filter":"webhook","action":"add_tag","params":{"tags":["inbound"]}}`), token))
			testutil.AssertStatus(t, rr, http.StatusCreated)
		})

		testutil.When(t, "the same lead is delivered twice", func(t *testing.T) {
			body := `{"name":"Ivan Petrov","email":"Ivan@Example.com","phone":"8 (916) 123-45-67"}`

			rr := testutil.DoRequest(a.handler, testutil.NewRequestWithBody(t, http.MethodPost, "/webhooks/incoming/"+webhookToken, body))
			testutil.AssertStatusOK(t, rr)
			first := testutil.UnmarshalResponse[map[string]any](t, rr)
			assert.Equal(t, "ok", (*first)["status"])
			assert.Equal(t, true, (*first)["contact_created"])
			assert.Equal(t, true, (*first)["deal_created"])

			rr = testutil.DoRequest(a.handler, testutil.NewRequestWithBody(t, http.MethodPost, "/webhooks/incoming/"+webhookToken, body))
			testutil.AssertStatusOK(t, rr)
			testutil.AssertJSONContains(t, rr, "status", "duplicate")

			testutil.Then(t, "one contact and one deal exist", func(t *testing.T) {
				rr := testutil.DoRequest(a.handler, testutil.WithBearer(testutil.NewRequest(t, http.MethodGet, "/api/contacts"), token))
				testutil.AssertStatusOK(t, rr)
				page := testutil.UnmarshalResponse[contactmodels.Page](t, rr)
				require.Len(t, page.Contacts, 1)
				assert.Equal(t, "ivan@example.com", page.Contacts[0].Email)
				assert.Equal(t, "+79161234567", page.Contacts[0].Phone)
				assert.Equal(t, "webhook:Landing", page.Contacts[0].Source)

				rr = testutil.DoRequest(a.handler, testutil.WithBearer(testutil.NewRequest(t, http.MethodGet, "/api/deals"), token))
				testutil.AssertStatusOK(t, rr)
				deals := testutil.UnmarshalResponse[struct {
					Deals []*dealmodels.Deal `json:"deals"`
				}](t, rr)
				require.Len(t, deals.Deals, 1)
				assert.Equal(t, page.Contacts[0].ID, deals.Deals[0].ContactID)
			})

			testutil.And(t, "subscribers notify the owner and tag the contact", func(t *testing.T) {
				require.Eventually(t, func() bool {
					rr := testutil.DoRequest(a.handler, testutil.WithBearer(testutil.NewRequest(t, http.MethodGet, "/api/notifications"), token))
					if rr.Code != http.StatusOK {
						return false
					}
					list := testutil.UnmarshalResponse[struct {
						Notifications []*notifymodels.Notification `json:"notifications"`
					}](t, rr)
					for _, n := range list.Notifications {
						if n.Title == "New contact: Ivan Petrov" {
							return true
						}
					}
					return false
				}, 2*time.Second, 20*time.Millisecond)

				require.Eventually(t, func() bool {
					rr := testutil.DoRequest(a.handler, testutil.WithBearer(testutil.NewRequest(t, http.MethodGet, "/api/contacts?tag=inbound"), token))
					if rr.Code != http.StatusOK {
						return false
					}
					return len(testutil.UnmarshalResponse[contactmodels.Page](t, rr).Contacts) == 1
				}, 2*time.Second, 20*time.Millisecond)
			})
		})
	})
}

func TestUnknownWebhookTokenIsNotFound(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(), logger.Discard())
	require.NoError(t, err)
	defer a.shutdown(context.Background())

	rr := testutil.DoRequest(a.handler, testutil.NewRequestWithBody(t, http.MethodPost, "/webhooks/incoming/nope", `{"email":"a@b.test"}`))
	body := testutil.AssertStatusAndError(t, rr, http.StatusNotFound, dErrors.CodeNotFound)
	assert.Equal(t, "integration not found", body.Description)
}

func TestHealthWithoutBackingServices(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(), logger.Discard())
	require.NoError(t, err)
	defer a.shutdown(context.Background())

	rr := testutil.DoRequest(a.handler, testutil.NewRequest(t, http.MethodGet, "/health"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "ok")
}

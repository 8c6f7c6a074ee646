package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/models"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testDispatcher(baseURL string) *NotificationDispatcher {
	return &NotificationDispatcher{
		Client: &http.Client{Timeout: 5 * time.Second},
		Storefront: config.StorefrontConfig{
			BaseURL:  baseURL,
			Username: "shop",
			Password: "secret",
		},
	}
}

func TestSendPrimeCostPayload(t *testing.T) {
	var gotPath string
	var gotPayload map[string]interface{}
	var gotUser, gotPass string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := testDispatcher(srv.URL)
	value := utils.DecimalPtr(dec("42.50"))
	rec := &models.NotificationRecord{
		Kind:       models.NotificationPrimeCost,
		ExternalId: "bh-100",
		Value:      value,
	}
	if err := d.send(context.Background(), rec); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotPath != "/ajax/tsenaobnov.php" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUser != "shop" || gotPass != "secret" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotPayload["ID"] != "bh-100" {
		t.Errorf("payload ID = %v", gotPayload["ID"])
	}
	if gotPayload["primeCost"] != 42.5 {
		t.Errorf("payload primeCost = %v", gotPayload["primeCost"])
	}
}

func TestSendShipPayloadCarriesFlag(t *testing.T) {
	var gotPayload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := testDispatcher(srv.URL)
	rec := &models.NotificationRecord{Kind: models.NotificationShip, ExternalId: "ord-7"}
	if err := d.send(context.Background(), rec); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPayload["ship"] != true {
		t.Errorf("payload ship = %v", gotPayload["ship"])
	}
}

func TestSendRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := testDispatcher(srv.URL)
	rec := &models.NotificationRecord{Kind: models.NotificationPrice, ExternalId: "p-1"}
	if err := d.send(context.Background(), rec); err == nil {
		t.Fatal("expected error on 502 response")
	}
}

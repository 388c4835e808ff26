package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/config"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
)

func testConfig(tokenURL, catalogURL string) config.CopernicusConfig {
	return config.CopernicusConfig{
		Username:    "user@example.com",
		Password:    "secret",
		TokenURL:    tokenURL,
		CatalogURL:  catalogURL,
		DownloadURL: "https://zipper.example.com/odata/v1",
		MaxProducts: 20,
		Timeout:     5 * time.Second,
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.CopernicusConfig{TokenURL: "http://x", CatalogURL: "http://y"})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("error %v is not ErrMissingCredentials", err)
	}
}

func TestAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %s", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		for key, want := range map[string]string{
			"client_id":  "cdse-public",
			"username":   "user@example.com",
			"password":   "secret",
			"grant_type": "password",
		} {
			if got := r.PostForm.Get(key); got != want {
				t.Errorf("form %s = %q, want %q", key, got, want)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-123","expires_in":600}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL, "http://unused"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	token, err := client.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
}

func TestAccessTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL, "http://unused"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.AccessToken(context.Background()); err == nil {
		t.Fatal("expected error for 401 token response")
	}
}

const searchFixture = `{
	"value": [
		{
			"Id": "uuid-1",
			"Name": "S2B_MSIL2A_20260810.SAFE",
			"ContentDate": {"Start": "2026-08-10T03:21:00.000Z"},
			"Attributes": [
				{"Name": "cloudCover", "Value": 23.5},
				{"Name": "productType", "Value": "S2MSI2A"}
			]
		},
		{
			"Id": "uuid-2",
			"Name": "S2A_MSIL2A_20260805.SAFE",
			"ContentDate": {"Start": "2026-08-05T03:21:00.000Z"},
			"Attributes": [
				{"Name": "productType", "Value": "S2MSI2A"}
			]
		}
	]
}`

func TestSearchOptical(t *testing.T) {
	var gotFilter, gotAuth string

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok-abc"}`))
	})
	mux.HandleFunc("/catalog/Products", func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("$filter")
		gotAuth = r.Header.Get("Authorization")
		if top := r.URL.Query().Get("$top"); top != "20" {
			t.Errorf("$top = %s, want 20", top)
		}
		if ob := r.URL.Query().Get("$orderby"); ob != "ContentDate/Start desc" {
			t.Errorf("$orderby = %s", ob)
		}
		if exp := r.URL.Query().Get("$expand"); exp != "Attributes" {
			t.Errorf("$expand = %s", exp)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchFixture))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL+"/token", srv.URL+"/catalog"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	bbox := geo.BoundingBox{MinLon: 105, MinLat: 21, MaxLon: 106, MaxLat: 22}
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	products, err := client.Search(context.Background(), bbox, from, to, PlatformOptical)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotAuth != "Bearer tok-abc" {
		t.Errorf("authorization = %q", gotAuth)
	}
	for _, fragment := range []string{
		"Collection/Name eq 'SENTINEL-2'",
		"ContentDate/Start ge 2026-08-01T00:00:00.000Z",
		"ContentDate/Start le 2026-08-15T00:00:00.000Z",
		"OData.CSC.Intersects(area=geography'SRID=4326;POLYGON",
		"att/Name eq 'productType' and att/Value eq 'S2MSI2A'",
	} {
		if !strings.Contains(gotFilter, fragment) {
			t.Errorf("filter missing %q:\n%s", fragment, gotFilter)
		}
	}

	if len(products) != 2 {
		t.Fatalf("got %d products, want 2", len(products))
	}
	if products[0].CloudCover != 23.5 {
		t.Errorf("cloud cover = %v, want 23.5", products[0].CloudCover)
	}
	// No cloudCover attribute defaults to 100, never 0.
	if products[1].CloudCover != 100 {
		t.Errorf("unscored cloud cover = %v, want 100", products[1].CloudCover)
	}
	if products[0].Title != "S2B_MSIL2A_20260810.SAFE" {
		t.Errorf("title = %s", products[0].Title)
	}
}

func TestSearchRadarFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok"}`))
	})
	var gotFilter string
	mux.HandleFunc("/catalog/Products", func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("$filter")
		w.Write([]byte(`{"value":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL+"/token", srv.URL+"/catalog"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	bbox := geo.BoundingBox{MinLon: 105, MinLat: 21, MaxLon: 106, MaxLat: 22}
	products, err := client.Search(context.Background(), bbox, time.Now().Add(-time.Hour), time.Now(), PlatformRadar)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(products) != 0 {
		t.Errorf("got %d products, want 0", len(products))
	}

	for _, fragment := range []string{
		"Collection/Name eq 'SENTINEL-1'",
		"att/Name eq 'productType' and att/Value eq 'GRD'",
		"att/Name eq 'operationalMode' and att/Value eq 'IW'",
	} {
		if !strings.Contains(gotFilter, fragment) {
			t.Errorf("filter missing %q:\n%s", fragment, gotFilter)
		}
	}
}

func TestDownloadURL(t *testing.T) {
	client, err := NewClient(testConfig("http://t", "http://c"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got := client.DownloadURL("uuid-1")
	want := "https://zipper.example.com/odata/v1/Products(uuid-1)/$value"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

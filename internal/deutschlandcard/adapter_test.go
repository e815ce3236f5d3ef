package deutschlandcard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

var adapterNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	adapter := NewAdapter(zap.NewNop(), NewClient(zap.NewNop(), nil), Config{
		BaseURL:  server.URL,
		APIToken: "test-api-token",
	})
	adapter.now = func() time.Time { return adapterNow }
	return adapter, server
}

func testCredential() model.Credential {
	return model.Credential{
		Kind:       model.KindDeutschlandCard,
		Identifier: "6394560000012345",
		BirthDate:  "1980-01-31",
		PostalCode: "10115",
	}
}

func TestAdapter_Authenticate(t *testing.T) {
	adapter, server := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/members/login", r.URL.Path)

		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "6394560000012345", req.CardNumber)
		assert.Equal(t, "1980-01-31|10115", req.Password, "password is birthdate|postalcode")

		_ = json.NewEncoder(w).Encode(LoginResponse{Token: "tok-1"})
	})
	defer server.Close()

	sess, err := adapter.Authenticate(context.Background(), testCredential())
	require.NoError(t, err)
	assert.Contains(t, sess.Account(), "deutschlandcard:")
	assert.NotContains(t, sess.Account(), "1980-01-31", "birthdate never appears in the account label")
	assert.NotContains(t, sess.Account(), "10115")
}

func TestAdapter_FetchCoupons_Mapping(t *testing.T) {
	adapter, server := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/members/login":
			_ = json.NewEncoder(w).Encode(LoginResponse{Token: "tok-1"})
		case "/members/coupons/query":
			var req CouponQueryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, adapterNow.Add(-24*time.Hour).Format("2006-01-02T15:04:05"), req.VisibleFrom)
			assert.Equal(t, adapterNow.Add(24*time.Hour).Format("2006-01-02T15:04:05"), req.VisibleTo)

			_ = json.NewEncoder(w).Encode(CouponQueryResponse{Coupons: []Coupon{
				{
					PublicPromotionID: "p-1",
					PartnerSubgroup:   "sg-7",
					Status:            "NRG",
					VisibleFrom:       "2024-03-14T00:00:00",
					VisibleTo:         "2024-03-21T23:59:59",
					Content: CouponContent{
						Headline:         "10FACH Punkte",
						ShortDescription: "auf Obst und Gemuese",
						PartnerName:      "EDEKA",
					},
				},
				{
					PublicPromotionID: "p-2",
					Status:            "RG",
				},
				{
					PublicPromotionID: "p-3",
					Status:            "NRG",
					Content:           CouponContent{AffiliateURLApp: "https://partner.example/go"},
				},
				{
					PublicPromotionID: "p-4",
					Status:            "XX",
				},
			}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	defer server.Close()

	sess, err := adapter.Authenticate(context.Background(), testCredential())
	require.NoError(t, err)

	coupons, err := adapter.FetchCoupons(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, coupons, 4)

	assert.Equal(t, "p-1", coupons[0].ID)
	assert.Equal(t, model.StatusAvailable, coupons[0].Status)
	assert.Equal(t, "EDEKA", coupons[0].Partner)
	assert.Equal(t, "10FACH Punkte", coupons[0].Headline)
	assert.Equal(t, "sg-7", coupons[0].PartnerSubgroup)
	assert.False(t, coupons[0].ExternalRedirect)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), coupons[0].ValidFrom)

	assert.Equal(t, model.StatusActivated, coupons[1].Status)
	assert.True(t, coupons[2].ExternalRedirect, "affiliate URL marks the coupon as external")
	assert.Equal(t, model.StatusUnknown, coupons[3].Status)
	assert.Equal(t, "XX", coupons[3].RawStatus)
}

func TestAdapter_Activate(t *testing.T) {
	var activated ActivationRequest
	adapter, server := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/members/login":
			_ = json.NewEncoder(w).Encode(LoginResponse{Token: "tok-1"})
		case "/members/coupons/registration":
			assert.Equal(t, "tok-1", r.Header.Get("x-auth-token"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&activated))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		}
	})
	defer server.Close()

	sess, err := adapter.Authenticate(context.Background(), testCredential())
	require.NoError(t, err)

	err = adapter.Activate(context.Background(), sess, model.Coupon{ID: "p-1", PartnerSubgroup: "sg-7"})
	require.NoError(t, err)
	assert.Equal(t, "6394560000012345", activated.CardNumber)
	assert.Equal(t, "p-1", activated.PublicPromotionID)
	assert.Equal(t, "sg-7", activated.PartnerSubgroup)
}

func TestAdapter_FetchBalance(t *testing.T) {
	adapter, server := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/members/login":
			_ = json.NewEncoder(w).Encode(LoginResponse{Token: "tok-1"})
		case "/members/points":
			_ = json.NewEncoder(w).Encode(PointsResponse{
				Balance:          2450,
				ExpiringPoints:   120,
				DateOfNextExpiry: "2024-09-30T00:00:00.000+0200",
			})
		}
	})
	defer server.Close()

	sess, err := adapter.Authenticate(context.Background(), testCredential())
	require.NoError(t, err)

	bal, err := adapter.FetchBalance(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, int64(2450), bal.Points)
	assert.Equal(t, int64(120), bal.ExpiringPoints)
	assert.Equal(t, time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), bal.NextExpiry)
}

func TestAdapter_ForeignSessionRejected(t *testing.T) {
	adapter := NewAdapter(zap.NewNop(), NewClient(zap.NewNop(), nil), Config{BaseURL: "http://unused"})

	_, err := adapter.FetchCoupons(context.Background(), foreignSession{})
	require.Error(t, err)
}

type foreignSession struct{}

func (foreignSession) Account() string { return "other" }

package stock

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/SanmishaTech/clinicminds-sub002/internal/authz"
)

func adminRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ac := authz.Context{UserID: 1, Role: authz.RoleAdmin}
	return req.WithContext(authz.WithContext(req.Context(), ac))
}

func TestCreateRecallInsufficientStockConflicts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	h := NewHandler(nil, svc, validator.New())
	expiry := time.Date(2027, 3, 15, 0, 0, 0, 0, time.UTC)
	seedDelivery(t, repo, 2, 7, 3, "B200", expiry)

	body := `{"franchise_id":2,"medicine_id":7,"batch_number":"B200","expiry_date":"2027-03-15T00:00:00Z","quantity":4}`
	rr := httptest.NewRecorder()
	h.createRecall(rr, adminRequest(http.MethodPost, "/recalls", body))

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "batch balance below")
	require.Empty(t, repo.recalls)
}

func TestCreateRecallZeroQuantityRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	h := NewHandler(nil, svc, validator.New())

	body := `{"franchise_id":2,"medicine_id":7,"batch_number":"B200","expiry_date":"2027-03-15T00:00:00Z","quantity":0}`
	rr := httptest.NewRecorder()
	h.createRecall(rr, adminRequest(http.MethodPost, "/recalls", body))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Empty(t, repo.recalls)
}

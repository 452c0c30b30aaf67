package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/fittrack/backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	member := env.createUser(t, "Member", models.RoleUser)

	w := env.do(t, http.MethodGet, "/api/v1/admin/affiliate-codes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/admin/affiliate-codes", env.token(t, member), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/admin/affiliate-codes", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminCreateAndManageCode(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, env.createUser(t, "Admin", models.RoleAdmin))
	owner := env.createUser(t, "Coach Kim", models.RoleUser)

	w := env.do(t, http.MethodPost, "/api/v1/admin/affiliate-codes", admin, gin.H{
		"owner_id": owner.ID.String(),
	})
	requireStatus(t, w, http.StatusCreated)
	created := decode(t, w)["affiliate_code"].(map[string]interface{})
	assert.Regexp(t, `^COACHKIM\d{2}$`, created["code"])
	assert.Equal(t, "20", created["commission_percentage"])

	w = env.do(t, http.MethodPost, "/api/v1/admin/affiliate-codes", admin, gin.H{
		"owner_id":              owner.ID.String(),
		"code":                  "summer25",
		"commission_percentage": 30,
	})
	requireStatus(t, w, http.StatusCreated)

	w = env.do(t, http.MethodPost, "/api/v1/admin/affiliate-codes", admin, gin.H{
		"owner_id": owner.ID.String(),
		"code":     "SUMMER25",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/admin/affiliate-codes", admin, gin.H{
		"owner_id":              owner.ID.String(),
		"commission_percentage": 120,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/api/v1/admin/affiliate-codes/summer25/commission", admin, gin.H{
		"commission_percentage": "35.5",
	})
	requireStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodPatch, "/api/v1/admin/affiliate-codes/summer25/commission", admin, gin.H{
		"commission_percentage": -3,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/api/v1/admin/affiliate-codes/SUMMER25/active", admin, gin.H{"is_active": false})
	requireStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodPatch, "/api/v1/admin/affiliate-codes/SUMMER25/active", admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/admin/affiliate-codes/SUMMER25", admin, nil)
	requireStatus(t, w, http.StatusOK)
	body := decode(t, w)
	code := body["affiliate_code"].(map[string]interface{})
	assert.Equal(t, false, code["is_active"])
	assert.Equal(t, "35.5", code["commission_percentage"])
	assert.NotNil(t, body["stats"])

	w = env.do(t, http.MethodGet, "/api/v1/admin/affiliate-codes/NOPE", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/admin/affiliate-codes?owner_id="+owner.ID.String(), admin, nil)
	requireStatus(t, w, http.StatusOK)
	assert.EqualValues(t, 2, decode(t, w)["count"])
}

func TestAdminListCommissions(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, env.createUser(t, "Admin", models.RoleAdmin))
	env.seedCode(t, "SUMMER25", "30")
	member := env.createUser(t, "Member", models.RoleUser)
	_, err := env.svc.Tracker.RegisterReferral(context.Background(), member.ID, "SUMMER25")
	require.NoError(t, err)

	env.convert(t, member.ID, "tx_1")
	env.convert(t, member.ID, "tx_2")

	w := env.do(t, http.MethodGet, "/api/v1/admin/commissions?code=summer25&status=pending&user_id="+member.ID.String(), admin, nil)
	requireStatus(t, w, http.StatusOK)
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/v1/admin/commissions?status=paid", admin, nil)
	requireStatus(t, w, http.StatusOK)
	assert.EqualValues(t, 0, decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/v1/admin/commissions?status=bogus", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/admin/commissions?from=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/admin/commissions?from=2020-01-01&limit=1", admin, nil)
	requireStatus(t, w, http.StatusOK)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

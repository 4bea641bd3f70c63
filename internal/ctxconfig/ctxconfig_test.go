package ctxconfig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/ytmentions/internal/config"
)

func TestGetConfig(t *testing.T) {
	a := assert.New(t)

	a.Equal(config.Defaults(), GetConfig(context.Background()))

	cfg := config.Defaults()
	cfg.OperatorName = "alice"

	var seen config.Config
	Register(cfg)(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs", nil), func(rw http.ResponseWriter, r *http.Request) {
		seen = GetConfig(r.Context())
	})

	a.Equal("alice", seen.OperatorName)
}

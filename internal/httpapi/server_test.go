package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"giveaway-bot/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticLister struct {
	giveaways []storage.Giveaway
	asked     string
}

func (s *staticLister) Active(guildID string) []storage.Giveaway {
	s.asked = guildID
	return s.giveaways
}

func TestHealth(t *testing.T) {
	srv := New(":0", &staticLister{}, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestListGiveaways(t *testing.T) {
	endsAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	lister := &staticLister{giveaways: []storage.Giveaway{{
		GuildID: "g1", ChannelID: "c1", MessageID: "m1", Prize: "Nitro",
		WinnerCount: 2, EndsAt: endsAt, Entered: []string{"u1", "u2", "u3"},
	}}}
	srv := New(":0", lister, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/giveaways?guild_id=g1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "g1", lister.asked)

	var body struct {
		Giveaways []giveawayView `json:"giveaways"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Giveaways, 1)
	assert.Equal(t, "m1", body.Giveaways[0].MessageID)
	assert.Equal(t, 3, body.Giveaways[0].Participants)
	assert.True(t, endsAt.Equal(body.Giveaways[0].EndsAt))
}

func TestReadyReportsFailingCheck(t *testing.T) {
	checks := map[string]Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}
	srv := New(":0", &staticLister{}, checks, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis unavailable")
}

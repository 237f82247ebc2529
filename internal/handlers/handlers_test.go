package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RUBclim/vpf-730/internal/config"
	"github.com/RUBclim/vpf-730/internal/storage/sqlite"
	"github.com/RUBclim/vpf-730/internal/types"
)

func TestPostDataSendsAuthorizedRequest(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewPostData(srv.Client())
	cfg := &config.Config{Endpoint: srv.URL, APIKey: "secret-key"}
	msg := types.NewMessage(TaskPostData, types.Measurement{PrecipitationTypeMsg: types.PrecipNone, ObstructionToVision: types.ObstructionNone})

	require.NoError(t, h(context.Background(), msg, cfg))
	assert.Equal(t, "secret-key", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestPostDataNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	h := NewPostData(srv.Client())
	cfg := &config.Config{Endpoint: srv.URL, APIKey: "secret-key"}
	msg := types.NewMessage(TaskPostData, types.Measurement{PrecipitationTypeMsg: types.PrecipNone, ObstructionToVision: types.ObstructionNone})

	err := h(context.Background(), msg, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSaveLocallyInsertsMeasurement(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	h := NewSaveLocally(store)
	m := types.Measurement{Timestamp: 42, PrecipitationTypeMsg: types.PrecipNone, ObstructionToVision: types.ObstructionNone}
	msg := types.NewMessage(TaskSaveLocally, m)

	require.NoError(t, h(context.Background(), msg, &config.Config{}))

	all, err := store.AllMeasurements(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(42), all[0].Timestamp)
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"simpleml/internal/api"
	"simpleml/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/predict", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "bad upload: missing file field"})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if !strings.HasPrefix(string(data), "NAMA") || header.Filename != "kelas.csv" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "feature mismatch: input lacks UJIAN1"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.PredictResponse{
			SessionID:   "abc",
			Rows:        1,
			AtRisk:      1,
			Importance:  []ml.FeatureImportance{{Name: "UJIAN1", MeanAbsSHAP: 0.4}},
			Predictions: []api.StudentPrediction{{Row: 1, Name: "Aisyah", RiskLevel: "At Risk", Probability: 0.8}},
			DownloadURL: "/sessions/abc/download",
		})
	})

	mux.HandleFunc("/sessions/abc/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		io.WriteString(w, "NAMA,UJIAN1,Risk_Level\nAisyah,20,At Risk\n")
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok", ModelVersion: "1.0.0"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Predict(t *testing.T) {
	srv := fakeServer(t)
	c := New(srv.URL+"/", 5*time.Second)

	resp, err := c.Predict(context.Background(), "kelas.csv", strings.NewReader("NAMA,UJIAN1\nAisyah,20\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.SessionID)
	assert.Equal(t, 1, resp.AtRisk)
	require.Len(t, resp.Predictions, 1)
	assert.Equal(t, "Aisyah", resp.Predictions[0].Name)
}

func TestClient_PredictError(t *testing.T) {
	srv := fakeServer(t)
	c := New(srv.URL, 5*time.Second)

	_, err := c.Predict(context.Background(), "other.csv", strings.NewReader("Name\nAmy\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServer))
	assert.Contains(t, err.Error(), "feature mismatch")
	assert.Contains(t, err.Error(), "400")
}

func TestClient_Download(t *testing.T) {
	srv := fakeServer(t)
	c := New(srv.URL, 0)

	data, err := c.Download(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "NAMA,UJIAN1,Risk_Level\nAisyah,20,At Risk\n", string(data))

	_, err = c.Download(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrServer)
}

func TestClient_Health(t *testing.T) {
	srv := fakeServer(t)
	c := New(srv.URL, time.Second)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", health.ModelVersion)
}

func TestClient_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", 500*time.Millisecond)

	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

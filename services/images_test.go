package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walla-bot/models"
)

func TestImageFileName(t *testing.T) {
	tests := []struct {
		listing *models.Listing
		want    string
	}{
		{&models.Listing{ID: "101", Title: "Trek Marlin 7"}, "101_Trek_Marlin_7.jpg"},
		{&models.Listing{ID: "102", Title: "Bici / carretera: 54cm?"}, "102_Bici_carretera_54cm.jpg"},
		{&models.Listing{ID: "103", Title: "abcdefghijklmnopqrstuvwxyz0123456789"}, "103_abcdefghijklmnopqrstuvwxyz0123.jpg"},
		{&models.Listing{ID: "104", Title: "///"}, "104.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ImageFileName(tt.listing))
	}
}

func TestImageDownloaderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "images")
	d := NewImageDownloader(dir, newTestLogger())
	d.retry.MaxAttempts = 1

	in := []*models.Listing{
		{ID: "1", Title: "Ok", ImageURL: srv.URL + "/1.jpg"},
		{ID: "2", Title: "Missing", ImageURL: srv.URL + "/missing.jpg"},
		{ID: "3", Title: "No image"},
	}

	out := d.Fetch(context.Background(), in)
	require.Len(t, out, 3)

	assert.Equal(t, filepath.Join(dir, "1_Ok.jpg"), out[0].ImagePath)
	data, err := os.ReadFile(out[0].ImagePath)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	assert.Empty(t, out[1].ImagePath)
	assert.Empty(t, out[2].ImagePath)
	assert.Empty(t, in[0].ImagePath, "input listings must not be modified")
}

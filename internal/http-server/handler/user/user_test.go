package user

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	repomem "attachstore/internal/repository/blob/memory"
	storemem "attachstore/internal/storage/memory"

	"attachstore/internal/config"
	"attachstore/internal/http-server/handler/user/dto"
	"attachstore/internal/inspector"
	"attachstore/internal/usecase/attachment"
	blob_uc "attachstore/internal/usecase/blob"
	"attachstore/internal/usecase/unit"
	user_uc "attachstore/internal/usecase/user"
	variant_uc "attachstore/internal/usecase/variant"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	zlog.Init()

	cfg := &config.Config{}
	cfg.Upload.MaxSize = 1 << 20
	cfg.Upload.AllowedTypes = []string{"image/*"}
	cfg.Storage.TempDir = t.TempDir()

	r := repomem.New()
	st := storemem.New()
	ins := inspector.New()
	blobs := blob_uc.NewService(r, st, nil, &zlog.Logger, retry.Strategy{Attempts: 1})
	exec := unit.NewExecutor(r, st, blobs, &zlog.Logger)
	variants := variant_uc.NewService(r, st, blobs, ins, &zlog.Logger, cfg.Storage.TempDir)
	binder := attachment.NewBinder(ins)
	uc := user_uc.NewUsecase(r, binder, exec, blobs, variants, cfg, &zlog.Logger)
	h := NewUserHandler(uc, cfg.Upload.MaxSize, &zlog.Logger)

	mux := chi.NewRouter()
	mux.Post("/users", h.CreateUser)
	mux.Get("/users/{id}", h.GetUser)
	mux.Put("/users/{id}/avatar", h.ReplaceAvatar)
	mux.Delete("/users/{id}", h.DeleteUser)
	mux.Post("/users/{id}/avatar/variants", h.CreateVariants)
	mux.Get("/users/{id}/avatar/variants/{label}", h.GetVariant)
	return mux
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32))))
	return buf.Bytes()
}

func multipartBody(t *testing.T, name string, avatar []byte, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if name != "" {
		require.NoError(t, w.WriteField("name", name))
	}
	if avatar != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="avatar"; filename="avatar.png"`)
		hdr.Set("Content-Type", contentType)
		part, err := w.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(avatar)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func createUser(t *testing.T, mux http.Handler) dto.UserResponse {
	t.Helper()
	body, contentType := multipartBody(t, "ada", pngBytes(t), "image/png")
	req := httptest.NewRequest(http.MethodPost, "/users", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp dto.UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateUserEndpoint(t *testing.T) {
	mux := newRouter(t)

	resp := createUser(t, mux)
	assert.Equal(t, "ada", resp.Name)
	require.NotNil(t, resp.Avatar)
	assert.Equal(t, "image/png", resp.Avatar.ContentType)
	assert.Equal(t, "uploads/users/"+resp.ID+"/avatar.png", resp.Avatar.Key)
	assert.NotEmpty(t, resp.Avatar.URL)
}

func TestCreateUserWithoutName(t *testing.T) {
	mux := newRouter(t)

	body, contentType := multipartBody(t, "", pngBytes(t), "image/png")
	req := httptest.NewRequest(http.MethodPost, "/users", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUserRejectsContentType(t *testing.T) {
	mux := newRouter(t)

	body, contentType := multipartBody(t, "ada", []byte("%PDF-fake"), "application/pdf")
	req := httptest.NewRequest(http.MethodPost, "/users", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Fields["avatar"])
}

func TestGetUserEndpoint(t *testing.T) {
	mux := newRouter(t)
	created := createUser(t, mux)

	req := httptest.NewRequest(http.MethodGet, "/users/"+created.ID, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/absent", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplaceAvatarClearsWithEmptyBody(t *testing.T) {
	mux := newRouter(t)
	created := createUser(t, mux)

	req := httptest.NewRequest(http.MethodPut, "/users/"+created.ID+"/avatar", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp dto.UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Avatar)
}

func TestDeleteUserEndpoint(t *testing.T) {
	mux := newRouter(t)
	created := createUser(t, mux)

	req := httptest.NewRequest(http.MethodDelete, "/users/"+created.ID, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/"+created.ID, nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVariantEndpoints(t *testing.T) {
	mux := newRouter(t)
	created := createUser(t, mux)

	payload := map[string]any{
		"labels":  []string{"thumb"},
		"formats": []string{"png"},
		"transform": map[string]any{
			"type":        "thumbnail",
			"size":        16,
			"crop_to_fit": true,
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/users/"+created.ID+"/avatar/variants", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var variants []dto.VariantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &variants))
	require.Len(t, variants, 1)
	assert.Equal(t, "thumb", variants[0].Variant)

	req = httptest.NewRequest(http.MethodGet, "/users/"+created.ID+"/avatar/variants/thumb?format=png", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got dto.VariantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, variants[0].BlobID, got.BlobID)
	assert.NotEmpty(t, got.URL)

	req = httptest.NewRequest(http.MethodGet, "/users/"+created.ID+"/avatar/variants/missing?format=png", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateVariantsRejectsBadTransform(t *testing.T) {
	mux := newRouter(t)
	created := createUser(t, mux)

	body := []byte(`{"labels":["thumb"],"transform":{"type":"explode"}}`)
	req := httptest.NewRequest(http.MethodPost, "/users/"+created.ID+"/avatar/variants", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

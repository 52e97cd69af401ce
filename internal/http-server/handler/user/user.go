package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/zlog"

	"attachstore/internal/domain"
	"attachstore/internal/http-server/handler/user/dto"
	"attachstore/internal/transform"
	"attachstore/internal/usecase/attachment"
	blob_uc "attachstore/internal/usecase/blob"
	"attachstore/internal/usecase/unit"
	user_uc "attachstore/internal/usecase/user"
	"attachstore/internal/usecase/variant"
)

const maxMemory = 32 << 20

type UserHandler struct {
	usecase   userUsecase
	validate  *validator.Validate
	logger    *zlog.Zerolog
	maxUpload int64
}

func NewUserHandler(usecase userUsecase, maxUpload int64, logger *zlog.Zerolog) *UserHandler {
	if maxUpload <= 0 {
		maxUpload = domain.DefaultMaxUploadSize
	}
	return &UserHandler{
		usecase:   usecase,
		validate:  validator.New(),
		logger:    logger,
		maxUpload: maxUpload,
	}
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	src, cleanup, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	defer cleanup()

	name := r.FormValue("name")
	if name == "" {
		h.respondError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	u, err := h.usecase.CreateUser(ctx, name, src)
	if err != nil {
		h.handleUnitError(w, err, "Failed to create user")
		return
	}

	h.logger.Info().Str("user_id", u.ID).Str("name", u.Name).Msg("User created")
	h.respondJSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "User ID is required", nil)
		return
	}

	u, err := h.usecase.GetUser(r.Context(), id)
	if err != nil {
		h.handleLookupError(w, err, id)
		return
	}

	h.respondJSON(w, http.StatusOK, toUserResponse(u))
}

// ReplaceAvatar updates the avatar field: a multipart body with an
// "avatar" part swaps the file, an empty body clears it.
func (h *UserHandler) ReplaceAvatar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "User ID is required", nil)
		return
	}

	var src *attachment.Source
	cleanup := func() {}
	if r.ContentLength != 0 {
		var err error
		src, cleanup, err = h.readUpload(w, r)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}
	defer cleanup()

	u, err := h.usecase.ReplaceAvatar(r.Context(), id, src)
	if err != nil {
		h.handleUnitError(w, err, "Failed to replace avatar")
		return
	}

	h.logger.Info().Str("user_id", id).Msg("Avatar replaced")
	h.respondJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "User ID is required", nil)
		return
	}

	async := r.URL.Query().Get("purge") == "async"
	if err := h.usecase.DeleteUser(r.Context(), id, async); err != nil {
		h.handleLookupError(w, err, id)
		return
	}

	h.logger.Info().Str("user_id", id).Bool("async", async).Msg("User deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) CreateVariants(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "User ID is required", nil)
		return
	}

	var req dto.CreateVariantsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	tf, err := buildTransform(req.Transform)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	blobs, err := h.usecase.CreateAvatarVariants(r.Context(), id, req.Labels, req.Formats, tf)
	if err != nil {
		h.handleVariantError(w, err, id)
		return
	}

	out := make([]dto.VariantResponse, 0, len(blobs))
	for _, b := range blobs {
		out = append(out, toVariantResponse(b, ""))
	}

	h.logger.Info().Str("user_id", id).Int("variants", len(out)).Msg("Variants created")
	h.respondJSON(w, http.StatusCreated, out)
}

func (h *UserHandler) GetVariant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	label := chi.URLParam(r, "label")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(domain.FormatJPEG)
	}

	b, url, err := h.usecase.GetAvatarVariant(r.Context(), id, label, format)
	if err != nil {
		h.handleVariantError(w, err, id)
		return
	}

	h.respondJSON(w, http.StatusOK, toVariantResponse(b, url))
}

// readUpload spools the "avatar" multipart part to a temp file and
// hands back a source the binder can stat. The cleanup removes the
// temp file once the unit of work has uploaded (or abandoned) it.
func (h *UserHandler) readUpload(w http.ResponseWriter, r *http.Request) (*attachment.Source, func(), error) {
	noop := func() {}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, noop, fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile(user_uc.AvatarField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, fmt.Errorf("failed to read avatar part: %w", err)
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "attachstore-upload-*")
	if err != nil {
		return nil, noop, fmt.Errorf("failed to spool upload: %w", err)
	}

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, noop, fmt.Errorf("failed to spool upload: %w", err)
	}
	tmp.Close()

	src := &attachment.Source{
		Path:        tmp.Name(),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}
	return src, func() { os.Remove(tmp.Name()) }, nil
}

func buildTransform(spec dto.TransformSpec) (variant.TransformFunc, error) {
	switch spec.Type {
	case "resize":
		return transform.Resize(spec.Width, spec.Height, spec.KeepAspect), nil
	case "thumbnail":
		return transform.Thumbnail(spec.Size, spec.CropToFit), nil
	case "watermark":
		return transform.Watermark(spec.Text, domain.WatermarkPosition(spec.Position), spec.Opacity), nil
	default:
		return nil, fmt.Errorf("unsupported transform type: %s", spec.Type)
	}
}

func (h *UserHandler) handleUnitError(w http.ResponseWriter, err error, message string) {
	var stepErr *unit.StepError
	switch {
	case errors.As(err, &stepErr) && errors.Is(stepErr.Err, attachment.ErrValidation):
		resp := dto.ErrorResponse{
			Error:   http.StatusText(http.StatusUnprocessableEntity),
			Message: "Validation failed",
		}
		if stepErr.Changeset != nil {
			resp.Fields = stepErr.Changeset.Errors()
		}
		h.respondJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, blob_uc.ErrUnmappableContentType):
		h.respondError(w, http.StatusUnprocessableEntity, "No extension known for uploaded content type", nil)
	case errors.Is(err, user_uc.ErrUserNotFound):
		h.respondError(w, http.StatusNotFound, "User not found", nil)
	default:
		h.logger.Error().Err(err).Msg(message)
		h.respondError(w, http.StatusInternalServerError, message, err)
	}
}

func (h *UserHandler) handleLookupError(w http.ResponseWriter, err error, userID string) {
	switch {
	case errors.Is(err, user_uc.ErrUserNotFound):
		h.respondError(w, http.StatusNotFound, "User not found", nil)
	default:
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Request failed")
		h.respondError(w, http.StatusInternalServerError, "Request failed", err)
	}
}

func (h *UserHandler) handleVariantError(w http.ResponseWriter, err error, userID string) {
	var pipeErr *variant.PipelineError
	switch {
	case errors.Is(err, user_uc.ErrUserNotFound):
		h.respondError(w, http.StatusNotFound, "User not found", nil)
	case errors.Is(err, user_uc.ErrNoAvatar):
		h.respondError(w, http.StatusNotFound, "User has no avatar", nil)
	case errors.Is(err, variant.ErrNotAnOriginal), errors.Is(err, variant.ErrUnknownFormat):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.As(err, &pipeErr):
		h.logger.Error().Err(pipeErr.Err).Str("user_id", userID).Str("step", pipeErr.Step).Msg("Variant derivation failed")
		h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Variant step %s failed", pipeErr.Step), pipeErr.Err)
	default:
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Variant request failed")
		h.respondError(w, http.StatusInternalServerError, "Variant request failed", err)
	}
}

func toUserResponse(u *user_uc.User) dto.UserResponse {
	resp := dto.UserResponse{ID: u.ID, Name: u.Name}
	if u.Avatar != nil {
		resp.Avatar = &dto.AvatarResponse{
			BlobID:      u.Avatar.ID,
			Key:         u.Avatar.Key,
			Filename:    u.Avatar.Filename,
			ContentType: u.Avatar.ContentType,
			ByteSize:    u.Avatar.ByteSize,
			Checksum:    u.Avatar.Checksum,
			Metadata:    u.Avatar.Metadata,
			URL:         u.AvatarURL,
		}
	}
	return resp
}

func toVariantResponse(b *domain.Blob, url string) dto.VariantResponse {
	return dto.VariantResponse{
		BlobID:      b.ID,
		Key:         b.Key,
		Variant:     b.Variant,
		ContentType: b.ContentType,
		ByteSize:    b.ByteSize,
		URL:         url,
	}
}

func (h *UserHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Interface("data", data).Msg("Failed to encode response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *UserHandler) respondError(w http.ResponseWriter, status int, message string, err error) {
	response := dto.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	if err != nil {
		response.Details = err.Error()
	}
	h.respondJSON(w, status, response)
}

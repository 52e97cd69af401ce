package dto

type AvatarResponse struct {
	BlobID      string         `json:"blob_id"`
	Key         string         `json:"key"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	ByteSize    int64          `json:"byte_size"`
	Checksum    string         `json:"checksum"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	URL         string         `json:"url,omitempty"`
}

type UserResponse struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Avatar *AvatarResponse `json:"avatar,omitempty"`
}

type TransformSpec struct {
	Type       string  `json:"type" validate:"required,oneof=resize thumbnail watermark"`
	Width      int     `json:"width" validate:"omitempty,min=1"`
	Height     int     `json:"height" validate:"omitempty,min=1"`
	KeepAspect bool    `json:"keep_aspect"`
	Size       int     `json:"size" validate:"omitempty,min=1"`
	CropToFit  bool    `json:"crop_to_fit"`
	Text       string  `json:"text"`
	Position   string  `json:"position"`
	Opacity    float64 `json:"opacity" validate:"omitempty,gt=0,lte=1"`
}

type CreateVariantsRequest struct {
	Labels    []string      `json:"labels" validate:"required,min=1,dive,required"`
	Formats   []string      `json:"formats" validate:"omitempty,dive,oneof=jpeg jpg png gif webp bmp tiff"`
	Transform TransformSpec `json:"transform" validate:"required"`
}

type VariantResponse struct {
	BlobID      string `json:"blob_id"`
	Key         string `json:"key"`
	Variant     string `json:"variant"`
	ContentType string `json:"content_type"`
	ByteSize    int64  `json:"byte_size"`
	URL         string `json:"url,omitempty"`
}

type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Details string              `json:"details,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

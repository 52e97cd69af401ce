package domain

import "time"

// PurgeTask asks the purge worker to remove a blob, its variants and
// their remote bytes outside of the request that scheduled it.
type PurgeTask struct {
	ID          string    `json:"id"`
	BlobID      string    `json:"blob_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type WatermarkPosition string

const (
	WatermarkTopLeft      WatermarkPosition = "top-left"
	WatermarkTopRight     WatermarkPosition = "top-right"
	WatermarkTopCenter    WatermarkPosition = "top-center"
	WatermarkBottomLeft   WatermarkPosition = "bottom-left"
	WatermarkBottomRight  WatermarkPosition = "bottom-right"
	WatermarkBottomCenter WatermarkPosition = "bottom-center"
	WatermarkCenter       WatermarkPosition = "center"
)

const (
	KafkaTopicPurge = "blob-purge"
	KafkaGroupID    = "attachstore-purge-group"
)

const (
	DefaultWatermarkText    = "© attachstore"
	DefaultWatermarkOpacity = 0.5
)

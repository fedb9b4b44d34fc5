package model

// Track is a playable item supplied by a track source
type Track struct {
	ID              string `json:"id" bson:"id"`
	ExternalMediaID string `json:"externalMediaId" bson:"externalMediaId"` // e.g. YouTube video id
	Title           string `json:"title" bson:"title"`
	Artist          string `json:"artist" bson:"artist"`
	ThumbnailRef    string `json:"thumbnailRef,omitempty" bson:"thumbnailRef,omitempty"`
	DurationLabel   string `json:"durationLabel,omitempty" bson:"durationLabel,omitempty"`
}

package handlers

type SyncRequest struct {
	ProfileID string `json:"profileId"`
	Bucket    string `json:"bucket" binding:"required"`
	Prefix    string `json:"prefix"`
	LocalPath string `json:"localPath" binding:"required"`
	Direction string `json:"direction" binding:"required"`
}

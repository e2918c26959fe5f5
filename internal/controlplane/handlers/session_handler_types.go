package handlers

import bsync "github.com/openmined/bucketsync/internal/sync"

type StartSessionRequest struct {
	ProfileID string `json:"profileId"`
	Bucket    string `json:"bucket" binding:"required"`
	Prefix    string `json:"prefix"`
	LocalPath string `json:"localPath" binding:"required"`
}

type StartSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type ListSessionsResponse struct {
	Sessions []bsync.SessionState `json:"sessions"`
}

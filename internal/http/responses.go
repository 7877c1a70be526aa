package http

import (
	"time"

	"deepfake-detector/internal/domain"
)

type UserResponse struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	CreatedAt *string `json:"createdAt,omitempty"`
}

type AuthResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

type DetectionResponse struct {
	ID        string        `json:"id"`
	FileName  string        `json:"fileName"`
	FileType  domain.Kind   `json:"fileType"`
	FileURL   string        `json:"fileUrl"`
	FileSize  int64         `json:"fileSize"`
	Result    domain.Result `json:"result"`
	CreatedAt string        `json:"createdAt"`
}

type AnalysisResponse struct {
	Message   string            `json:"message"`
	Detection DetectionResponse `json:"detection"`
}

type StatsResponse struct {
	TotalDetections    int64 `json:"totalDetections"`
	ImageDetections    int64 `json:"imageDetections"`
	VideoDetections    int64 `json:"videoDetections"`
	DeepfakeDetections int64 `json:"deepfakeDetections"`
}

type ProfileResponse struct {
	User  UserResponse  `json:"user"`
	Stats StatsResponse `json:"stats"`
}

type UserStatsResponse struct {
	Stats            StatsResponse       `json:"stats"`
	RecentDetections []DetectionResponse `json:"recentDetections"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func userToResponse(u *domain.User) UserResponse {
	resp := UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
	if !u.CreatedAt.IsZero() {
		v := u.CreatedAt.UTC().Format(time.RFC3339)
		resp.CreatedAt = &v
	}
	return resp
}

func detectionToResponse(d domain.Detection) DetectionResponse {
	return DetectionResponse{
		ID:        d.ID,
		FileName:  d.FileName,
		FileType:  d.FileType,
		FileURL:   d.FileURL,
		FileSize:  d.FileSize,
		Result:    d.Result,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func detectionsToResponse(list []domain.Detection) []DetectionResponse {
	resp := make([]DetectionResponse, len(list))
	for i := range list {
		resp[i] = detectionToResponse(list[i])
	}
	return resp
}

func statsToResponse(s domain.Stats) StatsResponse {
	return StatsResponse{
		TotalDetections:    s.Total,
		ImageDetections:    s.Images,
		VideoDetections:    s.Videos,
		DeepfakeDetections: s.Deepfakes,
	}
}

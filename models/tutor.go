package models

type ChatRequest struct {
	Input string `json:"input"`
}

type ChatResponse struct {
	UserID string `json:"user_id"`
	Turn   *Turn  `json:"turn"`
}

type HistoryResponse struct {
	UserID string `json:"user_id"`
	Turns  []Turn `json:"turns"`
}

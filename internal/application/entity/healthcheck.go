package entity

type HealthCheckResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
	Checks  struct {
		Database struct {
			Status bool   `json:"status"`
			Type   string `json:"type"`
			Error  string `json:"error,omitempty"`
		} `json:"database"`
		Scheduler struct {
			Status bool `json:"status"`
		} `json:"scheduler"`
	} `json:"checks"`
}

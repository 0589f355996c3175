package api

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

type OutputResponse struct {
	Output  string `json:"output"`
	Active  bool   `json:"active"`
	Pane    string `json:"pane,omitempty"`
	Session string `json:"session,omitempty"`
	Window  string `json:"window,omitempty"`
}

type SendRequest struct {
	Text string `json:"text"`
	Pane string `json:"pane,omitempty"`
}

type SendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Pane    string `json:"pane,omitempty"`
}

type InstanceItem struct {
	Pane        string `json:"pane"`
	Session     string `json:"session"`
	Window      string `json:"window"`
	DisplayName string `json:"display_name"`
	LastActive  string `json:"last_active"`
}

type InstancesResponse struct {
	Instances []InstanceItem `json:"instances"`
	Current   string         `json:"current,omitempty"`
	Pruned    int            `json:"pruned,omitempty"`
}

type SwitchRequest struct {
	Pane string `json:"pane"`
}

type SwitchResponse struct {
	Success bool   `json:"success"`
	Pane    string `json:"pane"`
	Session string `json:"session"`
	Window  string `json:"window"`
}

package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// HealthStatus is the result of a health probe. Details holds the upstream
// health body and is flattened into the top level when encoded.
type HealthStatus struct {
	Status           string
	Error            string
	ServiceAvailable bool
	Details          map[string]any
}

func (h HealthStatus) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(h.Details)+3)
	for k, v := range h.Details {
		out[k] = v
	}
	if h.Status != "" {
		out["status"] = h.Status
	}
	if h.Error != "" {
		out["error"] = h.Error
	}
	out["serviceAvailable"] = h.ServiceAvailable
	return json.Marshal(out)
}

func degraded(msg string) HealthStatus {
	return HealthStatus{Status: "error", Error: msg, ServiceAvailable: false}
}

// Health probes {base}/health. It never returns an error: every failure
// becomes a degraded status.
func (c *Client) Health(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return degraded(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCfg.Client.Do(req)
	if err != nil {
		log.Printf("ERROR: prediction health check: %v", err)
		return degraded(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("ERROR: prediction health check failed with status: %d", resp.StatusCode)
		return degraded(fmt.Sprintf("Model API returned status %d", resp.StatusCode))
	}

	var details map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return degraded(err.Error())
	}

	status, ok := details["status"].(string)
	if ok {
		delete(details, "status")
	}
	delete(details, "serviceAvailable")
	return HealthStatus{Status: status, ServiceAvailable: true, Details: details}
}

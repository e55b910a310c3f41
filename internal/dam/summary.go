package dam

import "time"

// Summary is the dashboard view over every monitored dam.
type Summary struct {
	TotalDams     int            `json:"totalDams"`
	ByStatus      map[Status]int `json:"byStatus"`
	TotalCapacity float64        `json:"totalCapacity"`
	TotalLevel    float64        `json:"totalLevel"`
	FillPercent   float64        `json:"fillPercent"`
	WorstStatus   Status         `json:"worstStatus"`
	LastUpdated   time.Time      `json:"lastUpdated"`
	GeneratedAt   time.Time      `json:"generatedAt"`
}

// Summarize combines dams into a single Summary. Capacity and level are
// summed; the fill percentage is computed over the sums, and the worst status
// is the most severe one seen.
func Summarize(dams []Entity, now time.Time) Summary {
	sum := Summary{
		ByStatus: map[Status]int{
			StatusNormal:   0,
			StatusWarning:  0,
			StatusCritical: 0,
		},
		WorstStatus: StatusNormal,
		GeneratedAt: now,
	}

	for _, d := range dams {
		sum.TotalDams++
		sum.TotalCapacity += d.Capacity
		sum.TotalLevel += d.CurrentLevel

		status := d.Status
		if status == "" {
			status = StatusNormal
		}
		sum.ByStatus[status]++
		if status.Severity() > sum.WorstStatus.Severity() {
			sum.WorstStatus = status
		}

		if d.LastUpdated.After(sum.LastUpdated) {
			sum.LastUpdated = d.LastUpdated
		}
	}

	if sum.TotalCapacity > 0 {
		sum.FillPercent = sum.TotalLevel / sum.TotalCapacity * 100
	}
	return sum
}

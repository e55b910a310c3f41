package dam

// Classify derives a status from the current level and the two thresholds.
// Critical is checked first and ties resolve toward the more severe status.
// There is no hysteresis: a level sitting exactly on a threshold flips on
// every evaluation that crosses it.
func Classify(level, safetyThreshold, criticalLevel float64) Status {
	switch {
	case level >= criticalLevel:
		return StatusCritical
	case level >= safetyThreshold:
		return StatusWarning
	default:
		return StatusNormal
	}
}

package protocol

import "math"

// ClampVolumeDB bounds an outgoing volume to [-90, 0] dB.
func ClampVolumeDB(db int) int {
	if db < MinVolumeDB {
		return MinVolumeDB
	}
	if db > MaxVolumeDB {
		return MaxVolumeDB
	}
	return db
}

// ValidVolumeDB reports whether an incoming volume is inside [-90, 0] dB.
func ValidVolumeDB(db int) bool {
	return db >= MinVolumeDB && db <= MaxVolumeDB
}

// DBToPercent maps [-90, 0] dB linearly onto [0, 100] percent.
func DBToPercent(db int) int {
	db = ClampVolumeDB(db)
	pct := int(math.Round(float64(db-MinVolumeDB) / 90 * 100))
	return clampPercent(pct)
}

// PercentToDB is the inverse of DBToPercent.
func PercentToDB(pct int) int {
	pct = clampPercent(pct)
	return ClampVolumeDB(int(math.Round(float64(pct)*90/100 - 90)))
}

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

package soletic

// UnknownTimestamp is returned when the search completed but no record
// qualified. It is a result, not a failure.
const UnknownTimestamp int64 = -1

// FirstValidBlockTime returns the block time of the first successful record
// with a recorded time, scanning in the given (oldest first) order.
func FirstValidBlockTime(records []SignatureRecord) int64 {
	for _, record := range records {
		if record.Failed() || record.BlockTime == nil || *record.BlockTime == 0 {
			continue
		}
		return *record.BlockTime
	}
	return UnknownTimestamp
}

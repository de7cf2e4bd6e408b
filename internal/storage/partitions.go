package storage

import (
	"fmt"

	"ratio-backtester/internal/model"
)

// partitionKey is the typed coordinate of an event partition. Physical table
// names come only from the fixed lookup below, never from interpolating
// request values into SQL identifiers.
type partitionKey struct {
	Method  model.Method
	Session model.Session
}

var eventPartitions = map[partitionKey]string{
	{model.MethodEqualMean, model.SessionPrimary}:       "sim_events_equal_mean_primary",
	{model.MethodEqualMean, model.SessionExtended}:      "sim_events_equal_mean_extended",
	{model.MethodVWAPRatio, model.SessionPrimary}:       "sim_events_vwap_ratio_primary",
	{model.MethodVWAPRatio, model.SessionExtended}:      "sim_events_vwap_ratio_extended",
	{model.MethodVolWeighted, model.SessionPrimary}:     "sim_events_vol_weighted_primary",
	{model.MethodVolWeighted, model.SessionExtended}:    "sim_events_vol_weighted_extended",
	{model.MethodWinsorized, model.SessionPrimary}:      "sim_events_winsorized_primary",
	{model.MethodWinsorized, model.SessionExtended}:     "sim_events_winsorized_extended",
	{model.MethodWeightedMedian, model.SessionPrimary}:  "sim_events_weighted_median_primary",
	{model.MethodWeightedMedian, model.SessionExtended}: "sim_events_weighted_median_extended",
}

// eventPartition resolves the physical table for a (method, session) pair.
func eventPartition(method model.Method, session model.Session) (string, error) {
	table, ok := eventPartitions[partitionKey{Method: method, Session: session}]
	if !ok {
		return "", fmt.Errorf("storage: no event partition for method %q session %q", method, session)
	}
	return table, nil
}

// Package enrichment applies session telemetry: activity heartbeats, geo
// enrichment and UTM attribution.
//
// Each writer owns a disjoint set of session fields (activity, geo, or the
// attribution row), so concurrent writers for one session never overwrite
// each other. Every failure other than a malformed session id is reported
// as a *SoftError carrying a stable reason code.
package enrichment

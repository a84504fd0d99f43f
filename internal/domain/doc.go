// Package domain models geospatial incident records and the weekly calendar
// used to play them back.
//
// # Weeks
//
// A timeline is anchored at an epoch, a UTC calendar date that marks week 0.
// Every timestamp maps to a week index:
//
//	week = floor((timestamp - epoch) / 7 days)
//
// Timestamps before the epoch yield a negative index and are treated as
// invalid by the bucketing engine. The range end only bounds playback:
//
//	totalWeeks = floor((end - epoch) / 7 days)
//
// With the default range (2020-01-01 through 2024-12-31) that is 260 weeks,
// numbered 0 through 259.
//
// # Upstream rows
//
// Rows arrive from the hosted SQL query service, a Kafka topic, or a fixture
// file. Column names follow the query service where they differ from ours:
// "date" is accepted for "timestamp" and "primary_type" for "category".
// Coordinates may be JSON numbers or numeric strings; anything that does not
// parse becomes 0, matching how the map layer already treats bad coordinates.
//
// Timestamps are kept as the raw string. Parsing happens once, during
// bucketing, so a malformed timestamp drops the record from every bucket
// instead of failing the whole load. Accepted layouts:
//
//	2020-01-06T14:30:00Z          RFC 3339, optional fractional seconds
//	2020-01-06T14:30:00           zone-less, read as UTC
//	2020-01-06 14:30:00[.000000]  SQL VARCHAR cast
//	2020-01-06                    date only
//
// # ID Generation
//
// Rows without an id get a deterministic one: a SHA-256 prefix of
// timestamp|lat|lon|category, prefixed by the lowercased category. Replaying
// the same row produces the same ID. See [generateID].
package domain

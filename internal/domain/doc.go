// Package domain models NSW FuelCheck price observations and the star schema
// derived from them.
//
// # Data Sources
//
// Two upstream feeds arrive as plain tabular records:
//
//   - Price history: the monthly FuelCheck extracts published on
//     data.nsw.gov.au, unioned together. Overlapping extracts repeat the same
//     observation, so the feed carries exact and near-exact duplicates.
//   - Station directory: the FuelCheck API station list, one row per station
//     with brand, address, coordinates and the AdBlue flag.
//
// # Pipeline Stages
//
//	Deduplicate  -> one PriceRecord per (station, address, fuel, timestamp),
//	                price averaged across the group.
//	Augment      -> left join on station name against the directory; fills
//	                coordinates and the AdBlue flag.
//	Enrich       -> GapFillEnricher looks up addresses that still lack
//	                coordinates, and opening hours when enabled.
//	Extract      -> Brand, Location, ServiceStation and FuelPriceFact rows with
//	                surrogate keys.
//
// # Surrogate Keys
//
// Keys are 1-based row positions, the same as row_number() over the output
// order. They are only meaningful inside one build: rerunning with a
// different input order renumbers every dimension. Set StableKeys to sort each
// dimension by its natural key before numbering.
//
// # Join Semantics
//
// ServiceStation resolves brands by exact, case-sensitive name and locations
// by exact (address, latitude, longitude) equality. Null coordinates never
// match, mirroring SQL NULL semantics. Every record that cannot be resolved is
// recorded as a JoinMismatchError before it is filtered out.
//
// Fuel price facts join to ServiceStation by station name only. Two stations
// sharing a name at different addresses therefore share fact rows; this is a
// known limitation of the source key.
//
// # Known Normalization Gaps
//
// An address observed with two coordinate pairs (for example one from the
// directory and one from the geocoder) produces two Location rows. Opening
// hours that run past midnight are stored literally, with the close time
// earlier than the open time.
package domain

// Package domain models wildfire incident records from the USFS Fire Program
// Analysis fire-occurrence database (FPA FOD) and turns them into the feature
// vectors the risk classifier was trained on.
//
// # Data Source
//
// Records come from the Fires table of the FPA FOD SQLite release
// (FPA_FOD_20170508.sqlite) or a mirror of it, read wholesale with
// SELECT * FROM Fires. Every column may be NULL.
//
// # Source Conventions
//
// Discovery time:
//
//	HHMM encoded as a number or text, e.g. 930 = 09:30, 5 = 00:05.
//	The value is truncated to an integer, zero-padded to four digits and
//	the first two characters are the hour. Out-of-range hours are clamped
//	to 0–23, never rejected.
//
// Dates:
//
//	DISCOVERY_DATE and CONT_DATE are Julian day numbers, e.g. 2457573.5 is
//	2016-07-04T00:00Z. Day-of-year and season are derived from the
//	converted calendar date.
//
// Size class:
//
//	FIRE_SIZE_CLASS A–G by burned acreage. A/B bucket to Low risk, C/D/E to
//	Medium; every other code, including a missing one, buckets to High.
//
// # Imputation
//
// Missing hours and days-of-year take the median of the parsed values in the
// same batch, so the engine must see the whole batch at once. When no value
// parses, or the column is absent, the value comes from the [Defaults] table
// (hour 12, day 183). Scoring passes the training-time [ImputationStats] back
// in so a single-row batch is filled exactly the way training filled it.
package domain

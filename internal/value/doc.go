// Package value provides the attribute value model for entities.
//
// Attribute values are a closed set of types: Null, String, Int, Bool, Time,
// List, and Map. Equality is by value (Equal), never by reference; Time values
// compare by instant regardless of location.
//
// Key design constraints:
//   - NO float types anywhere - use Int for numbers
//   - Time is the only wall-clock type and is encoded as a DateTime object
//     ({"@type":"DateTime","@value":"<RFC 3339>"}) in JSON
//   - Canonical JSON (MarshalCanonical) is the only encoding used for
//     fingerprints and stored attribute payloads
//
// This package imports nothing internal.
package value

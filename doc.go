// Package media bridges blocking, thread-bound audio/video decoding into
// independently consumable, timestamp-correct frame streams, and lets
// many consumers share one decoded stream without re-decoding.
//
// Key pieces include:
//   - Player: a dedicated decode goroutine per source exposing audio and
//     video Tracks with normalized timestamps
//   - Track: a single-reader, context-aware frame stream
//   - Relay: fan-out of one Track to any number of proxy Tracks
//   - Sinks: Blackhole (discard), Recorder (encode + mux to a container),
//     RTPSink and SampleSink (hand encoded media to pion transports)
//
// # Architecture
//
//	Player (decode worker) -> Track -> [Relay -> N proxy Tracks] -> Sinks
//
// The decode worker owns its container handle exclusively and hands
// frames across the thread boundary through per-track channels. For
// non-real-time sources (files, HTTP) delivery is paced to the media
// timeline; capture devices and live feeds are passed through as-is.
//
// # Containers and codecs
//
// Demuxers and write containers are registered by format name and are
// treated as opaque decode/encode capabilities; this package ships a
// synthetic "pattern" demuxer plus WAV and PNG image-sequence writers,
// and real codec backends plug in through the same registries.
package media

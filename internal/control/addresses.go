// Package control exposes the mixing engine over an OSC-compatible UDP
// protocol. Every address maps to exactly one handler; unknown addresses
// are ignored and malformed messages are logged and dropped, never fatal.
package control

// OSC addresses understood by the engine.
const (
	AddressReset           = "/reset"
	AddressLoadBuffer      = "/load_buffer"
	AddressPlayStem        = "/play_stem"
	AddressStopStem        = "/stop_stem"
	AddressStemVolume      = "/stem_volume"
	AddressCrossfadeLevels = "/crossfade_levels"
	AddressDeckLevels      = "/deck_levels"
	AddressDeckEQ          = "/deck_eq"
	AddressDeckEQAll       = "/deck_eq_all"
	AddressCue             = "/cue"
	AddressStartGroup      = "/start_group"
	AddressSetTempo        = "/set_tempo"
	AddressGetStatus       = "/get_status"
	AddressMixerCleanup    = "/mixer_cleanup"
	AddressTestTone        = "/test_tone"

	// AddressStatus is the reply address for /get_status snapshots.
	AddressStatus = "/status"
)

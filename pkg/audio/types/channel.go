package types

// Channel is an amount of audio channels.
type Channel uint32

// SampleRate is an amount of samples per second per channel.
type SampleRate uint32

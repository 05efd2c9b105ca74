package constants

import "time"

// Long polling timing
const (
	// DefaultSyncTimeout is the timeout for the initial cursor sync request
	DefaultSyncTimeout = 5 * time.Second
	// DefaultPollTimeout is the timeout for long polling update requests
	DefaultPollTimeout = 25 * time.Second
	// DefaultConnectionBackoff is the delay after a connection failure
	DefaultConnectionBackoff = 5 * time.Second
	// DefaultServerBackoff is the delay after a non-auth server error
	DefaultServerBackoff = 2 * time.Second
	// DefaultErrorBackoff is the delay after an unexpected loop error
	DefaultErrorBackoff = 1 * time.Second
)

// CursorEpsilon is added to the last synced timestamp so the initial
// sync never re-delivers the newest already-seen message.
const CursorEpsilon = 0.000001

// Outbound request timing
const (
	// DefaultRequestTimeout is the timeout for send/edit/delete requests
	DefaultRequestTimeout = 30 * time.Second
	// DefaultUploadTimeout is the timeout for file uploads
	DefaultUploadTimeout = 60 * time.Second
)

// API key masking
const (
	// MinKeyLengthForMasking is the minimum key length to apply masking
	MinKeyLengthForMasking = 10
	// KeyMaskPrefixLength is the length of prefix to show before masking
	KeyMaskPrefixLength = 4
	// KeyMaskSuffixLength is the length of suffix to show after masking
	KeyMaskSuffixLength = 4
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
)

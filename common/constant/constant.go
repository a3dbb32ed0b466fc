package constant

import "time"

// MPTCP MP_CAPABLE option, SYN form (RFC 6824)
const (
	TCPOptionKindMPTCP    uint8  = 30
	MPTCPSubCapable       uint8  = 0
	MPTCPSubLenCapableSYN uint8  = 12
	MPTCPSenderKey        uint64 = 0xBEEFFEDBADC00FEE
)

// outgoing header defaults
const (
	IPv4TTL   uint8  = 255
	IPv4Id    uint16 = 54321
	TCPWindow uint16 = 65535
)

// source ports used when nothing is configured
const (
	SourcePortFirst uint16 = 32768
	SourcePortLast  uint16 = 61000
)

// monitor
const (
	UpdateInterval     = time.Second
	DropWarnRatio      = 0.05
	FailWarnRatio      = 0.01
	RemainingShowAfter = 5 * time.Second
	DefaultCooldown    = 8 * time.Second
)

const (
	CHANNEL_SIZE uint16 = 256
)

// sender
const (
	DefaultRate        = 10000
	DefaultSendWorkers = 1
	DefaultProbes      = 1
)

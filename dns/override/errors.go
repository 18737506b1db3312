package override

import (
	"errors"

	"github.com/fosrl/dnsutility/dns/backup"
	"github.com/fosrl/dnsutility/dns/platform"
)

var (
	// ErrInconsistentState is returned when the live configuration and the
	// backup disagree, so neither subvert nor revert can proceed safely
	ErrInconsistentState = errors.New("resolver configuration is in an inconsistent state")

	// ErrVerificationFailed is returned when a write reported success but
	// reading back yields a different configuration
	ErrVerificationFailed = errors.New("resolver configuration did not take effect")
)

// Kind classifies an error into the failure categories callers render
type Kind int

const (
	KindNone Kind = iota
	KindNoActiveInterface
	KindPlatformRead
	KindPlatformWrite
	KindPermissionDenied
	KindNoBackup
	KindBackupExists
	KindInconsistentState
	KindVerificationFailed
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindNoActiveInterface:
		return "NoActiveInterface"
	case KindPlatformRead:
		return "PlatformReadError"
	case KindPlatformWrite:
		return "PlatformWriteError"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindNoBackup:
		return "NoBackup"
	case KindBackupExists:
		return "BackupAlreadyExists"
	case KindInconsistentState:
		return "InconsistentState"
	case KindVerificationFailed:
		return "VerificationFailed"
	default:
		return "Other"
	}
}

// Hint returns a short remediation for the kind, or an empty string
func (k Kind) Hint() string {
	switch k {
	case KindPermissionDenied:
		return "run the command again with administrator or root privileges"
	case KindNoActiveInterface:
		return "connect to a network and try again"
	case KindInconsistentState:
		return "the resolver configuration was changed outside this tool; inspect it and repair it manually"
	case KindVerificationFailed:
		return "another component (DHCP, a network manager or a VPN client) may be overriding the resolver configuration"
	case KindNoBackup, KindBackupExists:
		return "another invocation may be running concurrently; check the status and try again"
	default:
		return ""
	}
}

// KindOf returns the category of err
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		readErr  *platform.ReadError
		writeErr *platform.WriteError
	)

	switch {
	case errors.Is(err, platform.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrInconsistentState):
		return KindInconsistentState
	case errors.Is(err, ErrVerificationFailed):
		return KindVerificationFailed
	case errors.Is(err, backup.ErrNoBackup):
		return KindNoBackup
	case errors.Is(err, backup.ErrBackupExists):
		return KindBackupExists
	case errors.Is(err, platform.ErrNoActiveInterface):
		return KindNoActiveInterface
	case errors.As(err, &writeErr):
		return KindPlatformWrite
	case errors.As(err, &readErr):
		return KindPlatformRead
	default:
		return KindOther
	}
}

package action

import (
	"errors"
	"fmt"
)

// ErrUnknownActionType is returned when an action (or its shell subtype) has
// no classification mapping. This is a configuration or programming error,
// never silently defaulted.
var ErrUnknownActionType = errors.New("unknown action type")

// ShellSubtype carries the subtype of a shell execution request. It is the
// string form of either a SafeShellType or a DangerousShellType; empty for
// non-shell actions.
type ShellSubtype string

// capabilities is the fixed action classification table. It is not
// configurable: no runtime path may remap an action to a different
// capability or reclassify a dangerous shell as safe.
var capabilities = map[Type]Capability{
	TypeCreateSubAgent:        {Global: CapCreateSubAgents},
	TypeCreateContainer:       {Global: CapCreateContainers},
	TypeRegisterInfoStore:     {Global: CapRegisterInfoStores},
	TypeAccessLocalhost:       {Global: CapAccessLocalhost},
	TypeExecuteSafeShell:      {Resource: KindSystemUser},
	TypeExecuteDangerousShell: {Resource: KindSystemUser},
	TypeAccessInfoStore:       {Resource: KindInfoStore},
	TypeAccessWebsite:         {Resource: KindWebsite},
	TypeSearch:                {Resource: KindSearchEngine},
	TypeAccessContainer:       {Resource: KindContainer},
	TypeManageAgent:           {Resource: KindAgent},
	TypeManageTask:            {Resource: KindTask},
	TypeManageSkill:           {Resource: KindSkill},
	TypeTranscribeAudio:       {Resource: KindAudioDevice},
}

var safeShellSubtypes = func() map[ShellSubtype]bool {
	m := make(map[ShellSubtype]bool)
	for _, t := range SafeShellTypes() {
		m[ShellSubtype(t)] = true
	}
	return m
}()

var dangerousShellSubtypes = func() map[ShellSubtype]bool {
	m := make(map[ShellSubtype]bool)
	for _, t := range DangerousShellTypes() {
		m[ShellSubtype(t)] = true
	}
	return m
}()

// Classify maps an action to its capability and danger tier.
//
// For shell actions the subtype alone determines the tier: membership in the
// safe enumeration yields TierSandboxed, membership in the dangerous
// enumeration yields TierUnrestricted. A subtype from the wrong enumeration
// (or an unknown one) fails with ErrUnknownActionType.
func Classify(t Type, shellSubtype ShellSubtype) (Capability, DangerTier, error) {
	capability, ok := capabilities[t]
	if !ok {
		return Capability{}, TierNone, fmt.Errorf("%q: %w", t, ErrUnknownActionType)
	}

	switch t {
	case TypeExecuteSafeShell:
		if !safeShellSubtypes[shellSubtype] {
			return Capability{}, TierNone, fmt.Errorf("safe shell subtype %q: %w", shellSubtype, ErrUnknownActionType)
		}
		return capability, TierSandboxed, nil
	case TypeExecuteDangerousShell:
		if !dangerousShellSubtypes[shellSubtype] {
			return Capability{}, TierNone, fmt.Errorf("dangerous shell subtype %q: %w", shellSubtype, ErrUnknownActionType)
		}
		return capability, TierUnrestricted, nil
	default:
		if shellSubtype != "" {
			return Capability{}, TierNone, fmt.Errorf("action %q takes no shell subtype: %w", t, ErrUnknownActionType)
		}
		return capability, TierNone, nil
	}
}

// Types lists every known action type, for exhaustive checks.
func Types() []Type {
	types := make([]Type, 0, len(capabilities))
	for t := range capabilities {
		types = append(types, t)
	}
	return types
}

package action

// Type identifies one kind of agent-requested action.
type Type string

const (
	TypeCreateSubAgent        Type = "CREATE_SUB_AGENT"
	TypeCreateContainer       Type = "CREATE_CONTAINER"
	TypeRegisterInfoStore     Type = "REGISTER_INFO_STORE"
	TypeAccessLocalhost       Type = "ACCESS_LOCALHOST"
	TypeExecuteSafeShell      Type = "EXECUTE_SAFE_SHELL"
	TypeExecuteDangerousShell Type = "EXECUTE_DANGEROUS_SHELL"
	TypeAccessInfoStore       Type = "ACCESS_INFO_STORE"
	TypeAccessWebsite         Type = "ACCESS_WEBSITE"
	TypeSearch                Type = "SEARCH"
	TypeAccessContainer       Type = "ACCESS_CONTAINER"
	TypeManageAgent           Type = "MANAGE_AGENT"
	TypeManageTask            Type = "MANAGE_TASK"
	TypeManageSkill           Type = "MANAGE_SKILL"
	TypeTranscribeAudio       Type = "TRANSCRIBE_AUDIO"
)

// ResourceKind is the category a resource-scoped grant applies to.
type ResourceKind string

const (
	KindSystemUser   ResourceKind = "SYSTEM_USER"
	KindInfoStore    ResourceKind = "INFO_STORE"
	KindWebsite      ResourceKind = "WEBSITE"
	KindSearchEngine ResourceKind = "SEARCH_ENGINE"
	KindContainer    ResourceKind = "CONTAINER"
	KindAgent        ResourceKind = "AGENT"
	KindTask         ResourceKind = "TASK"
	KindSkill        ResourceKind = "SKILL"
	KindAudioDevice  ResourceKind = "AUDIO_DEVICE"
)

// GlobalCapability is a boolean permission flag not tied to a resource.
type GlobalCapability string

const (
	CapCreateSubAgents    GlobalCapability = "CREATE_SUB_AGENTS"
	CapCreateContainers   GlobalCapability = "CREATE_CONTAINERS"
	CapRegisterInfoStores GlobalCapability = "REGISTER_INFO_STORES"
	CapAccessLocalhost    GlobalCapability = "ACCESS_LOCALHOST"
)

// Capability is the target of a permission lookup: either a global boolean
// flag or a per-resource-kind grant collection. Exactly one field is set.
type Capability struct {
	Global   GlobalCapability
	Resource ResourceKind
}

func (c Capability) IsGlobal() bool {
	return c.Global != ""
}

// DangerTier classifies how an action executes.
type DangerTier int

const (
	// TierNone means the action has no execution backend.
	TierNone DangerTier = iota
	// TierSandboxed actions run in the confined interpreter.
	TierSandboxed
	// TierUnrestricted actions spawn a real system interpreter.
	TierUnrestricted
)

// SafeShellType enumerates the sandboxed script dialects. Values never
// overlap with DangerousShellType by construction.
type SafeShellType string

const (
	SafeShellScript   SafeShellType = "SCRIPT"
	SafeShellPipeline SafeShellType = "PIPELINE"
)

// DangerousShellType enumerates real system interpreters.
type DangerousShellType string

const (
	DangerousShellBash       DangerousShellType = "BASH"
	DangerousShellSh         DangerousShellType = "SH"
	DangerousShellZsh        DangerousShellType = "ZSH"
	DangerousShellPowerShell DangerousShellType = "POWERSHELL"
)

// SafeShellTypes lists every safe subtype, for exhaustive checks.
func SafeShellTypes() []SafeShellType {
	return []SafeShellType{SafeShellScript, SafeShellPipeline}
}

// DangerousShellTypes lists every dangerous subtype, for exhaustive checks.
func DangerousShellTypes() []DangerousShellType {
	return []DangerousShellType{DangerousShellBash, DangerousShellSh, DangerousShellZsh, DangerousShellPowerShell}
}

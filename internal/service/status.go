package service

// GlobalStatus is the lifecycle state of a service.
type GlobalStatus string

const (
	StatusStarted  GlobalStatus = "STARTED"
	StatusStarting GlobalStatus = "STARTING"
	StatusSwapping GlobalStatus = "SWAPPING"
	StatusStopped  GlobalStatus = "STOPPED"
	StatusStopping GlobalStatus = "STOPPING"
)

// UpdatingStatus tells whether an update is running.
type UpdatingStatus string

const (
	StatusUpdating    UpdatingStatus = "UPDATING"
	StatusNotUpdating UpdatingStatus = "NOTUPDATING"
)

// ConfigurationStatus tracks the configuration of a service.
type ConfigurationStatus string

const (
	StatusConfiguring  ConfigurationStatus = "CONFIGURING"
	StatusConfigured   ConfigurationStatus = "CONFIGURED"
	StatusUnconfigured ConfigurationStatus = "UNCONFIGURED"
)

// Status is a point-in-time snapshot of a service.
type Status struct {
	ID            string              `json:"id"`
	Type          Type                `json:"type"`
	Global        GlobalStatus        `json:"global"`
	Updating      UpdatingStatus      `json:"updating"`
	Configuration ConfigurationStatus `json:"configuration"`
	Worker        string              `json:"worker,omitempty"`
	Objects       []ObjectStatus      `json:"objects,omitempty"`
}

// ObjectStatus describes one declared object key.
type ObjectStatus struct {
	Key      string `json:"key"`
	Access   Access `json:"access"`
	ID       string `json:"id,omitempty"`
	Bound    bool   `json:"bound"`
	Optional bool   `json:"optional"`
}

// NotificationKind selects the notification signal emitted by Notify.
type NotificationKind string

const (
	NotifyInfo    NotificationKind = "info"
	NotifySuccess NotificationKind = "success"
	NotifyFailure NotificationKind = "failure"
)

// Built-in signal keys.
const (
	SignalStarted         = "started"
	SignalUpdated         = "updated"
	SignalSwapped         = "swapped"
	SignalStopped         = "stopped"
	SignalInfoNotified    = "infoNotified"
	SignalSuccessNotified = "successNotified"
	SignalFailureNotified = "failureNotified"
)

// Built-in slot keys.
const (
	SlotStart   = "start"
	SlotStop    = "stop"
	SlotUpdate  = "update"
	SlotSwapKey = "swapKey"
)

// Lifecycle operation names used in logs and metrics.
const (
	opConfigure = "configure"
	opStart     = "start"
	opStop      = "stop"
	opUpdate    = "update"
	opSwap      = "swap"
)

package config

const (
	// DefaultWorkerName is the loop worker every process starts with.
	DefaultWorkerName = "main"

	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// GetDefaultConfig returns the built-in configuration: one loop worker used
// by services that don't name another, info logging, and no metrics endpoint.
func GetDefaultConfig() SightConfig {
	return SightConfig{
		GlobalSettings: GlobalSettings{
			LogLevel:      defaultLogLevel,
			LogFormat:     defaultLogFormat,
			DefaultWorker: DefaultWorkerName,
		},
		Workers: []WorkerDefinition{
			{Name: DefaultWorkerName, Kind: WorkerKindLoop},
		},
	}
}

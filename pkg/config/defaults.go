package config

// Session default values.
const (
	DefaultVerbosity          = 0
	DefaultOutputFolder       = "output"
	DefaultEntryPointName     = "DefaultImpl"
	DefaultCheckpointInterval = 0
	DefaultCheckpointBackend  = BackendFile
	DefaultSolverBackend      = "bdd"
	DefaultRandomSeed         = 0
	DefaultMaxDepth           = 100
	DefaultMaxExecutions      = 0
	DefaultMemLimit           = "0"
	DefaultConfigName         = ".boundcheck"
	EnvPrefix                 = "BOUNDCHECK"
)

// Checkpoint store backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

package config

const (
	defaultDataDir               = "."
	defaultProcessedDir          = "./output/data_processed"
	defaultResultsDir            = "./output/results"
	defaultLogDir                = "./output/log"
	defaultQCDir                 = "./output/qc"
	defaultSubjectsGlob          = "sub-*"
	defaultInterruptGraceSeconds = 30
	defaultCSALevels             = "2:3"
	defaultDTIMetrics            = "FA,MD"
	defaultTemplateDir           = "$SCT_DIR/data/PAM50"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			ProcessedDir: defaultProcessedDir,
			ResultsDir:   defaultResultsDir,
			LogDir:       defaultLogDir,
			QCDir:        defaultQCDir,
		},
		Batch: Batch{
			SubjectsGlob: defaultSubjectsGlob,
		},
		Tools: Tools{
			InterruptGraceSeconds: defaultInterruptGraceSeconds,
			QCManualOverrides:     true,
		},
		Protocol: Protocol{
			T2Star:      true,
			DWI:         true,
			CSALevels:   defaultCSALevels,
			DTIMetrics:  defaultDTIMetrics,
			TemplateDir: defaultTemplateDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

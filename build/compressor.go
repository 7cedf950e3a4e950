package build

const (
	// Gzip selects the gzip compressor for rotated log files.
	Gzip = "gzip"

	// Zstd selects the zstd compressor for rotated log files.
	Zstd = "zstd"
)

// logCompressors maps each supported compressor to the file suffix the
// rotator should append to compressed files.
var logCompressors = map[string]string{
	Gzip: ".gz",
	Zstd: ".zst",
}

// SupportedLogCompressor returns true if the given compressor name is one
// the rotator knows how to drive.
func SupportedLogCompressor(c string) bool {
	_, ok := logCompressors[c]
	return ok
}

// consoleLoggerCfg holds the options specific to the console (stdout/stderr)
// logger.
type consoleLoggerCfg struct {
	LoggerConfig
	Style bool `long:"style" description:"Colorize and style console log output."`
}

// defaultConsoleLoggerCfg returns the default console logger config.
func defaultConsoleLoggerCfg() *consoleLoggerCfg {
	return &consoleLoggerCfg{
		LoggerConfig: LoggerConfig{
			CallSite: callSiteOff,
		},
	}
}

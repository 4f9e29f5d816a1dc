package upscaling

import (
	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// LogLevelToAstiav maps a go-belt logging level to the closest libav one.
func LogLevelToAstiav(level logger.Level) astiav.LogLevel {
	switch level {
	case logger.LevelPanic:
		return astiav.LogLevelPanic
	case logger.LevelFatal:
		return astiav.LogLevelFatal
	case logger.LevelError:
		return astiav.LogLevelError
	case logger.LevelWarning:
		return astiav.LogLevelWarning
	case logger.LevelInfo:
		return astiav.LogLevelInfo
	case logger.LevelDebug:
		return astiav.LogLevelVerbose
	case logger.LevelTrace:
		return astiav.LogLevelDebug
	}
	return astiav.LogLevelWarning
}

// LogLevelFromAstiav maps a libav logging level to the closest go-belt one.
func LogLevelFromAstiav(level astiav.LogLevel) logger.Level {
	switch level {
	case astiav.LogLevelPanic:
		return logger.LevelPanic
	case astiav.LogLevelFatal:
		return logger.LevelFatal
	case astiav.LogLevelError:
		return logger.LevelError
	case astiav.LogLevelWarning:
		return logger.LevelWarning
	case astiav.LogLevelInfo:
		return logger.LevelInfo
	case astiav.LogLevelVerbose:
		return logger.LevelDebug
	case astiav.LogLevelDebug:
		return logger.LevelTrace
	}
	return logger.LevelWarning
}

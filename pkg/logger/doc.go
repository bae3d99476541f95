// Package logger is the harvester's structured logging surface, built
// on zerolog.
//
// Initialize installs the global logger from configuration; GetLogger
// hands it out everywhere else:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//		return err
//	}
//	log := logger.GetLogger()
//	log.WithField("seed", seedURL).Info("run started")
//
// With* methods derive a new logger; the original is never mutated, so
// a component can bind its context once:
//
//	log := logger.GetLogger().WithField("component", "downloader")
//	log.InfoWithFields("download completed", map[string]interface{}{
//		"file": "image.jpg",
//		"size": 1024000,
//	})
//
// With no log file configured, output is a colored console writer on
// stdout. With cfg.Logging.File set, structured JSON goes to the file
// and a console line is written alongside.
//
// Tests use NewTestLogger, which records every call for assertions
// instead of writing output.
package logger

// Package core provides dataset registration, run orchestration, PostGIS
// persistence and validate/deploy of tormays tables.
//
// # Error Codes Reference
//
// This file defines operator-friendly error messages with codes. The command
// line tools print the code next to every failed dataset so a failed nightly
// run can be diagnosed from its summary line.
//
// Error codes are grouped by category:
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Config not found: No config.yaml in any candidate location
//	         Action: Set HAITATON_CONFIG or place config.yaml next to the binary
//	         Patterns: "config file not found"
//
//	CFG002 - Unknown profile: Deployment profile is not supported
//	         Action: Set TORMAYS_DEPLOYMENT_PROFILE to a profile defined in config.yaml
//	         Patterns: "unknown deployment profile"
//
//	CFG003 - Dataset not configured: config.yaml has no section for the dataset
//	         Action: Add the dataset under datasets in config.yaml
//	         Patterns: "dataset not configured"
//
//	CFG004 - Directory not found: A storage directory does not exist
//	         Action: Create the directory or fix the storage paths of the profile
//	         Patterns: "directory not found"
//
//	CFG005 - Invalid config: config.yaml failed validation
//	         Action: Fix the listed fields in config.yaml
//	         Patterns: "config validation", "config load"
//
//	CFG006 - File name missing: A dataset file name is not configured
//	         Action: Set local_file, target_file or target_buffer_file
//	         Patterns: "file name not configured"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Source missing: A source file of the dataset does not exist
//	          Action: Download the source material into the download directory
//	          Patterns: "source file not found"
//
//	FILE002 - Feed missing: The GTFS archive does not exist
//	          Action: Download the GTFS feed into the download directory
//	          Patterns: "gtfs feed not found"
//
//	FILE003 - Layer missing: The requested layer is not in the GeoPackage
//	          Action: Check the layer setting of the dataset
//	          Patterns: "layer not found"
//
//	FILE004 - Unsupported format: The source file format cannot be read
//	          Action: Provide the source as GeoPackage, Shapefile or GeoJSON
//	          Patterns: "unsupported vector format"
//
//	FILE005 - No such file: A file or directory could not be opened
//	          Action: Check the storage directories of the profile
//	          Patterns: "no such file or directory"
//
// # Transit Errors (GTFS001-GTFS099)
//
//	GTFS001 - No transit week: The feed does not cover the selected week
//	          Action: Lower week_of_transit or download a newer feed
//	          Patterns: "no such transit week"
//
//	GTFS002 - Invalid feed: The GTFS feed could not be parsed
//	          Action: Disable validate_gtfs or obtain a valid feed
//	          Patterns: "parse gtfs"
//
//	GTFS003 - Invalid time: A stop time is not in H:MM:SS form
//	          Patterns: "invalid gtfs time"
//
//	GTFS004 - Invalid date: A calendar date is not in YYYYMMDD form
//	          Patterns: "invalid gtfs date"
//
// # Geometry Errors (GEO001-GEO099)
//
//	GEO001 - Invalid CRS: The crs setting is not EPSG:<code>
//	         Action: Set common.crs, e.g. EPSG:3879
//	         Patterns: "invalid crs"
//
//	GEO002 - Unsupported CRS: No transformation is defined for the CRS
//	         Action: Use EPSG:3879, EPSG:3067 or EPSG:4326
//	         Patterns: "unsupported crs"
//
//	GEO003 - Buffer values: The dataset has the wrong number of buffer distances
//	         Action: Check buffer or buffer_class_values of the dataset
//	         Patterns: "unexpected number of buffer values"
//
// # Deploy Errors (DEP001-DEP099)
//
//	DEP001 - Unknown deploy mode: deploy_mode is not delete_insert or replace
//	         Patterns: "unknown deploy mode"
//
//	DEP002 - Not processed: Results were written before processing
//	         Patterns: "dataset not processed"
//
//	DEP003 - Dependency cycle: Datasets depend on each other
//	         Patterns: "dependency cycle"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - No database: A database step ran without a connection
//	        Action: Run with --skip-db or configure the database of the profile
//	        Patterns: "database not configured"
//
//	DB002 - Connection refused: Unable to connect to database
//	        Action: Check that PostGIS is running and reachable
//	        Patterns: "connection refused"
//
//	DB003 - Authentication failed: Database rejected the credentials
//	        Action: Check HAITATON_USER and HAITATON_PASSWORD
//	        Patterns: "password authentication failed"
//
//	DB004 - Missing table: A table or schema does not exist
//	        Action: Run gis-process for the dataset before validate/deploy
//	        Patterns: "does not exist"
//
//	DB005 - Deadlock: Database was busy with conflicting operations
//	        Action: Run again
//	        Patterns: "deadlock"
//
//	DB006 - Timeout: Operation timed out
//	        Action: Run again or check database load
//	        Patterns: "timeout"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Unknown dataset: The dataset name is not registered
//	         Action: List datasets with --list
//	         Patterns: "unknown dataset"
//
//	RUN002 - Cancelled: The run was interrupted
//	         Patterns: "context canceled"
//
//	RUN003 - Deadline: The run exceeded its time limit
//	         Patterns: "context deadline exceeded"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the log for the original error
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides operator-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for reference
}

// errorPattern defines a pattern to match and its corresponding message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to messages.
// The first matching pattern wins, so order matters.
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the package documentation at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// Configuration Errors (CFG001-CFG006)
	// =========================================================================
	{
		pattern: "config file not found",
		msg: UserMessage{
			Message: "No configuration file found",
			Action:  "Set HAITATON_CONFIG or place config.yaml next to the binary",
			Code:    "CFG001",
		},
	},
	{
		pattern: "unknown deployment profile",
		msg: UserMessage{
			Message: "Deployment profile is not supported",
			Action:  "Set TORMAYS_DEPLOYMENT_PROFILE to a profile defined in config.yaml",
			Code:    "CFG002",
		},
	},
	{
		pattern: "dataset not configured",
		msg: UserMessage{
			Message: "Dataset has no configuration section",
			Action:  "Add the dataset under datasets in config.yaml",
			Code:    "CFG003",
		},
	},
	{
		pattern: "directory not found",
		msg: UserMessage{
			Message: "Storage directory does not exist",
			Action:  "Create the directory or fix the storage paths of the profile",
			Code:    "CFG004",
		},
	},
	{
		pattern: "config validation",
		msg: UserMessage{
			Message: "Configuration is invalid",
			Action:  "Fix the listed fields in config.yaml",
			Code:    "CFG005",
		},
	},
	{
		pattern: "config load",
		msg: UserMessage{
			Message: "Configuration could not be read",
			Action:  "Fix the listed fields in config.yaml",
			Code:    "CFG005",
		},
	},
	{
		pattern: "file name not configured",
		msg: UserMessage{
			Message: "Dataset file name is not configured",
			Action:  "Set local_file, target_file or target_buffer_file",
			Code:    "CFG006",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{
		pattern: "source file not found",
		msg: UserMessage{
			Message: "Source file does not exist",
			Action:  "Download the source material into the download directory",
			Code:    "FILE001",
		},
	},
	{
		pattern: "gtfs feed not found",
		msg: UserMessage{
			Message: "GTFS feed does not exist",
			Action:  "Download the GTFS feed into the download directory",
			Code:    "FILE002",
		},
	},
	{
		pattern: "layer not found",
		msg: UserMessage{
			Message: "Layer not found in GeoPackage",
			Action:  "Check the layer setting of the dataset",
			Code:    "FILE003",
		},
	},
	{
		pattern: "unsupported vector format",
		msg: UserMessage{
			Message: "Source file format is not supported",
			Action:  "Provide the source as GeoPackage, Shapefile or GeoJSON",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no such file or directory",
		msg: UserMessage{
			Message: "File could not be opened",
			Action:  "Check the storage directories of the profile",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Transit Errors (GTFS001-GTFS004)
	// =========================================================================
	{
		pattern: "no such transit week",
		msg: UserMessage{
			Message: "Feed does not cover the selected transit week",
			Action:  "Lower week_of_transit or download a newer feed",
			Code:    "GTFS001",
		},
	},
	{
		pattern: "parse gtfs",
		msg: UserMessage{
			Message: "GTFS feed could not be parsed",
			Action:  "Disable validate_gtfs or obtain a valid feed",
			Code:    "GTFS002",
		},
	},
	{
		pattern: "invalid gtfs time",
		msg: UserMessage{
			Message: "Invalid GTFS time",
			Action:  "Check stop_times.txt of the feed",
			Code:    "GTFS003",
		},
	},
	{
		pattern: "invalid gtfs date",
		msg: UserMessage{
			Message: "Invalid GTFS date",
			Action:  "Check calendar.txt of the feed",
			Code:    "GTFS004",
		},
	},

	// =========================================================================
	// Geometry Errors (GEO001-GEO003)
	// =========================================================================
	{
		pattern: "invalid crs",
		msg: UserMessage{
			Message: "Coordinate reference system is invalid",
			Action:  "Set common.crs, e.g. EPSG:3879",
			Code:    "GEO001",
		},
	},
	{
		pattern: "unsupported crs",
		msg: UserMessage{
			Message: "Coordinate reference system is not supported",
			Action:  "Use EPSG:3879, EPSG:3067 or EPSG:4326",
			Code:    "GEO002",
		},
	},
	{
		pattern: "unexpected number of buffer values",
		msg: UserMessage{
			Message: "Wrong number of buffer distances",
			Action:  "Check buffer or buffer_class_values of the dataset",
			Code:    "GEO003",
		},
	},

	// =========================================================================
	// Deploy Errors (DEP001-DEP003)
	// =========================================================================
	{
		pattern: "unknown deploy mode",
		msg: UserMessage{
			Message: "Unknown deploy mode",
			Action:  "Set deploy_mode to delete_insert or replace",
			Code:    "DEP001",
		},
	},
	{
		pattern: "dataset not processed",
		msg: UserMessage{
			Message: "Results were written before processing",
			Action:  "Report this as a bug",
			Code:    "DEP002",
		},
	},
	{
		pattern: "dependency cycle",
		msg: UserMessage{
			Message: "Datasets depend on each other",
			Action:  "Report this as a bug",
			Code:    "DEP003",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB006)
	// =========================================================================
	{
		pattern: "database not configured",
		msg: UserMessage{
			Message: "No database connection",
			Action:  "Run with --skip-db or configure the database of the profile",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check that PostGIS is running and reachable",
			Code:    "DB002",
		},
	},
	{
		pattern: "password authentication failed",
		msg: UserMessage{
			Message: "Database rejected the credentials",
			Action:  "Check HAITATON_USER and HAITATON_PASSWORD",
			Code:    "DB003",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "Table or schema does not exist",
			Action:  "Run gis-process for the dataset before validate/deploy",
			Code:    "DB004",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Run again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Run again or check database load",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// Run Errors (RUN001-RUN003)
	// =========================================================================
	{
		pattern: "unknown dataset",
		msg: UserMessage{
			Message: "Unknown dataset",
			Action:  "List datasets with --list",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Run was interrupted",
			Action:  "Run again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Run exceeded its time limit",
			Action:  "Run the dataset alone or raise the timeout",
			Code:    "RUN003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log for the original error",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	msg := MapError(fmt.Errorf("%w: hsl", config.ErrDatasetNotConfigured))
//	// msg.Code == "CFG003"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with an operator-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // Message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps a technical error to a UserError. Returns nil if err is
// nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
